package model

import "time"

// Entity is a concept label (CUI) shared by all annotations of that concept
type Entity struct {
	ID    uint   `gorm:"column:id;primaryKey" json:"id"`
	Label string `gorm:"column:label;size:150;uniqueIndex;not null" json:"label"`
}

func (Entity) TableName() string {
	return "entities"
}

// AnnotatedEntity is one span of a document linked to a concept
type AnnotatedEntity struct {
	ID              uint      `gorm:"column:id;primaryKey" json:"id"`
	UserID          uint      `gorm:"column:user_id;not null;index" json:"user"`
	User            *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProjectID       uint      `gorm:"column:project_id;not null;index" json:"project"`
	Project         *Project  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	DocumentID      uint      `gorm:"column:document_id;not null;index" json:"document"`
	Document        *Document `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	EntityID        uint      `gorm:"column:entity_id;not null" json:"entity"`
	Entity          *Entity   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Value           string    `gorm:"column:value" json:"value"`
	StartInd        int       `gorm:"column:start_ind" json:"start_ind"`
	EndInd          int       `gorm:"column:end_ind" json:"end_ind"`
	Acc             float64   `gorm:"column:acc" json:"acc"`
	Comment         string    `gorm:"column:comment" json:"comment"`
	Validated       bool      `gorm:"column:validated" json:"validated"`
	Correct         bool      `gorm:"column:correct" json:"correct"`
	Alternative     bool      `gorm:"column:alternative" json:"alternative"`
	ManuallyCreated bool      `gorm:"column:manually_created" json:"manually_created"`
	Deleted         bool      `gorm:"column:deleted" json:"deleted"`
	Killed          bool      `gorm:"column:killed" json:"killed"`
	Irrelevant      bool      `gorm:"column:irrelevant" json:"irrelevant"`
	CreateTime      time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	LastModified    time.Time `gorm:"column:last_modified;autoUpdateTime" json:"last_modified"`
}

func (AnnotatedEntity) TableName() string {
	return "annotated_entities"
}

// Overlaps reports whether [start, end) intersects the annotation span
func (a *AnnotatedEntity) Overlaps(start, end int) bool {
	return start < a.EndInd && a.StartInd < end
}

// MetaTaskValue is one option of a meta task, e.g. "Affirmed"
type MetaTaskValue struct {
	ID   uint   `gorm:"column:id;primaryKey" json:"id"`
	Name string `gorm:"column:name;size:150;not null" json:"name"`
}

func (MetaTaskValue) TableName() string {
	return "meta_task_values"
}

// MetaTask is a contextual classification annotators attach to annotations
type MetaTask struct {
	ID                uint            `gorm:"column:id;primaryKey" json:"id"`
	Name              string          `gorm:"column:name;size:150;uniqueIndex;not null" json:"name"`
	Values            []MetaTaskValue `gorm:"many2many:meta_task_options;joinForeignKey:MetaTaskID;joinReferences:MetaTaskValueID;constraint:OnDelete:CASCADE" json:"-"`
	DefaultID         *uint           `gorm:"column:default_id" json:"default"`
	Default           *MetaTaskValue  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Description       string          `gorm:"column:description" json:"description"`
	Ordering          int             `gorm:"column:ordering" json:"ordering"`
	PredictionModelID *uint           `gorm:"column:prediction_model_id" json:"prediction_model"`
	PredictionModel   *MetaCATModel   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

func (MetaTask) TableName() string {
	return "meta_tasks"
}

// ValueNamed returns the option with the given name
func (m *MetaTask) ValueNamed(name string) (*MetaTaskValue, bool) {
	for i := range m.Values {
		if m.Values[i].Name == name {
			return &m.Values[i], true
		}
	}
	return nil, false
}

// MetaAnnotation is the value of a meta task for one annotation
type MetaAnnotation struct {
	ID                       uint             `gorm:"column:id;primaryKey" json:"id"`
	AnnotatedEntityID        uint             `gorm:"column:annotated_entity_id;not null;index" json:"annotated_entity"`
	AnnotatedEntity          *AnnotatedEntity `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	MetaTaskID               uint             `gorm:"column:meta_task_id;not null" json:"meta_task"`
	MetaTask                 *MetaTask        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	MetaTaskValueID          *uint            `gorm:"column:meta_task_value_id" json:"meta_task_value"`
	MetaTaskValue            *MetaTaskValue   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	PredictedMetaTaskValueID *uint            `gorm:"column:predicted_meta_task_value_id" json:"predicted_meta_task_value"`
	PredictedMetaTaskValue   *MetaTaskValue   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Acc                      float64          `gorm:"column:acc" json:"acc"`
	Validated                bool             `gorm:"column:validated" json:"validated"`
	LastModified             time.Time        `gorm:"column:last_modified;autoUpdateTime" json:"last_modified"`
}

func (MetaAnnotation) TableName() string {
	return "meta_annotations"
}

// Relation is a relation label such as "has_dose"
type Relation struct {
	ID    uint   `gorm:"column:id;primaryKey" json:"id"`
	Label string `gorm:"column:label;size:150;uniqueIndex;not null" json:"label"`
}

func (Relation) TableName() string {
	return "relations"
}

// EntityRelation links two annotations of a document with a relation
type EntityRelation struct {
	ID            uint             `gorm:"column:id;primaryKey" json:"id"`
	UserID        uint             `gorm:"column:user_id;not null" json:"user"`
	User          *User            `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProjectID     uint             `gorm:"column:project_id;not null;index" json:"project"`
	Project       *Project         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	DocumentID    uint             `gorm:"column:document_id;not null;index" json:"document"`
	Document      *Document        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RelationID    uint             `gorm:"column:relation_id;not null" json:"relation"`
	Relation      *Relation        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	StartEntityID uint             `gorm:"column:start_entity_id;not null" json:"start_entity"`
	StartEntity   *AnnotatedEntity `gorm:"foreignKey:StartEntityID;constraint:OnDelete:CASCADE" json:"-"`
	EndEntityID   uint             `gorm:"column:end_entity_id;not null" json:"end_entity"`
	EndEntity     *AnnotatedEntity `gorm:"foreignKey:EndEntityID;constraint:OnDelete:CASCADE" json:"-"`
	Validated     bool             `gorm:"column:validated" json:"validated"`
	CreateTime    time.Time        `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	LastModified  time.Time        `gorm:"column:last_modified;autoUpdateTime" json:"last_modified"`
}

func (EntityRelation) TableName() string {
	return "entity_relations"
}
