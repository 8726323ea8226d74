package model

import "time"

// Project status values
const (
	ProjectStatusAnnotating   = "A"
	ProjectStatusDiscontinued = "D"
	ProjectStatusComplete     = "C"
)

// Project is an annotate-entities project: a dataset, the annotators
// working on it and the model that pre-annotates its documents.
type Project struct {
	ID                      uint      `gorm:"column:id;primaryKey" json:"id"`
	Name                    string    `gorm:"column:name;size:150;not null" json:"name"`
	Description             string    `gorm:"column:description" json:"description"`
	AnnotationGuidelineLink string    `gorm:"column:annotation_guideline_link" json:"annotation_guideline_link"`
	CreateTime              time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	DatasetID               uint      `gorm:"column:dataset_id;not null" json:"dataset"`
	Dataset                 *Dataset  `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	// GroupID is set on projects created for the annotators of a group
	GroupID *uint         `gorm:"column:group_id" json:"group"`
	Group   *ProjectGroup `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	Members            []User     `gorm:"many2many:project_members;joinForeignKey:ProjectID;joinReferences:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ValidatedDocuments []Document `gorm:"many2many:project_validated_documents;joinForeignKey:ProjectID;joinReferences:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
	PreparedDocuments  []Document `gorm:"many2many:project_prepared_documents;joinForeignKey:ProjectID;joinReferences:DocumentID;constraint:OnDelete:CASCADE" json:"-"`

	CUIs                     string `gorm:"column:cuis" json:"cuis"`
	CUIsFile                 string `gorm:"column:cuis_file" json:"cuis_file"`
	TUIs                     string `gorm:"column:tuis" json:"tuis"`
	AnnotationClassification bool   `gorm:"column:annotation_classification" json:"annotation_classification"`
	ProjectLocked            bool   `gorm:"column:project_locked" json:"project_locked"`
	ProjectStatus            string `gorm:"column:project_status;size:1" json:"project_status"`

	ConceptDBID     *uint       `gorm:"column:concept_db_id" json:"concept_db"`
	ConceptDB       *ConceptDB  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	VocabID         *uint       `gorm:"column:vocab_id" json:"vocab"`
	Vocab           *Vocabulary `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	ModelPackID     *uint       `gorm:"column:model_pack_id" json:"model_pack"`
	ModelPack       *ModelPack  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	CDBSearchFilter []ConceptDB `gorm:"many2many:project_cdb_search_filter;joinForeignKey:ProjectID;joinReferences:ConceptDBID;constraint:OnDelete:CASCADE" json:"-"`

	RequireEntityValidation        bool `gorm:"column:require_entity_validation" json:"require_entity_validation"`
	TrainModelOnSubmit             bool `gorm:"column:train_model_on_submit" json:"train_model_on_submit"`
	AddNewEntities                 bool `gorm:"column:add_new_entities" json:"add_new_entities"`
	RestrictConceptLookup          bool `gorm:"column:restrict_concept_lookup" json:"restrict_concept_lookup"`
	TerminateAvailable             bool `gorm:"column:terminate_available" json:"terminate_available"`
	IrrelevantAvailable            bool `gorm:"column:irrelevant_available" json:"irrelevant_available"`
	EnableEntityAnnotationComments bool `gorm:"column:enable_entity_annotation_comments" json:"enable_entity_annotation_comments"`

	Tasks     []MetaTask `gorm:"many2many:project_tasks;joinForeignKey:ProjectID;joinReferences:MetaTaskID;constraint:OnDelete:CASCADE" json:"-"`
	Relations []Relation `gorm:"many2many:project_relations;joinForeignKey:ProjectID;joinReferences:RelationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Project) TableName() string {
	return "projects"
}

// NewProject returns a project carrying the default annotation settings
func NewProject(name string, datasetID uint) *Project {
	return &Project{
		Name:                    name,
		DatasetID:               datasetID,
		ProjectStatus:           ProjectStatusAnnotating,
		RequireEntityValidation: true,
		TrainModelOnSubmit:      true,
		TerminateAvailable:      true,
	}
}

// UsesModelPack reports whether the project is configured with a model pack
func (p *Project) UsesModelPack() bool {
	return p.ModelPackID != nil
}

// Validate enforces that exactly one of the CDB/Vocab pair or a model pack is set
func (p *Project) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if p.DatasetID == 0 {
		return &ValidationError{Field: "dataset", Message: "dataset is required"}
	}
	switch p.ProjectStatus {
	case "", ProjectStatusAnnotating, ProjectStatusDiscontinued, ProjectStatusComplete:
	default:
		return &ValidationError{Field: "project_status", Message: "unknown project status " + p.ProjectStatus}
	}

	pair := p.ConceptDBID != nil || p.VocabID != nil
	if p.ModelPackID != nil && pair {
		return &ValidationError{
			Field:   "model_pack",
			Message: "Cannot set model pack and ConceptDB or a Vocab. You must use one or the other.",
		}
	}
	if p.ModelPackID == nil && (p.ConceptDBID == nil || p.VocabID == nil) {
		return &ValidationError{
			Field:   "concept_db",
			Message: "Must set at least the ConceptDB and Vocab or ModelPack",
		}
	}
	return nil
}

// MemberIDs returns the ids of the loaded members
func (p *Project) MemberIDs() []uint {
	ids := make([]uint, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// HasMember reports whether the user is one of the loaded members
func (p *Project) HasMember(userID uint) bool {
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
