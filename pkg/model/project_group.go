package model

import "time"

// ProjectGroup holds the settings shared by a set of projects over one
// dataset, one project per annotator.
type ProjectGroup struct {
	ID                      uint      `gorm:"column:id;primaryKey" json:"id"`
	Name                    string    `gorm:"column:name;size:150;not null;uniqueIndex" json:"name"`
	Description             string    `gorm:"column:description" json:"description"`
	AnnotationGuidelineLink string    `gorm:"column:annotation_guideline_link" json:"annotation_guideline_link"`
	CreateTime              time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`

	// CreateAssociatedProjects makes saving the group create or refresh
	// the projects of its annotators.
	CreateAssociatedProjects bool     `gorm:"column:create_associated_projects" json:"create_associated_projects"`
	DatasetID                uint     `gorm:"column:dataset_id;not null" json:"dataset"`
	Dataset                  *Dataset `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Administrators []User `gorm:"many2many:project_group_administrators;joinForeignKey:ProjectGroupID;joinReferences:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Annotators     []User `gorm:"many2many:project_group_annotators;joinForeignKey:ProjectGroupID;joinReferences:UserID;constraint:OnDelete:CASCADE" json:"-"`

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
	CDBSearchFilter []ConceptDB `gorm:"many2many:project_group_cdb_search_filter;joinForeignKey:ProjectGroupID;joinReferences:ConceptDBID;constraint:OnDelete:CASCADE" json:"-"`

	RequireEntityValidation        bool `gorm:"column:require_entity_validation" json:"require_entity_validation"`
	TrainModelOnSubmit             bool `gorm:"column:train_model_on_submit" json:"train_model_on_submit"`
	AddNewEntities                 bool `gorm:"column:add_new_entities" json:"add_new_entities"`
	RestrictConceptLookup          bool `gorm:"column:restrict_concept_lookup" json:"restrict_concept_lookup"`
	TerminateAvailable             bool `gorm:"column:terminate_available" json:"terminate_available"`
	IrrelevantAvailable            bool `gorm:"column:irrelevant_available" json:"irrelevant_available"`
	EnableEntityAnnotationComments bool `gorm:"column:enable_entity_annotation_comments" json:"enable_entity_annotation_comments"`

	Tasks     []MetaTask `gorm:"many2many:project_group_tasks;joinForeignKey:ProjectGroupID;joinReferences:MetaTaskID;constraint:OnDelete:CASCADE" json:"-"`
	Relations []Relation `gorm:"many2many:project_group_relations;joinForeignKey:ProjectGroupID;joinReferences:RelationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ProjectGroup) TableName() string {
	return "project_groups"
}

// NewProjectGroup returns a group carrying the default project settings
func NewProjectGroup(name string, datasetID uint) *ProjectGroup {
	return &ProjectGroup{
		Name:                     name,
		DatasetID:                datasetID,
		CreateAssociatedProjects: true,
		ProjectStatus:            ProjectStatusAnnotating,
		RequireEntityValidation:  true,
		TrainModelOnSubmit:       true,
		TerminateAvailable:       true,
	}
}

// Validate applies the project rules to the group settings
func (g *ProjectGroup) Validate() error {
	if g.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	p := Project{Name: g.Name}
	g.ApplyTo(&p)
	return p.Validate()
}

// ApplyTo copies the group settings onto a member project. Name, id and
// membership tables are left to the caller.
func (g *ProjectGroup) ApplyTo(p *Project) {
	id := g.ID
	p.GroupID = &id
	p.Description = g.Description
	p.AnnotationGuidelineLink = g.AnnotationGuidelineLink
	p.CreateTime = g.CreateTime
	p.DatasetID = g.DatasetID
	p.CUIs = g.CUIs
	p.CUIsFile = g.CUIsFile
	p.TUIs = g.TUIs
	p.AnnotationClassification = g.AnnotationClassification
	p.ProjectLocked = g.ProjectLocked
	p.ProjectStatus = g.ProjectStatus
	p.ConceptDBID = g.ConceptDBID
	p.VocabID = g.VocabID
	p.ModelPackID = g.ModelPackID
	p.RequireEntityValidation = g.RequireEntityValidation
	p.TrainModelOnSubmit = g.TrainModelOnSubmit
	p.AddNewEntities = g.AddNewEntities
	p.RestrictConceptLookup = g.RestrictConceptLookup
	p.TerminateAvailable = g.TerminateAvailable
	p.IrrelevantAvailable = g.IrrelevantAvailable
	p.EnableEntityAnnotationComments = g.EnableEntityAnnotationComments
}

// MemberProjectName names the project of one annotator of the group
func (g *ProjectGroup) MemberProjectName(username string) string {
	return g.Name + " - " + username
}
