package model

import (
	"regexp"
	"time"
)

var conceptDBNameRgx = regexp.MustCompile(`^[a-z][A-Za-z0-9_-]*$`)

// ConceptDB is an uploaded concept database file
type ConceptDB struct {
	ID             uint   `gorm:"column:id;primaryKey" json:"id"`
	Name           string `gorm:"column:name;size:100" json:"name"`
	CDBFile        string `gorm:"column:cdb_file;not null" json:"cdb_file"`
	UseForTraining bool   `gorm:"column:use_for_training" json:"use_for_training"`
}

func (ConceptDB) TableName() string {
	return "concept_dbs"
}

// Validate checks the concept database name rule
func (c *ConceptDB) Validate() error {
	return ValidateConceptDBName(c.Name)
}

// ValidateConceptDBName requires a leading lowercase letter followed by
// alphanumerics, underscores or dashes.
func ValidateConceptDBName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if name[0] < 'a' || name[0] > 'z' {
		return &ValidationError{Field: "name", Message: "Name must start with a lowercase letter"}
	}
	if !conceptDBNameRgx.MatchString(name) {
		return &ValidationError{Field: "name", Message: "Name must contain only alphanumeric characters and underscores"}
	}
	return nil
}

// Vocabulary is an uploaded vocab file
type Vocabulary struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	Name      string `gorm:"column:name;size:100" json:"name"`
	VocabFile string `gorm:"column:vocab_file;not null" json:"vocab_file"`
}

func (Vocabulary) TableName() string {
	return "vocabularies"
}

// MetaCATModel is an unpacked MetaCAT model directory
type MetaCATModel struct {
	ID         uint   `gorm:"column:id;primaryKey" json:"id"`
	Name       string `gorm:"column:name;size:100" json:"name"`
	MetaCATDir string `gorm:"column:meta_cat_dir;not null" json:"meta_cat_dir"`
}

func (MetaCATModel) TableName() string {
	return "meta_cat_models"
}

// ModelPack bundles a CDB, a Vocab and MetaCAT models in one zip
type ModelPack struct {
	ID            uint           `gorm:"column:id;primaryKey" json:"id"`
	Name          string         `gorm:"column:name;size:100" json:"name"`
	ModelPackFile string         `gorm:"column:model_pack;not null" json:"model_pack"`
	ConceptDBID   *uint          `gorm:"column:concept_db_id" json:"concept_db"`
	ConceptDB     *ConceptDB     `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	VocabID       *uint          `gorm:"column:vocab_id" json:"vocab"`
	Vocab         *Vocabulary    `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	MetaCATs      []MetaCATModel `gorm:"many2many:model_pack_meta_cats;joinForeignKey:ModelPackID;joinReferences:MetaCATModelID;constraint:OnDelete:CASCADE" json:"-"`
	LastModified  time.Time      `gorm:"column:last_modified;autoUpdateTime" json:"last_modified"`
}

func (ModelPack) TableName() string {
	return "model_packs"
}

// Concept is a searchable row indexed from a concept database
type Concept struct {
	ID           uint   `gorm:"column:id;primaryKey" json:"id"`
	CUI          string `gorm:"column:cui;size:100;index" json:"cui"`
	PrettyName   string `gorm:"column:pretty_name;size:300;index" json:"pretty_name"`
	TypeIDs      string `gorm:"column:type_ids" json:"type_ids"`
	SemanticType string `gorm:"column:semantic_type" json:"semantic_type"`
	Desc         string `gorm:"column:description" json:"desc"`
	Synonyms     string `gorm:"column:synonyms" json:"synonyms"`
	CDBID        uint   `gorm:"column:cdb_id;index" json:"cdb"`
}

func (Concept) TableName() string {
	return "concepts"
}
