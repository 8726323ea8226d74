package deployment

import (
	"time"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

// FormatVersion is bumped whenever the archive layout changes
const FormatVersion = 1

// Archive entry names
const (
	ManifestFile    = "manifest.json"
	AnnotationsFile = "annotations.json"
	filesDir        = "files"
)

// Manifest describes every row an archive recreates. Ids are those of
// the exporting deployment and only relate entries to each other.
type Manifest struct {
	Version    int         `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	ConceptDBs []ConceptDB `json:"concept_dbs"`
	Vocabs     []Vocab     `json:"vocabs"`
	ModelPacks []ModelPack `json:"model_packs"`
	Datasets   []Dataset   `json:"datasets"`
	MetaTasks  []MetaTask  `json:"meta_tasks"`
	Relations  []string    `json:"relations"`
	Projects   []Project   `json:"projects"`
}

// ConceptDB is a standalone concept database file
type ConceptDB struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	File           string `json:"file"`
	UseForTraining bool   `json:"use_for_training"`
}

// Vocab is a standalone vocab file
type Vocab struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	File string `json:"file"`
}

// ModelPack is a model pack zip. Its CDB and Vocab rows are recreated
// from the zip, so they are listed here rather than under ConceptDBs.
type ModelPack struct {
	ID        uint     `json:"id"`
	Name      string   `json:"name"`
	File      string   `json:"file"`
	ConceptDB *uint    `json:"concept_db"`
	Vocab     *uint    `json:"vocab"`
	MetaCATs  []string `json:"meta_cats"`
}

// Dataset is a dataset file. DocumentIDs lists the exported document ids
// in file row order.
type Dataset struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	File        string `json:"file"`
	DocumentIDs []uint `json:"document_ids"`
}

// MetaTask is a meta task with its options
type MetaTask struct {
	Name            string   `json:"name"`
	Values          []string `json:"values"`
	Default         string   `json:"default,omitempty"`
	Description     string   `json:"description"`
	Ordering        int      `json:"ordering"`
	PredictionModel string   `json:"prediction_model,omitempty"`
}

// Project carries the project settings with their old foreign keys, plus
// the associations needed to rebuild it.
type Project struct {
	model.Project

	Members            []string `json:"members"`
	Tasks              []string `json:"tasks"`
	RelationLabels     []string `json:"relations"`
	CDBSearchFilter    []uint   `json:"cdb_search_filter"`
	ValidatedDocuments []uint   `json:"validated_documents"`
	PreparedDocuments  []uint   `json:"prepared_documents"`
	CUIsArchiveFile    string   `json:"cuis_archive_file,omitempty"`
}

// ImportSummary counts what an import created
type ImportSummary struct {
	Directory   string        `json:"directory"`
	Projects    map[uint]uint `json:"projects"`
	ConceptDBs  int           `json:"concept_dbs"`
	Vocabs      int           `json:"vocabs"`
	ModelPacks  int           `json:"model_packs"`
	Datasets    int           `json:"datasets"`
	Documents   int           `json:"documents"`
	Annotations int           `json:"annotations"`
	Skipped     []string      `json:"skipped_users,omitempty"`
}
