package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// ModelPacksStore abstracts model pack storage
type ModelPacksStore interface {
	CRUDStore[model.ModelPack]

	// GetFull loads the pack with its CDB, Vocab and MetaCAT rows
	GetFull(id uint) (*model.ModelPack, error)

	SetMetaCATs(modelPackID uint, metaCATIDs []uint) error
}

// ConceptsStore abstracts the searchable concept index
type ConceptsStore interface {
	CRUDStore[model.Concept]

	// Upsert inserts or refreshes the concept row of (cdb, cui)
	Upsert(c *model.Concept) error

	// ReplaceForCDB swaps the whole index of a CDB
	ReplaceForCDB(cdbID uint, concepts []model.Concept) error

	DeleteForCDB(cdbID uint) (int64, error)

	// Search matches a case insensitive prefix of the pretty name or an
	// exact CUI, returning at most limit rows per CDB with unique CUIs.
	Search(cdbIDs []uint, query string, limit int) ([]model.Concept, error)

	// GetByCUI returns ErrNotFound if the CDB has no such CUI
	GetByCUI(cdbID uint, cui string) (*model.Concept, error)
}
