package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// DocumentsStore abstracts document storage
type DocumentsStore interface {
	CRUDStore[model.Document]

	// ListByDataset returns the dataset documents ordered by id
	ListByDataset(datasetID uint) ([]model.Document, error)

	// GetMany returns the documents with the given ids, ordered by id
	GetMany(ids []uint) ([]model.Document, error)

	CreateBatch(docs []model.Document) error

	// DeleteByDataset removes every document of a dataset
	DeleteByDataset(datasetID uint) (int64, error)
}
