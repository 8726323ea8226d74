package gorm

import (
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Ensure DocumentsStore implements store.DocumentsStore
var _ store.DocumentsStore = (*DocumentsStore)(nil)

// DocumentsStore implements store.DocumentsStore using GORM
type DocumentsStore struct {
	*CRUD[model.Document]
	db *gorm.DB
}

// NewDocumentsStore creates a new DocumentsStore
func NewDocumentsStore(db *gorm.DB) *DocumentsStore {
	return &DocumentsStore{CRUD: NewCRUD[model.Document](db), db: db}
}

func (s *DocumentsStore) ListByDataset(datasetID uint) ([]model.Document, error) {
	var docs []model.Document
	err := s.db.Where("dataset_id = ?", datasetID).Order("id").Find(&docs).Error
	return docs, err
}

func (s *DocumentsStore) GetMany(ids []uint) ([]model.Document, error) {
	var docs []model.Document
	if len(ids) == 0 {
		return docs, nil
	}
	err := s.db.Where("id IN ?", ids).Order("id").Find(&docs).Error
	return docs, err
}

func (s *DocumentsStore) CreateBatch(docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return mapErr(s.db.Omit("Dataset").CreateInBatches(&docs, 500).Error)
}

func (s *DocumentsStore) DeleteByDataset(datasetID uint) (int64, error) {
	res := s.db.Where("dataset_id = ?", datasetID).Delete(&model.Document{})
	return res.RowsAffected, res.Error
}
