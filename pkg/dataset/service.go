package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Service keeps datasets, their uploaded files and their documents in step
type Service struct {
	store  store.Store
	media  media.Root
	limits Limits
	logger *zap.Logger
}

// NewService creates a new dataset service
func NewService(st store.Store, root media.Root, limits Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, media: root, limits: limits, logger: logger}
}

// CheckFileName accepts only csv uploads
func CheckFileName(name string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return nil
	case ".xlsx":
		return &model.ValidationError{
			Field:   "original_file",
			Message: "xlsx datasets are not supported, please save the file as .csv",
		}
	}
	return &model.ValidationError{Field: "original_file", Message: "Please make sure the file is a .csv format"}
}

// CreateDataset stores the uploaded file under the media root and creates
// the dataset with one document per row. Nothing is stored if the file is
// rejected.
func (s *Service) CreateDataset(ctx context.Context, ds *model.Dataset, fileName string, r io.Reader) ([]model.Document, error) {
	if strings.TrimSpace(ds.Name) == "" {
		return nil, &model.ValidationError{Field: "name", Message: "name is required"}
	}
	rows, data, err := s.read(fileName, r)
	if err != nil {
		return nil, err
	}
	ref, err := s.storeFile(fileName, data)
	if err != nil {
		return nil, err
	}
	ds.OriginalFile = ref

	var docs []model.Document
	err = s.store.WithContext(ctx).Transaction(func(tx store.Store) error {
		if err := tx.Datasets().Create(ds); err != nil {
			return err
		}
		docs = Documents(ds.ID, rows)
		return tx.Documents().CreateBatch(docs)
	})
	if err != nil {
		_ = s.media.Remove(ref)
		return nil, err
	}
	s.logger.Info("created dataset",
		zap.Uint("dataset", ds.ID), zap.String("name", ds.Name), zap.Int("documents", len(docs)))
	return docs, nil
}

// ReplaceFile swaps the file of a dataset. The documents of the old file,
// and with them their annotations, are deleted and the new rows created.
func (s *Service) ReplaceFile(ctx context.Context, datasetID uint, fileName string, r io.Reader) (*model.Dataset, error) {
	rows, data, err := s.read(fileName, r)
	if err != nil {
		return nil, err
	}
	ref, err := s.storeFile(fileName, data)
	if err != nil {
		return nil, err
	}

	var ds *model.Dataset
	var oldRef string
	err = s.store.WithContext(ctx).Transaction(func(tx store.Store) error {
		var err error
		ds, err = tx.Datasets().Get(datasetID)
		if err != nil {
			return fmt.Errorf("dataset %d: %w", datasetID, err)
		}
		n, err := tx.Documents().DeleteByDataset(ds.ID)
		if err != nil {
			return err
		}
		s.logger.Debug("deleted orphan documents", zap.Uint("dataset", ds.ID), zap.Int64("count", n))

		oldRef = ds.OriginalFile
		ds.OriginalFile = ref
		if err := tx.Datasets().Update(ds); err != nil {
			return err
		}
		return tx.Documents().CreateBatch(Documents(ds.ID, rows))
	})
	if err != nil {
		_ = s.media.Remove(ref)
		return nil, err
	}
	if err := s.media.Remove(oldRef); err != nil {
		s.logger.Warn("failed to remove replaced dataset file", zap.String("file", oldRef), zap.Error(err))
	}
	return ds, nil
}

// DeleteDataset removes the dataset, its documents and its file
func (s *Service) DeleteDataset(ctx context.Context, id uint) error {
	st := s.store.WithContext(ctx)
	ds, err := st.Datasets().Get(id)
	if err != nil {
		return err
	}
	if err := st.Datasets().Delete(id); err != nil {
		return err
	}
	if err := s.media.Remove(ds.OriginalFile); err != nil {
		s.logger.Warn("failed to remove dataset file", zap.String("file", ds.OriginalFile), zap.Error(err))
	}
	return nil
}

// Documents turns parsed rows into unsaved documents of a dataset
func Documents(datasetID uint, rows []Row) []model.Document {
	docs := make([]model.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, model.Document{Name: row.Name, Text: row.Text, DatasetID: datasetID})
	}
	return docs
}

func (s *Service) read(fileName string, r io.Reader) ([]Row, []byte, error) {
	if err := CheckFileName(fileName); err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset file: %w", err)
	}
	rows, err := ParseCSV(bytes.NewReader(data), s.limits)
	if err != nil {
		return nil, nil, err
	}
	return rows, data, nil
}

// storeFile writes the upload under datasets/ and returns its media
// reference.
func (s *Service) storeFile(fileName string, data []byte) (string, error) {
	return s.media.Save("datasets", fileName, bytes.NewReader(data))
}
