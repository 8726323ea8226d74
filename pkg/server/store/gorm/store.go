package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Ensure Store implements store.Store
var _ store.Store = (*Store)(nil)

// Store implements store.Store using GORM
type Store struct {
	db *gorm.DB
}

// New creates a new Store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithContext returns a Store whose queries observe ctx
func (s *Store) WithContext(ctx context.Context) store.Store {
	return &Store{db: s.db.WithContext(ctx)}
}

// Transaction wraps operations in a database transaction.
func (s *Store) Transaction(fn func(store.Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Users() store.UsersStore { return NewUsersStore(s.db) }

func (s *Store) Projects() store.ProjectsStore { return NewProjectsStore(s.db) }

func (s *Store) ProjectGroups() store.ProjectGroupsStore { return NewProjectGroupsStore(s.db) }

func (s *Store) Datasets() store.CRUDStore[model.Dataset] { return NewCRUD[model.Dataset](s.db) }

func (s *Store) Documents() store.DocumentsStore { return NewDocumentsStore(s.db) }

func (s *Store) Entities() store.EntitiesStore { return NewEntitiesStore(s.db) }

func (s *Store) Annotations() store.AnnotationsStore { return NewAnnotationsStore(s.db) }

func (s *Store) MetaTasks() store.MetaTasksStore { return NewMetaTasksStore(s.db) }

func (s *Store) MetaTaskValues() store.MetaTaskValuesStore { return NewMetaTaskValuesStore(s.db) }

func (s *Store) MetaAnnotations() store.MetaAnnotationsStore { return NewMetaAnnotationsStore(s.db) }

func (s *Store) Relations() store.RelationsStore { return NewRelationsStore(s.db) }

func (s *Store) EntityRelations() store.EntityRelationsStore { return NewEntityRelationsStore(s.db) }

func (s *Store) ConceptDBs() store.CRUDStore[model.ConceptDB] { return NewCRUD[model.ConceptDB](s.db) }

func (s *Store) Vocabs() store.CRUDStore[model.Vocabulary] { return NewCRUD[model.Vocabulary](s.db) }

func (s *Store) MetaCATModels() store.CRUDStore[model.MetaCATModel] {
	return NewCRUD[model.MetaCATModel](s.db)
}

func (s *Store) ModelPacks() store.ModelPacksStore { return NewModelPacksStore(s.db) }

func (s *Store) Concepts() store.ConceptsStore { return NewConceptsStore(s.db) }

func (s *Store) Metrics() store.MetricsStore { return NewMetricsStore(s.db) }

func (s *Store) Tasks() store.TasksStore { return NewTasksStore(s.db) }

func (s *Store) Health() store.HealthStore { return NewHealthStore(s.db) }

// mapErr translates gorm errors into the store sentinels
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

// replaceJoin makes refIDs the complete set of rows of a join table for
// one owner.
func replaceJoin(db *gorm.DB, table, ownerCol string, ownerID uint, refCol string, refIDs []uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM "+table+" WHERE "+ownerCol+" = ?", ownerID).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
		for _, refID := range refIDs {
			if err := insertJoin(tx, table, ownerCol, ownerID, refCol, refID); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertJoin(db *gorm.DB, table, ownerCol string, ownerID uint, refCol string, refID uint) error {
	err := db.Exec(
		"INSERT INTO "+table+" ("+ownerCol+", "+refCol+") VALUES (?, ?) ON CONFLICT DO NOTHING",
		ownerID, refID,
	).Error
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func deleteJoin(db *gorm.DB, table, ownerCol string, ownerID uint, refCol string, refID uint) error {
	return db.Exec("DELETE FROM "+table+" WHERE "+ownerCol+" = ? AND "+refCol+" = ?", ownerID, refID).Error
}

func pluckJoin(db *gorm.DB, table, ownerCol string, ownerID uint, refCol string) ([]uint, error) {
	var ids []uint
	err := db.Table(table).Where(ownerCol+" = ?", ownerID).Order(refCol).Pluck(refCol, &ids).Error
	return ids, err
}
