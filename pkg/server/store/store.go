package store

import (
	"context"
	"errors"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

// ErrNotFound is returned when a record doesn't exist
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a write violates a uniqueness constraint
var ErrConflict = errors.New("record already exists")

// ListOptions narrows and pages a List call
type ListOptions struct {
	// Filters are equality conditions keyed by column name
	Filters  map[string]interface{}
	Page     int
	PageSize int
}

// CRUDStore is the plain record access shared by every resource
type CRUDStore[T any] interface {
	// List returns the matching page and the total number of matches
	List(opts ListOptions) ([]T, int64, error)

	// Get returns ErrNotFound if no record has the id
	Get(id uint) (*T, error)

	// Create returns ErrConflict on duplicate unique keys
	Create(v *T) error

	Update(v *T) error

	// Delete returns ErrNotFound if no record has the id
	Delete(id uint) error
}

// Store gives access to every record store, optionally bound to a
// context or a transaction.
type Store interface {
	// WithContext returns a Store whose queries observe ctx
	WithContext(ctx context.Context) Store

	// Transaction runs fn against a transactional Store. If fn returns an
	// error the transaction is rolled back.
	Transaction(fn func(Store) error) error

	Users() UsersStore
	Projects() ProjectsStore
	ProjectGroups() ProjectGroupsStore
	Datasets() CRUDStore[model.Dataset]
	Documents() DocumentsStore
	Entities() EntitiesStore
	Annotations() AnnotationsStore
	MetaTasks() MetaTasksStore
	MetaTaskValues() MetaTaskValuesStore
	MetaAnnotations() MetaAnnotationsStore
	Relations() RelationsStore
	EntityRelations() EntityRelationsStore
	ConceptDBs() CRUDStore[model.ConceptDB]
	Vocabs() CRUDStore[model.Vocabulary]
	MetaCATModels() CRUDStore[model.MetaCATModel]
	ModelPacks() ModelPacksStore
	Concepts() ConceptsStore
	Metrics() MetricsStore
	Tasks() TasksStore
	Health() HealthStore
}
