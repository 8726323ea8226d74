package gorm

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// CRUD implements store.CRUDStore for any model using GORM
type CRUD[T any] struct {
	db      *gorm.DB
	preload []string
}

// NewCRUD creates a new CRUD store. Every read preloads the named associations.
func NewCRUD[T any](db *gorm.DB, preload ...string) *CRUD[T] {
	return &CRUD[T]{db: db, preload: preload}
}

// List returns the matching page and the total number of matches
func (s *CRUD[T]) List(opts store.ListOptions) ([]T, int64, error) {
	return listPage[T](s.db.Model(new(T)), s.preload, opts)
}

// Get returns store.ErrNotFound if no record has the id
func (s *CRUD[T]) Get(id uint) (*T, error) {
	var v T
	q := s.db
	for _, p := range s.preload {
		q = q.Preload(p)
	}
	if err := q.First(&v, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

// Create inserts the record without touching its associations
func (s *CRUD[T]) Create(v *T) error {
	return mapErr(s.db.Omit(clause.Associations).Create(v).Error)
}

// Update saves every column of the record without touching its associations
func (s *CRUD[T]) Update(v *T) error {
	return mapErr(s.db.Omit(clause.Associations).Save(v).Error)
}

// Delete returns store.ErrNotFound if no record has the id
func (s *CRUD[T]) Delete(id uint) error {
	res := s.db.Delete(new(T), id)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func listPage[T any](q *gorm.DB, preload []string, opts store.ListOptions) ([]T, int64, error) {
	if len(opts.Filters) > 0 {
		q = q.Where(opts.Filters)
	}
	q = q.Session(&gorm.Session{})

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	find := q
	for _, p := range preload {
		find = find.Preload(p)
	}
	if opts.PageSize > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		find = find.Offset((page - 1) * opts.PageSize).Limit(opts.PageSize)
	}

	var items []T
	if err := find.Order("id").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, count, nil
}
