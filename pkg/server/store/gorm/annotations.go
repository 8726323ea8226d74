package gorm

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

var (
	_ store.EntitiesStore        = (*EntitiesStore)(nil)
	_ store.AnnotationsStore     = (*AnnotationsStore)(nil)
	_ store.MetaTasksStore       = (*MetaTasksStore)(nil)
	_ store.MetaTaskValuesStore  = (*MetaTaskValuesStore)(nil)
	_ store.MetaAnnotationsStore = (*MetaAnnotationsStore)(nil)
	_ store.RelationsStore       = (*RelationsStore)(nil)
	_ store.EntityRelationsStore = (*EntityRelationsStore)(nil)
)

// EntitiesStore implements store.EntitiesStore using GORM
type EntitiesStore struct {
	*CRUD[model.Entity]
	db *gorm.DB
}

// NewEntitiesStore creates a new EntitiesStore
func NewEntitiesStore(db *gorm.DB) *EntitiesStore {
	return &EntitiesStore{CRUD: NewCRUD[model.Entity](db), db: db}
}

// GetOrCreate returns the entity with label, creating it if missing
func (s *EntitiesStore) GetOrCreate(label string) (*model.Entity, error) {
	var e model.Entity
	err := s.db.Where(model.Entity{Label: label}).FirstOrCreate(&e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race with a concurrent insert
		err = s.db.Where("label = ?", label).First(&e).Error
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

// AnnotationsStore implements store.AnnotationsStore using GORM
type AnnotationsStore struct {
	*CRUD[model.AnnotatedEntity]
	db *gorm.DB
}

// NewAnnotationsStore creates a new AnnotationsStore
func NewAnnotationsStore(db *gorm.DB) *AnnotationsStore {
	return &AnnotationsStore{CRUD: NewCRUD[model.AnnotatedEntity](db), db: db}
}

func (s *AnnotationsStore) ListForDocument(projectID, documentID uint) ([]model.AnnotatedEntity, error) {
	var annos []model.AnnotatedEntity
	err := s.db.Preload("Entity").
		Where("project_id = ? AND document_id = ?", projectID, documentID).
		Order("start_ind, id").
		Find(&annos).Error
	return annos, err
}

func (s *AnnotationsStore) ListForProject(projectID uint) ([]model.AnnotatedEntity, error) {
	var annos []model.AnnotatedEntity
	err := s.db.Preload("Entity").Preload("User").
		Where("project_id = ?", projectID).
		Order("document_id, start_ind, id").
		Find(&annos).Error
	return annos, err
}

func (s *AnnotationsStore) DeleteForDocument(projectID, documentID uint, onlyUnvalidated bool) (int64, error) {
	q := s.db.Where("project_id = ? AND document_id = ?", projectID, documentID)
	if onlyUnvalidated {
		q = q.Where("validated = ?", false)
	}
	res := q.Delete(&model.AnnotatedEntity{})
	return res.RowsAffected, res.Error
}

func (s *AnnotationsStore) CreateBatch(annos []model.AnnotatedEntity) error {
	if len(annos) == 0 {
		return nil
	}
	return mapErr(s.db.Omit(clause.Associations).CreateInBatches(&annos, 500).Error)
}

// MetaTasksStore implements store.MetaTasksStore using GORM
type MetaTasksStore struct {
	*CRUD[model.MetaTask]
	db *gorm.DB
}

// NewMetaTasksStore creates a new MetaTasksStore
func NewMetaTasksStore(db *gorm.DB) *MetaTasksStore {
	return &MetaTasksStore{CRUD: NewCRUD[model.MetaTask](db, "Values"), db: db}
}

func (s *MetaTasksStore) GetByName(name string) (*model.MetaTask, error) {
	var t model.MetaTask
	if err := s.db.Preload("Values").Where("name = ?", name).First(&t).Error; err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *MetaTasksStore) SetValues(taskID uint, valueIDs []uint) error {
	return replaceJoin(s.db, "meta_task_options", "meta_task_id", taskID, "meta_task_value_id", valueIDs)
}

// MetaTaskValuesStore implements store.MetaTaskValuesStore using GORM
type MetaTaskValuesStore struct {
	*CRUD[model.MetaTaskValue]
	db *gorm.DB
}

// NewMetaTaskValuesStore creates a new MetaTaskValuesStore
func NewMetaTaskValuesStore(db *gorm.DB) *MetaTaskValuesStore {
	return &MetaTaskValuesStore{CRUD: NewCRUD[model.MetaTaskValue](db), db: db}
}

func (s *MetaTaskValuesStore) GetOrCreate(name string) (*model.MetaTaskValue, error) {
	var v model.MetaTaskValue
	if err := s.db.Where(model.MetaTaskValue{Name: name}).FirstOrCreate(&v).Error; err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

// MetaAnnotationsStore implements store.MetaAnnotationsStore using GORM
type MetaAnnotationsStore struct {
	*CRUD[model.MetaAnnotation]
	db *gorm.DB
}

// NewMetaAnnotationsStore creates a new MetaAnnotationsStore
func NewMetaAnnotationsStore(db *gorm.DB) *MetaAnnotationsStore {
	return &MetaAnnotationsStore{CRUD: NewCRUD[model.MetaAnnotation](db), db: db}
}

func (s *MetaAnnotationsStore) ListForAnnotations(annotationIDs []uint) ([]model.MetaAnnotation, error) {
	var metas []model.MetaAnnotation
	if len(annotationIDs) == 0 {
		return metas, nil
	}
	err := s.db.Preload("MetaTask").Preload("MetaTaskValue").Preload("PredictedMetaTaskValue").
		Where("annotated_entity_id IN ?", annotationIDs).
		Order("annotated_entity_id, meta_task_id").
		Find(&metas).Error
	return metas, err
}

func (s *MetaAnnotationsStore) Find(annotationID, taskID uint) (*model.MetaAnnotation, error) {
	var m model.MetaAnnotation
	err := s.db.Where("annotated_entity_id = ? AND meta_task_id = ?", annotationID, taskID).First(&m).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (s *MetaAnnotationsStore) CreateBatch(metas []model.MetaAnnotation) error {
	if len(metas) == 0 {
		return nil
	}
	return mapErr(s.db.Omit(clause.Associations).CreateInBatches(&metas, 500).Error)
}

// RelationsStore implements store.RelationsStore using GORM
type RelationsStore struct {
	*CRUD[model.Relation]
	db *gorm.DB
}

// NewRelationsStore creates a new RelationsStore
func NewRelationsStore(db *gorm.DB) *RelationsStore {
	return &RelationsStore{CRUD: NewCRUD[model.Relation](db), db: db}
}

func (s *RelationsStore) GetOrCreate(label string) (*model.Relation, error) {
	var r model.Relation
	err := s.db.Where(model.Relation{Label: label}).FirstOrCreate(&r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = s.db.Where("label = ?", label).First(&r).Error
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

// EntityRelationsStore implements store.EntityRelationsStore using GORM
type EntityRelationsStore struct {
	*CRUD[model.EntityRelation]
	db *gorm.DB
}

// NewEntityRelationsStore creates a new EntityRelationsStore
func NewEntityRelationsStore(db *gorm.DB) *EntityRelationsStore {
	return &EntityRelationsStore{CRUD: NewCRUD[model.EntityRelation](db), db: db}
}

func (s *EntityRelationsStore) ListForDocument(projectID, documentID uint) ([]model.EntityRelation, error) {
	var rels []model.EntityRelation
	err := s.db.
		Preload("Relation").
		Preload("User").
		Preload("StartEntity").Preload("StartEntity.Entity").
		Preload("EndEntity").Preload("EndEntity.Entity").
		Where("project_id = ? AND document_id = ?", projectID, documentID).
		Order("id").
		Find(&rels).Error
	return rels, err
}
