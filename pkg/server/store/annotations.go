package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// EntitiesStore abstracts concept label storage
type EntitiesStore interface {
	CRUDStore[model.Entity]

	// GetOrCreate returns the entity with label, creating it if missing
	GetOrCreate(label string) (*model.Entity, error)
}

// AnnotationsStore abstracts annotated entity storage
type AnnotationsStore interface {
	CRUDStore[model.AnnotatedEntity]

	// ListForDocument returns the annotations of a document in a project
	// ordered by start index, with their entities loaded.
	ListForDocument(projectID, documentID uint) ([]model.AnnotatedEntity, error)

	// ListForProject returns every annotation of a project ordered by
	// document then start index, with entities and users loaded.
	ListForProject(projectID uint) ([]model.AnnotatedEntity, error)

	// DeleteForDocument removes annotations of a document in a project.
	// With onlyUnvalidated, validated annotations are kept.
	DeleteForDocument(projectID, documentID uint, onlyUnvalidated bool) (int64, error)

	CreateBatch(annos []model.AnnotatedEntity) error
}

// MetaTasksStore abstracts meta task storage
type MetaTasksStore interface {
	CRUDStore[model.MetaTask]

	// GetByName returns ErrNotFound for unknown names
	GetByName(name string) (*model.MetaTask, error)

	SetValues(taskID uint, valueIDs []uint) error
}

// MetaTaskValuesStore abstracts meta task option storage
type MetaTaskValuesStore interface {
	CRUDStore[model.MetaTaskValue]

	GetOrCreate(name string) (*model.MetaTaskValue, error)
}

// MetaAnnotationsStore abstracts meta annotation storage
type MetaAnnotationsStore interface {
	CRUDStore[model.MetaAnnotation]

	// ListForAnnotations returns the meta annotations of the given
	// annotations with their task and values loaded.
	ListForAnnotations(annotationIDs []uint) ([]model.MetaAnnotation, error)

	// Find returns ErrNotFound if the annotation has no value for the task
	Find(annotationID, taskID uint) (*model.MetaAnnotation, error)

	CreateBatch(metas []model.MetaAnnotation) error
}

// RelationsStore abstracts relation label storage
type RelationsStore interface {
	CRUDStore[model.Relation]

	GetOrCreate(label string) (*model.Relation, error)
}

// EntityRelationsStore abstracts entity relation storage
type EntityRelationsStore interface {
	CRUDStore[model.EntityRelation]

	// ListForDocument returns the relations of a document in a project
	// with their label and both annotations loaded.
	ListForDocument(projectID, documentID uint) ([]model.EntityRelation, error)
}
