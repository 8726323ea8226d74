// Package store provides storage abstractions for the trainer server.
//
// This package defines interfaces for database operations, allowing the
// endpoints and annotation services to be decoupled from the specific
// database implementation. The gorm subpackage implements them.
//
// # Available Stores
//
//   - CRUDStore: plain list/get/create/update/delete shared by all resources
//   - UsersStore: accounts, lookups by username
//   - ProjectsStore: projects, membership and validated/prepared documents
//   - DocumentsStore: dataset documents
//   - AnnotationsStore, MetaAnnotationsStore, EntityRelationsStore: annotations
//   - ModelPacksStore, ConceptsStore: model files and the concept index
//   - MetricsStore, TasksStore: metrics reports and background jobs
//   - HealthStore: database connectivity
//
// # Usage
//
//	s := gormstore.New(db)
//	project, err := s.WithContext(ctx).Projects().GetFull(id)
//	if err != nil {
//	    if errors.Is(err, store.ErrNotFound) {
//	        // Handle not found
//	    }
//	}
//
// Multi-row writes run in a transaction:
//
//	err := s.Transaction(func(tx store.Store) error {
//	    return tx.Annotations().CreateBatch(annos)
//	})
package store
