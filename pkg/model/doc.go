// Package model defines the database models for the trainer.
//
// These are GORM models mapping to the PostgreSQL schema in db/migrations.
//
// # Core Models
//
//   - User: annotator and administrator accounts
//   - ConceptDB, Vocabulary, MetaCATModel, ModelPack: uploaded model files
//   - Dataset, Document: texts to annotate
//   - Project: annotation settings, members and model configuration
//   - ProjectGroup: shared settings cloned into one project per annotator
//   - Entity, AnnotatedEntity: concept labels and annotated spans
//   - MetaTask, MetaTaskValue, MetaAnnotation: contextual classifications
//   - Relation, EntityRelation: relations between annotated spans
//   - Concept: searchable index of concept database entries
//   - ProjectMetrics: generated metrics reports
//   - Task: persisted background jobs
//
// # Invariants
//
// A Project uses either a ConceptDB and Vocabulary pair or a ModelPack,
// never both. ConceptDB names start with a lowercase letter and contain
// only alphanumerics, underscores and dashes. Both rules are enforced by
// the Validate methods and return *ValidationError.
package model
