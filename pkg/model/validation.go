package model

import "fmt"

// ValidationError reports a rejected field value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// All returns every model migrated into the trainer schema, parents first
func All() []interface{} {
	return []interface{}{
		&User{},
		&ConceptDB{},
		&Vocabulary{},
		&MetaCATModel{},
		&ModelPack{},
		&Dataset{},
		&Document{},
		&MetaTaskValue{},
		&MetaTask{},
		&Relation{},
		&ProjectGroup{},
		&Project{},
		&Entity{},
		&AnnotatedEntity{},
		&MetaAnnotation{},
		&EntityRelation{},
		&Concept{},
		&ProjectMetrics{},
		&Task{},
	}
}
