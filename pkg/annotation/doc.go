// Package annotation synchronises stored annotations with the project
// models: it pre-annotates documents with the cached model, records manual
// annotations and concepts, and trains models from validated documents.
//
// Character offsets are byte offsets into the document text.
package annotation
