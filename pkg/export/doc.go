// Package export converts projects to and from the annotation export
// JSON: one entry per project holding its documents, their annotations
// with meta annotations, and their relations.
//
// Timestamps use TimeFormat. Relations refer to their annotations by
// start index, so an export can be loaded into a deployment whose ids
// differ.
package export
