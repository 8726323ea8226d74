// Package metrics builds annotation reports over projects: work done per
// user, a summary of the correctly annotated concepts and every
// annotation as a row. When the project model can be loaded, its links
// are scored per CUI against the annotations.
//
// Reports are calculated by a background task and written as JSON under
// the media root.
package metrics
