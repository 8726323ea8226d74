// Package jobs runs background work such as metrics reports, concept
// imports and document preparation.
//
// Tasks are persisted rows, so queued work survives a restart. Each named
// queue is served by its own worker goroutines; handlers are looked up by
// task name. Tasks still marked running when a process starts were
// interrupted and are failed by Recover.
package jobs
