package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// TasksStore abstracts the persisted background job queue
type TasksStore interface {
	Enqueue(t *model.Task) error

	// Get returns ErrNotFound for unknown ids
	Get(id string) (*model.Task, error)

	// ClaimNext marks the oldest queued task of the queue as running and
	// returns it. Returns ErrNotFound when the queue is empty.
	ClaimNext(queue string) (*model.Task, error)

	// Finish records the outcome of a running task
	Finish(id string, runErr error) error

	// FailRunning marks tasks left running by a previous process as failed
	FailRunning() (int64, error)

	// Delete removes a task that is not running
	Delete(id string) error

	List(queue, status string) ([]model.Task, error)
}
