package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Queue names
const (
	QueueDefault  = "default"
	QueueMetrics  = "metrics"
	QueueConcepts = "concepts"
	QueuePrepare  = "prepare"
)

// DefaultPollInterval is how often idle workers look for new tasks
const DefaultPollInterval = time.Second

// ErrUnknownHandler is recorded on tasks whose name has no handler
var ErrUnknownHandler = errors.New("no handler registered for task")

// Handler runs one task. The payload is the JSON given to Enqueue.
type Handler func(ctx context.Context, task *model.Task) error

// Options configures a Runner
type Options struct {
	// Workers is the number of goroutines per queue
	Workers      int
	Queues       []string
	PollInterval time.Duration
	Logger       *zap.Logger
	Metrics      *Metrics
}

// Runner executes persisted tasks on a fixed set of worker goroutines
type Runner struct {
	store   store.Store
	workers int
	queues  []string
	poll    time.Duration
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.RWMutex
	handlers map[string]Handler
	wake     chan struct{}
}

// New creates a Runner. Tasks wait in the store until Run is called.
func New(st store.Store, opts Options) *Runner {
	r := &Runner{
		store:    st,
		workers:  opts.Workers,
		queues:   opts.Queues,
		poll:     opts.PollInterval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		handlers: map[string]Handler{},
		wake:     make(chan struct{}, 1),
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if len(r.queues) == 0 {
		r.queues = []string{QueueDefault, QueueMetrics, QueueConcepts, QueuePrepare}
	}
	if r.poll <= 0 {
		r.poll = DefaultPollInterval
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r
}

// Register sets the handler of tasks called name
func (r *Runner) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Runner) handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Enqueue persists a task on queue with payload encoded as JSON
func (r *Runner) Enqueue(ctx context.Context, queue, name string, payload interface{}) (*model.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of %s: %w", name, err)
	}
	t := &model.Task{Queue: queue, Name: name, Payload: data}
	if err := r.store.WithContext(ctx).Tasks().Enqueue(t); err != nil {
		return nil, err
	}
	r.metrics.enqueued.WithLabelValues(queue, name).Inc()
	r.logger.Debug("enqueued task", zap.String("task", t.ID), zap.String("queue", queue), zap.String("name", name))

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return t, nil
}

// Recover marks tasks left running by a previous process as failed
func (r *Runner) Recover(ctx context.Context) (int64, error) {
	n, err := r.store.WithContext(ctx).Tasks().FailRunning()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("marked interrupted tasks as failed", zap.Int64("count", n))
	}
	return n, nil
}

// Run starts the workers and blocks until ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, queue := range r.queues {
		for i := 0; i < r.workers; i++ {
			queue := queue
			g.Go(func() error {
				r.work(ctx, queue)
				return nil
			})
		}
	}
	r.logger.Info("job workers started", zap.Strings("queues", r.queues), zap.Int("workers", r.workers))
	err := g.Wait()
	r.logger.Info("job workers stopped")
	return err
}

func (r *Runner) work(ctx context.Context, queue string) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		for {
			ran, err := r.runNext(ctx, queue)
			if err != nil {
				r.logger.Error("failed to claim task", zap.String("queue", queue), zap.Error(err))
			}
			if !ran || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-ticker.C:
		}
	}
}

// RunPending runs the queued tasks of every queue on the calling
// goroutine until none are left, returning how many ran.
func (r *Runner) RunPending(ctx context.Context) (int, error) {
	total := 0
	for _, queue := range r.queues {
		for {
			ran, err := r.runNext(ctx, queue)
			if err != nil {
				return total, err
			}
			if !ran {
				break
			}
			total++
		}
	}
	return total, nil
}

// runNext claims and runs the oldest queued task of queue. It reports
// false when the queue is empty.
func (r *Runner) runNext(ctx context.Context, queue string) (bool, error) {
	tasks := r.store.WithContext(ctx).Tasks()
	t, err := tasks.ClaimNext(queue)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger := r.logger.With(zap.String("task", t.ID), zap.String("queue", queue), zap.String("name", t.Name))
	start := time.Now()
	runErr := r.execute(ctx, t)
	r.metrics.duration.WithLabelValues(queue, t.Name).Observe(time.Since(start).Seconds())

	status := model.TaskStatusComplete
	if runErr != nil {
		status = model.TaskStatusFailed
		logger.Error("task failed", zap.Error(runErr))
	} else {
		logger.Info("task complete", zap.Duration("took", time.Since(start)))
	}
	r.metrics.finished.WithLabelValues(queue, t.Name, status).Inc()

	// The outcome is recorded even when ctx was cancelled mid-task
	if err := r.store.Tasks().Finish(t.ID, runErr); err != nil {
		return true, fmt.Errorf("failed to record outcome of task %s: %w", t.ID, err)
	}
	return true, nil
}

func (r *Runner) execute(ctx context.Context, t *model.Task) (err error) {
	h, ok := r.handler(t.Name)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownHandler, t.Name)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return h(ctx, t)
}

// Decode unmarshals the payload of a task
func Decode(t *model.Task, v interface{}) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("invalid payload for task %s: %w", t.Name, err)
	}
	return nil
}
