package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/procrastihator/internal/metrics"
)

// Task is the handle of one running response.
type Task struct {
	ID        string
	Kind      string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's error once Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Cancel asks the task to stop; it still reports through Done.
func (t *Task) Cancel() { t.cancel() }

// TaskInfo describes an in-flight task for status endpoints.
type TaskInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// Tracker runs response tasks off the dispatch loop and keeps their handles
// until they finish.
type Tracker struct {
	ctx    context.Context
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewTracker returns a tracker whose tasks inherit ctx.
func NewTracker(ctx context.Context, logger *slog.Logger) *Tracker {
	return &Tracker{
		ctx:    ctx,
		logger: logger,
		tasks:  make(map[string]*Task),
	}
}

// Start launches fn in its own goroutine. Failures are logged and counted,
// never propagated.
func (tr *Tracker) Start(kind string, fn func(context.Context) error) *Task {
	ctx, cancel := context.WithCancel(tr.ctx)
	t := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	tr.mu.Lock()
	tr.tasks[t.ID] = t
	tr.mu.Unlock()

	tr.wg.Add(1)
	metrics.ResponsesInFlight.Inc()
	go func() {
		defer tr.wg.Done()
		defer cancel()

		err := runGuarded(ctx, fn)
		elapsed := time.Since(t.StartedAt)

		tr.mu.Lock()
		delete(tr.tasks, t.ID)
		tr.mu.Unlock()

		metrics.ResponsesInFlight.Dec()
		metrics.ResponseDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
		switch {
		case err == nil:
			metrics.Responses.WithLabelValues(kind, "success").Inc()
			tr.logger.Info("response finished", "task", t.ID, "kind", kind, "elapsed", elapsed)
		case errors.Is(err, context.Canceled):
			metrics.Responses.WithLabelValues(kind, "cancelled").Inc()
			tr.logger.Info("response cancelled", "task", t.ID, "kind", kind)
		default:
			metrics.Responses.WithLabelValues(kind, "error").Inc()
			tr.logger.Error("response failed", "task", t.ID, "kind", kind, "err", err)
		}

		t.err = err
		close(t.done)
	}()
	return t
}

func runGuarded(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("response panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// InFlight lists running tasks, oldest first.
func (tr *Tracker) InFlight() []TaskInfo {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]TaskInfo, 0, len(tr.tasks))
	for _, t := range tr.tasks {
		out = append(out, TaskInfo{ID: t.ID, Kind: t.Kind, StartedAt: t.StartedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CancelAll cancels every running task.
func (tr *Tracker) CancelAll() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, t := range tr.tasks {
		t.cancel()
	}
}

// Wait blocks until every started task has finished or ctx ends.
func (tr *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
