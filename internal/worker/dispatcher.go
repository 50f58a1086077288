package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxPerUser  = 3
	defaultExecTimeout = 5 * time.Minute
	// resolveTimeout bounds the terminal-state write, which must not run
	// under the already-expired execution context.
	resolveTimeout = 10 * time.Second
)

// TaskResolver receives dispatch outcomes. Every dispatched task resolves
// to exactly one terminal callback; faults and timeouts are converted to
// OnTaskFailed rather than escaping the worker.
type TaskResolver interface {
	OnTaskStarted(ctx context.Context, taskID uuid.UUID)
	OnTaskCompleted(ctx context.Context, taskID uuid.UUID, result *domain.ResearchResult) error
	OnTaskFailed(ctx context.Context, taskID uuid.UUID, reason string) error
}

// Dispatcher runs research tasks on a bounded per-user worker pool. The
// concurrency cap is per user so one user accepting many topics cannot
// starve another; excess tasks queue on the user's semaphore instead of
// blocking the accept call.
type Dispatcher struct {
	executor    domain.ResearchExecutor
	resolver    TaskResolver
	logger      *slog.Logger
	maxPerUser  int64
	execTimeout time.Duration

	mu        sync.Mutex
	userSlots map[string]*semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxPerUser overrides the per-user concurrent task cap.
func WithMaxPerUser(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxPerUser = int64(n)
		}
	}
}

// WithExecutionTimeout overrides the hard research timeout.
func WithExecutionTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.execTimeout = t
		}
	}
}

func NewDispatcher(executor domain.ResearchExecutor, resolver TaskResolver, logger *slog.Logger, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		executor:    executor,
		resolver:    resolver,
		logger:      logger,
		maxPerUser:  defaultMaxPerUser,
		execTimeout: defaultExecTimeout,
		userSlots:   make(map[string]*semaphore.Weighted),
		baseCtx:     ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch submits a task for execution and returns immediately.
func (d *Dispatcher) Dispatch(task *domain.ResearchTask, question string) {
	d.wg.Add(1)
	go d.run(task, question)
}

func (d *Dispatcher) run(task *domain.ResearchTask, question string) {
	defer d.wg.Done()

	sem := d.slotsFor(task.UserID)
	if err := sem.Acquire(d.baseCtx, 1); err != nil {
		d.resolveFailed(task.ID, "service shutting down before research started")
		return
	}
	defer sem.Release(1)

	ctx, cancel := context.WithTimeout(d.baseCtx, d.execTimeout)
	defer cancel()

	d.resolver.OnTaskStarted(ctx, task.ID)
	d.logger.Info("executing research task", "task_id", task.ID, "user_id", task.UserID)

	result, err := d.execute(ctx, question)
	if err != nil {
		reason := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			reason = domain.ReasonTimeout
		}
		d.resolveFailed(task.ID, reason)
		return
	}

	rctx, rcancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer rcancel()
	if err := d.resolver.OnTaskCompleted(rctx, task.ID, result); err != nil {
		d.logger.Error("failed to resolve completed task", "task_id", task.ID, "error", err)
	}
}

// execute invokes the research executor, converting panics into errors so
// no fault can leave a task non-terminal.
func (d *Dispatcher) execute(ctx context.Context, question string) (result *domain.ResearchResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("research executor panicked: %v", p)
		}
	}()
	return d.executor.Research(ctx, question)
}

func (d *Dispatcher) resolveFailed(taskID uuid.UUID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	if err := d.resolver.OnTaskFailed(ctx, taskID, reason); err != nil {
		d.logger.Error("failed to resolve failed task", "task_id", taskID, "error", err)
	}
}

func (d *Dispatcher) slotsFor(userID string) *semaphore.Weighted {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.userSlots[userID]
	if !ok {
		sem = semaphore.NewWeighted(d.maxPerUser)
		d.userSlots[userID] = sem
	}
	return sem
}

// Shutdown cancels queued and in-flight research and waits for every
// dispatched task to resolve, or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
