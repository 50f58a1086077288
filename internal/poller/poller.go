// Package poller implements the client-side status polling state machine:
// idle until started, polling on a cancellable ticker, stopped for good on
// the first terminal status. Backoff and termination are the client's
// responsibility, so the poller stops itself rather than relying on the
// server.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"topic-orchestrator/internal/usecase"

	"github.com/google/uuid"
)

// State of the poller.
type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateTerminal State = "terminal"
	StateStopped  State = "stopped"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 2 * time.Second

// StatusFunc fetches the current status of a task, typically over HTTP.
type StatusFunc func(ctx context.Context, taskID uuid.UUID) (*usecase.StatusOutput, error)

// Poller drives repeated status queries for one task.
type Poller struct {
	fetch    StatusFunc
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	updates chan *usecase.StatusOutput
}

func New(fetch StatusFunc, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetch:    fetch,
		interval: interval,
		logger:   logger,
		state:    StateIdle,
		updates:  make(chan *usecase.StatusOutput, 16),
	}
}

// State returns the current poller state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Updates delivers each fetched status. The channel closes when the poller
// reaches terminal state or is stopped.
func (p *Poller) Updates() <-chan *usecase.StatusOutput {
	return p.updates
}

// Start begins polling the task. Calling Start on a non-idle poller is a
// no-op.
func (p *Poller) Start(ctx context.Context, taskID uuid.UUID) {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return
	}
	pctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = StatePolling
	p.mu.Unlock()

	go p.loop(pctx, taskID)
}

// Stop cancels an in-progress poll loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePolling && p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) loop(ctx context.Context, taskID uuid.UUID) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.updates)

	// One immediate poll before the first tick.
	if done := p.pollOnce(ctx, taskID); done {
		return
	}

	for {
		select {
		case <-ctx.Done():
			p.setState(StateStopped)
			return
		case <-ticker.C:
			if done := p.pollOnce(ctx, taskID); done {
				return
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, taskID uuid.UUID) bool {
	status, err := p.fetch(ctx, taskID)
	if err != nil {
		if ctx.Err() != nil {
			p.setState(StateStopped)
			return true
		}
		p.logger.Warn("status poll failed", "task_id", taskID, "error", err)
		return false
	}

	select {
	case p.updates <- status:
	default:
	}

	if status.TaskStatus.Terminal() {
		p.setState(StateTerminal)
		return true
	}
	return false
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
