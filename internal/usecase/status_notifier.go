package usecase

import (
	"sync"
	"time"

	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
)

// StatusUpdate is one push-mode message, emitted once per transition.
type StatusUpdate struct {
	TaskID          uuid.UUID
	TopicStatus     domain.TopicStatus
	TaskStatus      domain.TaskStatus
	ProgressMessage string
	CompletedAt     *time.Time
}

const subscriberBuffer = 8

// StatusNotifier fans task transitions out to subscribers. Slow subscribers
// drop updates rather than block the lifecycle; polling remains available
// as the fallback delivery mode.
type StatusNotifier struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[int]chan StatusUpdate
	next int
}

func NewStatusNotifier() *StatusNotifier {
	return &StatusNotifier{subs: make(map[uuid.UUID]map[int]chan StatusUpdate)}
}

// Subscribe registers for updates on one task. The returned cancel func is
// safe to call more than once and after the task closed.
func (n *StatusNotifier) Subscribe(taskID uuid.UUID) (<-chan StatusUpdate, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan StatusUpdate, subscriberBuffer)
	if n.subs[taskID] == nil {
		n.subs[taskID] = make(map[int]chan StatusUpdate)
	}
	id := n.next
	n.next++
	n.subs[taskID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if chans, ok := n.subs[taskID]; ok {
			if c, ok := chans[id]; ok {
				delete(chans, id)
				close(c)
			}
			if len(chans) == 0 {
				delete(n.subs, taskID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers an update to every subscriber of the task without
// blocking.
func (n *StatusNotifier) Publish(update StatusUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[update.TaskID] {
		select {
		case ch <- update:
		default:
		}
	}
}

// CloseTask closes all subscriber channels for a task after its terminal
// update has been published.
func (n *StatusNotifier) CloseTask(taskID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[taskID] {
		close(ch)
	}
	delete(n.subs, taskID)
}
