package usecase

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- in-memory repositories ---

type memTopicRepo struct {
	mu     sync.Mutex
	topics map[uuid.UUID]*domain.SuggestedTopic
}

func newMemTopicRepo() *memTopicRepo {
	return &memTopicRepo{topics: make(map[uuid.UUID]*domain.SuggestedTopic)}
}

func (r *memTopicRepo) Create(ctx context.Context, topic *domain.SuggestedTopic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *topic
	r.topics[topic.ID] = &cp
	return nil
}

func (r *memTopicRepo) GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.SuggestedTopic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTopicRepo) ListByStatus(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SuggestedTopic
	for _, t := range r.topics {
		if t.UserID != userID || t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTopicRepo) TransitionStatus(ctx context.Context, id uuid.UUID, userID string, from, to domain.TopicStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok || t.UserID != userID || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return true, nil
}

func (r *memTopicRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.TopicStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[id]; ok {
		t.Status = status
		t.UpdatedAt = time.Now()
	}
	return nil
}

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.ResearchTask
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[uuid.UUID]*domain.ResearchTask)}
}

func (r *memTaskRepo) Create(ctx context.Context, task *domain.ResearchTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *memTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ResearchTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) FindActiveByTopic(ctx context.Context, topicID uuid.UUID) (*domain.ResearchTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.TopicID == topicID && !t.Status.Terminal() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTaskRepo) FindLatestByTopic(ctx context.Context, topicID uuid.UUID) (*domain.ResearchTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.ResearchTask
	for _, t := range r.tasks {
		if t.TopicID != topicID {
			continue
		}
		if latest == nil || t.StartedAt.After(latest.StartedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memTaskRepo) UpdateProgress(ctx context.Context, id uuid.UUID, status domain.TaskStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && !t.Status.Terminal() {
		t.Status = status
		t.ProgressMessage = message
	}
	return nil
}

func (r *memTaskRepo) Complete(ctx context.Context, id uuid.UUID, status domain.TaskStatus, result *domain.ResearchResult, failureReason string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = status
	t.Result = result
	t.FailureReason = failureReason
	t.ProgressMessage = domain.TerminalProgressMessage(status, failureReason)
	t.CompletedAt = &completedAt
	return true, nil
}

func (r *memTaskRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

type memFeedRepo struct {
	mu        sync.Mutex
	summaries map[uuid.UUID]*domain.ResearchSummary
	entries   []*domain.FeedEntry
}

func newMemFeedRepo() *memFeedRepo {
	return &memFeedRepo{summaries: make(map[uuid.UUID]*domain.ResearchSummary)}
}

func (r *memFeedRepo) CreateSummary(ctx context.Context, summary *domain.ResearchSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *summary
	r.summaries[summary.ID] = &cp
	return nil
}

func (r *memFeedRepo) CreateEntry(ctx context.Context, entry *domain.FeedEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.TaskID != nil {
		for _, e := range r.entries {
			if e.TaskID != nil && *e.TaskID == *entry.TaskID {
				return false, nil
			}
		}
	}
	cp := *entry
	r.entries = append(r.entries, &cp)
	return true, nil
}

func (r *memFeedRepo) ListByUser(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FeedEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memFeedRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.FeedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FeedEntry
	for _, e := range r.entries {
		if e.TaskID != nil && *e.TaskID == taskID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memFeedRepo) entryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type memPrefRepo struct {
	mu    sync.Mutex
	prefs map[string]*domain.SuggestionPreference
}

func newMemPrefRepo() *memPrefRepo {
	return &memPrefRepo{prefs: make(map[string]*domain.SuggestionPreference)}
}

func (r *memPrefRepo) GetOrCreate(ctx context.Context, userID string) (*domain.SuggestionPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prefs[userID]; ok {
		cp := *p
		return &cp, nil
	}
	p := domain.DefaultPreference(userID)
	r.prefs[userID] = p
	cp := *p
	return &cp, nil
}

func (r *memPrefRepo) Update(ctx context.Context, pref *domain.SuggestionPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *pref
	r.prefs[pref.UserID] = &cp
	return nil
}

func (r *memTopicRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[uuid.UUID]*domain.SuggestedTopic, len(r.topics))
	for k, v := range r.topics {
		cp := *v
		saved[k] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.topics = saved
	}
}

func (r *memTaskRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[uuid.UUID]*domain.ResearchTask, len(r.tasks))
	for k, v := range r.tasks {
		cp := *v
		saved[k] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.tasks = saved
	}
}

func (r *memFeedRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	savedSummaries := make(map[uuid.UUID]*domain.ResearchSummary, len(r.summaries))
	for k, v := range r.summaries {
		cp := *v
		savedSummaries[k] = &cp
	}
	savedEntries := make([]*domain.FeedEntry, len(r.entries))
	for i, e := range r.entries {
		cp := *e
		savedEntries[i] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.summaries = savedSummaries
		r.entries = savedEntries
	}
}

// --- other stubs ---

// noopTxManager runs the function without a real transaction.
type noopTxManager struct{}

func (noopTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// rollbackTxManager mimics transactional semantics over the in-memory
// repositories: it snapshots them before fn and restores the snapshots when
// fn errors.
type rollbackTxManager struct {
	repos []interface{ snapshot() func() }
}

func (m *rollbackTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	restores := make([]func(), 0, len(m.repos))
	for _, r := range m.repos {
		restores = append(restores, r.snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// failingTaskRepo wraps the in-memory task repo with an injectable Create
// error.
type failingTaskRepo struct {
	*memTaskRepo
	createErr error
}

func (r *failingTaskRepo) Create(ctx context.Context, task *domain.ResearchTask) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.memTaskRepo.Create(ctx, task)
}

// recordingDispatcher captures dispatched tasks without executing them.
type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []*domain.ResearchTask
	questions  []string
}

func (d *recordingDispatcher) Dispatch(task *domain.ResearchTask, question string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, task)
	d.questions = append(d.questions, question)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

// stubPopulator records Populate calls.
type stubPopulator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *stubPopulator) Populate(ctx context.Context, task *domain.ResearchTask, topic *domain.SuggestedTopic, result *domain.ResearchResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

// stubSuggestionSource returns canned proposals.
type stubSuggestionSource struct {
	proposals []domain.TopicProposal
	err       error
}

func (s *stubSuggestionSource) SuggestTopics(ctx context.Context, content domain.ContentUnit, maxTopics int) ([]domain.TopicProposal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.proposals) > maxTopics {
		return s.proposals[:maxTopics], nil
	}
	return s.proposals, nil
}

func pendingTopic(userID string) *domain.SuggestedTopic {
	now := time.Now()
	return &domain.SuggestedTopic{
		ID:            uuid.New(),
		UserID:        userID,
		Topic:         "How do tidal forces shape exoplanet orbits?",
		Context:       "The uploaded notes discuss orbital mechanics.",
		PriorityScore: 0.8,
		SourceType:    "document",
		SourceRef:     "orbits.pdf",
		Status:        domain.TopicPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
