package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TopicRepository owns SuggestedTopic records.
type TopicRepository interface {
	Create(ctx context.Context, topic *SuggestedTopic) error

	// GetByID retrieves a topic scoped to a user.
	// Returns nil, nil if not found.
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*SuggestedTopic, error)

	// ListByStatus returns topics for a user in the given status, ordered
	// by priority score descending then creation time descending.
	ListByStatus(ctx context.Context, userID string, notebookID *uuid.UUID, status TopicStatus, limit int) ([]*SuggestedTopic, error)

	// TransitionStatus atomically flips a topic from one status to another.
	// Returns false (and no error) when the topic was not in the expected
	// status, which is how racing callers lose.
	TransitionStatus(ctx context.Context, id uuid.UUID, userID string, from, to TopicStatus) (bool, error)

	// SetStatus writes a status unconditionally. Only the lifecycle
	// manager calls this, and only for topics it already owns a task for.
	SetStatus(ctx context.Context, id uuid.UUID, status TopicStatus) error
}

// TaskRepository owns ResearchTask records.
type TaskRepository interface {
	Create(ctx context.Context, task *ResearchTask) error

	// GetByID returns nil, nil if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*ResearchTask, error)

	// FindActiveByTopic returns the non-terminal task for a topic, or
	// nil, nil if every task for the topic is terminal or none exists.
	FindActiveByTopic(ctx context.Context, topicID uuid.UUID) (*ResearchTask, error)

	// FindLatestByTopic returns the most recent task for a topic in any
	// status, or nil, nil if none exists.
	FindLatestByTopic(ctx context.Context, topicID uuid.UUID) (*ResearchTask, error)

	// UpdateProgress records a phase transition on a non-terminal task.
	// Writes against terminal tasks are silently dropped.
	UpdateProgress(ctx context.Context, id uuid.UUID, status TaskStatus, message string) error

	// Complete transitions a task to a terminal state. Returns false when
	// the task was already terminal, so duplicate callbacks surface as
	// no-ops rather than overwrites.
	Complete(ctx context.Context, id uuid.UUID, status TaskStatus, result *ResearchResult, failureReason string, completedAt time.Time) (bool, error)
}

// FeedRepository owns FeedEntry creation and research summaries.
type FeedRepository interface {
	CreateSummary(ctx context.Context, summary *ResearchSummary) error

	// CreateEntry inserts a feed entry. When the entry carries a TaskID
	// that already produced an entry, the insert is a detected no-op and
	// false is returned.
	CreateEntry(ctx context.Context, entry *FeedEntry) (bool, error)

	// ListByUser returns entries newest first, starting after the cursor
	// entry when cursor is non-nil.
	ListByUser(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*FeedEntry, error)

	// ListByTask returns the entries produced by one research task.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*FeedEntry, error)
}

// PreferenceRepository owns suggestion preferences.
type PreferenceRepository interface {
	// GetOrCreate returns the stored preference for a user, creating the
	// default record on first access.
	GetOrCreate(ctx context.Context, userID string) (*SuggestionPreference, error)

	Update(ctx context.Context, pref *SuggestionPreference) error
}

// TransactionManager defines the interface for handling database transactions.
type TransactionManager interface {
	// RunInTx executes the given function within a transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
