package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a research task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TerminalProgressMessage renders the human-readable progress line stored
// when a task reaches a terminal state.
func TerminalProgressMessage(status TaskStatus, reason string) string {
	if status == TaskFailed {
		return "Research failed: " + reason
	}
	return "Research completed"
}

// ResearchTask is one unit of background research work, 1:1 with an
// accepted topic while non-terminal.
type ResearchTask struct {
	ID              uuid.UUID
	TopicID         uuid.UUID
	UserID          string
	Status          TaskStatus
	ProgressMessage string
	FailureReason   string
	StartedAt       time.Time
	CompletedAt     *time.Time // nil until terminal
	Result          *ResearchResult
}

// ResearchResult is the opaque payload produced by the ResearchExecutor.
// The executor has no knowledge of task or topic identifiers.
type ResearchResult struct {
	Answer  string           `json:"answer"`
	Sources []ResearchSource `json:"sources"`
}

// ResearchSource is one citation gathered during research.
type ResearchSource struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ResearchSummary is the durable record of a completed research run,
// referenced from the feed.
type ResearchSummary struct {
	ID         uuid.UUID
	UserID     string
	NotebookID *uuid.UUID
	Question   string
	Answer     string
	Sources    []ResearchSource
	CreatedAt  time.Time
}
