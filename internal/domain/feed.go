package domain

import (
	"time"

	"github.com/google/uuid"
)

// FeedKind identifies the rendering type of a feed entry. The set is closed;
// readers dispatch on it with one handler per variant.
type FeedKind string

const (
	FeedKindChunk     FeedKind = "chunk"
	FeedKindSummary   FeedKind = "summary"
	FeedKindQA        FeedKind = "qa"
	FeedKindFlashcard FeedKind = "flashcard"
	FeedKindResearch  FeedKind = "research"
)

// Valid reports whether k is a known feed kind.
func (k FeedKind) Valid() bool {
	switch k {
	case FeedKindChunk, FeedKindSummary, FeedKindQA, FeedKindFlashcard, FeedKindResearch:
		return true
	}
	return false
}

// FeedEntry is a feed-visible pointer to produced content. For research
// entries RefID points at the ResearchSummary; TaskID records which task
// produced it and carries a uniqueness constraint so population is
// at-most-once per task.
type FeedEntry struct {
	ID         uuid.UUID
	UserID     string
	NotebookID *uuid.UUID
	Kind       FeedKind
	RefID      uuid.UUID
	TaskID     *uuid.UUID // set only for research entries
	CreatedAt  time.Time
}
