package domain

import (
	"time"

	"github.com/google/uuid"
)

// TopicStatus is the lifecycle state of a suggested topic.
type TopicStatus string

const (
	TopicPending     TopicStatus = "pending"
	TopicAccepted    TopicStatus = "accepted"
	TopicRejected    TopicStatus = "rejected"
	TopicResearching TopicStatus = "researching"
	TopicCompleted   TopicStatus = "completed"
	TopicFailed      TopicStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TopicStatus) Terminal() bool {
	return s == TopicRejected || s == TopicCompleted || s == TopicFailed
}

// Valid reports whether s is a known status value.
func (s TopicStatus) Valid() bool {
	switch s {
	case TopicPending, TopicAccepted, TopicRejected, TopicResearching, TopicCompleted, TopicFailed:
		return true
	}
	return false
}

const (
	// MaxTopicLength and MaxContextLength bound model-generated text before storage.
	MaxTopicLength   = 500
	MaxContextLength = 1000
	// MaxSourceContentLength bounds the stored excerpt of the originating content.
	MaxSourceContentLength = 1000
)

// SuggestedTopic is a candidate research question generated from user content.
type SuggestedTopic struct {
	ID            uuid.UUID
	UserID        string
	NotebookID    *uuid.UUID // nil when the topic is not scoped to a notebook
	Topic         string
	Context       string
	PriorityScore float64 // 0.0 - 1.0
	SourceType    string  // "document", "image", "text"
	SourceRef     string  // originating filename or content excerpt
	Status        TopicStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TopicProposal is one suggestion returned by the SuggestionSource boundary.
// It carries no identity; the orchestrator assigns IDs on storage.
type TopicProposal struct {
	Topic         string  `json:"topic"`
	Context       string  `json:"context"`
	PriorityScore float64 `json:"priority_score"`
}

// ContentUnit is one piece of ingested content submitted for suggestion.
type ContentUnit struct {
	Content    string
	SourceType string
	SourceRef  string
}
