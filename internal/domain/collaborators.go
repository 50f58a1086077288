package domain

import "context"

// ResearchExecutor performs the actual research work for a topic string.
// It blocks on network I/O and returns a serializable result or an error.
// It has no knowledge of task or topic identifiers.
type ResearchExecutor interface {
	Research(ctx context.Context, question string) (*ResearchResult, error)
}

// SuggestionSource produces candidate topics with priority scores from a
// unit of ingested content. An empty slice means "no suggestions" and is
// not an error.
type SuggestionSource interface {
	SuggestTopics(ctx context.Context, content ContentUnit, maxTopics int) ([]TopicProposal, error)
}
