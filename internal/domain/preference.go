package domain

import "time"

// Suggestion preference bounds.
const (
	MinSuggestionCount = 1
	MaxSuggestionCount = 5
)

// SuggestionPreference controls how suggestions are generated for a user.
type SuggestionPreference struct {
	UserID           string
	AutoSuggest      bool
	SuggestionCount  int     // max topics per ingestion, 1-5
	MinPriorityScore float64 // 0.0-1.0 threshold below which proposals are dropped
	PreferredDomains []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DefaultPreference returns the preference applied to users who never
// configured one.
func DefaultPreference(userID string) *SuggestionPreference {
	now := time.Now()
	return &SuggestionPreference{
		UserID:           userID,
		AutoSuggest:      true,
		SuggestionCount:  3,
		MinPriorityScore: 0.5,
		PreferredDomains: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
