package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"topic-orchestrator/internal/cache"
	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
)

const topicCacheTTL = 15 * time.Second

// ErrInvalidPreference is returned when a preference update is out of range.
var ErrInvalidPreference = errors.New("invalid preference value")

// PreferenceUpdate carries a partial preference change. Nil fields are left
// untouched.
type PreferenceUpdate struct {
	AutoSuggest      *bool
	SuggestionCount  *int
	MinPriorityScore *float64
	PreferredDomains *[]string
}

// SuggestUsecase turns ingested content into stored pending topics and
// serves the topic read path.
type SuggestUsecase interface {
	Generate(ctx context.Context, userID string, notebookID *uuid.UUID, content domain.ContentUnit) ([]*domain.SuggestedTopic, error)
	ListSuggestions(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error)
	GetPreferences(ctx context.Context, userID string) (*domain.SuggestionPreference, error)
	UpdatePreferences(ctx context.Context, userID string, update PreferenceUpdate) (*domain.SuggestionPreference, error)
}

type suggestUsecase struct {
	topicRepo domain.TopicRepository
	prefRepo  domain.PreferenceRepository
	source    domain.SuggestionSource
	cache     *cache.ResponseCache
	logger    *slog.Logger
}

func NewSuggestUsecase(
	topicRepo domain.TopicRepository,
	prefRepo domain.PreferenceRepository,
	source domain.SuggestionSource,
	responseCache *cache.ResponseCache,
	logger *slog.Logger,
) SuggestUsecase {
	return &suggestUsecase{
		topicRepo: topicRepo,
		prefRepo:  prefRepo,
		source:    source,
		cache:     responseCache,
		logger:    logger,
	}
}

func topicCachePrefix(userID string) string {
	return "topics:" + userID + ":"
}

// Generate asks the suggestion source for proposals and stores the ones
// that clear the user's preference threshold. No proposals is a normal
// outcome, not an error.
func (u *suggestUsecase) Generate(ctx context.Context, userID string, notebookID *uuid.UUID, content domain.ContentUnit) ([]*domain.SuggestedTopic, error) {
	pref, err := u.prefRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if !pref.AutoSuggest {
		return nil, nil
	}

	proposals, err := u.source.SuggestTopics(ctx, content, pref.SuggestionCount)
	if err != nil {
		return nil, fmt.Errorf("suggestion source failed: %w", err)
	}

	now := time.Now()
	var stored []*domain.SuggestedTopic
	for _, p := range proposals {
		if p.PriorityScore < pref.MinPriorityScore {
			continue
		}
		topic := &domain.SuggestedTopic{
			ID:            uuid.New(),
			UserID:        userID,
			NotebookID:    notebookID,
			Topic:         truncateRunes(p.Topic, domain.MaxTopicLength),
			Context:       truncateRunes(p.Context, domain.MaxContextLength),
			PriorityScore: clampScore(p.PriorityScore),
			SourceType:    content.SourceType,
			SourceRef:     truncateRunes(content.SourceRef, domain.MaxSourceContentLength),
			Status:        domain.TopicPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := u.topicRepo.Create(ctx, topic); err != nil {
			return nil, fmt.Errorf("failed to store suggested topic: %w", err)
		}
		stored = append(stored, topic)
	}

	u.cache.InvalidatePrefix(topicCachePrefix(userID))
	u.logger.Info("generated topic suggestions", "user_id", userID, "proposed", len(proposals), "stored", len(stored))
	return stored, nil
}

func (u *suggestUsecase) ListSuggestions(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error) {
	key := fmt.Sprintf("%s%s:%v:%d", topicCachePrefix(userID), status, notebookID, limit)
	if v, ok := u.cache.Get(key); ok {
		if topics, ok := v.([]*domain.SuggestedTopic); ok {
			return topics, nil
		}
	}

	topics, err := u.topicRepo.ListByStatus(ctx, userID, notebookID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	u.cache.Set(key, topics, topicCacheTTL)
	return topics, nil
}

func (u *suggestUsecase) GetPreferences(ctx context.Context, userID string) (*domain.SuggestionPreference, error) {
	pref, err := u.prefRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return pref, nil
}

func (u *suggestUsecase) UpdatePreferences(ctx context.Context, userID string, update PreferenceUpdate) (*domain.SuggestionPreference, error) {
	if update.SuggestionCount != nil {
		if *update.SuggestionCount < domain.MinSuggestionCount || *update.SuggestionCount > domain.MaxSuggestionCount {
			return nil, fmt.Errorf("%w: suggestion_count must be between %d and %d",
				ErrInvalidPreference, domain.MinSuggestionCount, domain.MaxSuggestionCount)
		}
	}
	if update.MinPriorityScore != nil {
		if *update.MinPriorityScore < 0.0 || *update.MinPriorityScore > 1.0 {
			return nil, fmt.Errorf("%w: min_priority_score must be between 0.0 and 1.0", ErrInvalidPreference)
		}
	}

	pref, err := u.prefRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	if update.AutoSuggest != nil {
		pref.AutoSuggest = *update.AutoSuggest
	}
	if update.SuggestionCount != nil {
		pref.SuggestionCount = *update.SuggestionCount
	}
	if update.MinPriorityScore != nil {
		pref.MinPriorityScore = *update.MinPriorityScore
	}
	if update.PreferredDomains != nil {
		pref.PreferredDomains = *update.PreferredDomains
	}
	pref.UpdatedAt = time.Now()

	if err := u.prefRepo.Update(ctx, pref); err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	return pref, nil
}

func clampScore(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
