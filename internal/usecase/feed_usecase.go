package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"topic-orchestrator/internal/cache"
	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
)

const feedCacheTTL = 30 * time.Second

// FeedUsecase owns feed population and the cache-accelerated feed read
// path. It never mutates topic or task state.
type FeedUsecase interface {
	FeedPopulator
	List(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error)
	ListForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.FeedEntry, error)
}

type feedUsecase struct {
	feedRepo domain.FeedRepository
	tx       domain.TransactionManager
	cache    *cache.ResponseCache
	logger   *slog.Logger
}

func NewFeedUsecase(
	feedRepo domain.FeedRepository,
	tx domain.TransactionManager,
	responseCache *cache.ResponseCache,
	logger *slog.Logger,
) FeedUsecase {
	return &feedUsecase{feedRepo: feedRepo, tx: tx, cache: responseCache, logger: logger}
}

func feedCachePrefix(userID string) string {
	return "feed:" + userID + ":"
}

func feedCacheKey(userID string, cursor *uuid.UUID, limit int) string {
	var b strings.Builder
	b.WriteString(feedCachePrefix(userID))
	if cursor != nil {
		b.WriteString(cursor.String())
	}
	fmt.Fprintf(&b, ":%d", limit)
	return b.String()
}

// Populate writes the research summary and its feed entry for a completed
// task. Re-invocation for a task that already produced an entry is a
// detected no-op, so at-least-once completion callbacks never duplicate
// feed content.
func (u *feedUsecase) Populate(ctx context.Context, task *domain.ResearchTask, topic *domain.SuggestedTopic, result *domain.ResearchResult) error {
	existing, err := u.feedRepo.ListByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to check existing feed entries: %w", err)
	}
	if len(existing) > 0 {
		u.logger.Info("feed already populated for task", "task_id", task.ID)
		return nil
	}

	summary := &domain.ResearchSummary{
		ID:         uuid.New(),
		UserID:     task.UserID,
		NotebookID: topic.NotebookID,
		Question:   topic.Topic,
		Answer:     result.Answer,
		Sources:    result.Sources,
		CreatedAt:  time.Now(),
	}
	entry := &domain.FeedEntry{
		ID:         uuid.New(),
		UserID:     task.UserID,
		NotebookID: topic.NotebookID,
		Kind:       domain.FeedKindResearch,
		RefID:      summary.ID,
		TaskID:     &task.ID,
		CreatedAt:  time.Now(),
	}

	err = u.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := u.feedRepo.CreateSummary(ctx, summary); err != nil {
			return fmt.Errorf("failed to store research summary: %w", err)
		}
		created, err := u.feedRepo.CreateEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("failed to create feed entry: %w", err)
		}
		if !created {
			// Lost a race with a concurrent callback; roll the summary back.
			return errDuplicateEntry
		}
		return nil
	})
	if errors.Is(err, errDuplicateEntry) {
		u.logger.Info("feed already populated for task", "task_id", task.ID)
		return nil
	}
	if err != nil {
		return err
	}

	u.cache.InvalidatePrefix(feedCachePrefix(task.UserID))
	u.logger.Info("feed entry created", "task_id", task.ID, "entry_id", entry.ID, "ref_id", summary.ID)
	return nil
}

var errDuplicateEntry = errors.New("feed entry already exists for task")

func (u *feedUsecase) List(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error) {
	key := feedCacheKey(userID, cursor, limit)
	if v, ok := u.cache.Get(key); ok {
		if entries, ok := v.([]*domain.FeedEntry); ok {
			return entries, nil
		}
	}

	entries, err := u.feedRepo.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed: %w", err)
	}

	u.cache.Set(key, entries, feedCacheTTL)
	return entries, nil
}

func (u *feedUsecase) ListForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.FeedEntry, error) {
	entries, err := u.feedRepo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed entries for task: %w", err)
	}
	return entries, nil
}
