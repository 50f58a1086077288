package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type feedRepository struct {
	pool *pgxpool.Pool
}

// NewFeedRepository creates the Postgres-backed FeedRepository.
func NewFeedRepository(pool *pgxpool.Pool) domain.FeedRepository {
	return &feedRepository{pool: pool}
}

func (r *feedRepository) CreateSummary(ctx context.Context, summary *domain.ResearchSummary) error {
	query := `
		INSERT INTO research_summaries (id, user_id, notebook_id, question, answer, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	sourcesBytes, err := json.Marshal(summary.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	_, err = executorFrom(ctx, r.pool).Exec(ctx, query,
		summary.ID,
		summary.UserID,
		summary.NotebookID,
		summary.Question,
		summary.Answer,
		sourcesBytes,
		summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert research summary: %w", err)
	}
	return nil
}

func (r *feedRepository) CreateEntry(ctx context.Context, entry *domain.FeedEntry) (bool, error) {
	// feed_entries carries a partial unique index on task_id, so a second
	// entry for the same research task is a conflict, not a duplicate row.
	query := `
		INSERT INTO feed_entries (id, user_id, notebook_id, kind, ref_id, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) WHERE task_id IS NOT NULL DO NOTHING
	`
	tag, err := executorFrom(ctx, r.pool).Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.NotebookID,
		entry.Kind,
		entry.RefID,
		entry.TaskID,
		entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert feed entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *feedRepository) ListByUser(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error) {
	query := `
		SELECT id, user_id, notebook_id, kind, ref_id, task_id, created_at
		FROM feed_entries
		WHERE user_id = $1
		  AND ($2::uuid IS NULL OR created_at < (SELECT created_at FROM feed_entries WHERE id = $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := executorFrom(ctx, r.pool).Query(ctx, query, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *feedRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.FeedEntry, error) {
	query := `
		SELECT id, user_id, notebook_id, kind, ref_id, task_id, created_at
		FROM feed_entries
		WHERE task_id = $1
	`
	rows, err := executorFrom(ctx, r.pool).Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed entries by task: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*domain.FeedEntry, error) {
	var entries []*domain.FeedEntry
	for rows.Next() {
		var e domain.FeedEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.NotebookID, &e.Kind, &e.RefID, &e.TaskID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
