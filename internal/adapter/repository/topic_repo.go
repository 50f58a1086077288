package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type topicRepository struct {
	pool *pgxpool.Pool
}

// NewTopicRepository creates the Postgres-backed TopicRepository.
func NewTopicRepository(pool *pgxpool.Pool) domain.TopicRepository {
	return &topicRepository{pool: pool}
}

func (r *topicRepository) Create(ctx context.Context, topic *domain.SuggestedTopic) error {
	query := `
		INSERT INTO suggested_topics
			(id, user_id, notebook_id, topic, context, priority_score, source_type, source_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := executorFrom(ctx, r.pool).Exec(ctx, query,
		topic.ID,
		topic.UserID,
		topic.NotebookID,
		topic.Topic,
		topic.Context,
		topic.PriorityScore,
		topic.SourceType,
		topic.SourceRef,
		topic.Status,
		topic.CreatedAt,
		topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert topic: %w", err)
	}
	return nil
}

func (r *topicRepository) GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.SuggestedTopic, error) {
	query := `
		SELECT id, user_id, notebook_id, topic, context, priority_score, source_type, source_ref, status, created_at, updated_at
		FROM suggested_topics
		WHERE id = $1 AND user_id = $2
	`
	row := executorFrom(ctx, r.pool).QueryRow(ctx, query, id, userID)

	topic, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan topic: %w", err)
	}
	return topic, nil
}

func (r *topicRepository) ListByStatus(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error) {
	query := `
		SELECT id, user_id, notebook_id, topic, context, priority_score, source_type, source_ref, status, created_at, updated_at
		FROM suggested_topics
		WHERE user_id = $1 AND status = $2
		  AND ($3::uuid IS NULL OR notebook_id = $3)
		ORDER BY priority_score DESC, created_at DESC
		LIMIT $4
	`
	rows, err := executorFrom(ctx, r.pool).Query(ctx, query, userID, status, notebookID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []*domain.SuggestedTopic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		topics = append(topics, topic)
	}
	return topics, rows.Err()
}

func (r *topicRepository) TransitionStatus(ctx context.Context, id uuid.UUID, userID string, from, to domain.TopicStatus) (bool, error) {
	query := `
		UPDATE suggested_topics
		SET status = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4 AND status = $5
	`
	tag, err := executorFrom(ctx, r.pool).Exec(ctx, query, to, time.Now(), id, userID, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition topic status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *topicRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.TopicStatus) error {
	query := `
		UPDATE suggested_topics
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := executorFrom(ctx, r.pool).Exec(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set topic status: %w", err)
	}
	return nil
}

func scanTopic(row pgx.Row) (*domain.SuggestedTopic, error) {
	var t domain.SuggestedTopic
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.NotebookID,
		&t.Topic,
		&t.Context,
		&t.PriorityScore,
		&t.SourceType,
		&t.SourceRef,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
