package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates the Postgres-backed TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) domain.TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.ResearchTask) error {
	query := `
		INSERT INTO research_tasks
			(id, topic_id, user_id, status, progress_message, failure_reason, started_at, completed_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	resultBytes, err := marshalResult(task.Result)
	if err != nil {
		return err
	}
	_, err = executorFrom(ctx, r.pool).Exec(ctx, query,
		task.ID,
		task.TopicID,
		task.UserID,
		task.Status,
		task.ProgressMessage,
		task.FailureReason,
		task.StartedAt,
		task.CompletedAt,
		resultBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ResearchTask, error) {
	query := `
		SELECT id, topic_id, user_id, status, progress_message, failure_reason, started_at, completed_at, result
		FROM research_tasks
		WHERE id = $1
	`
	row := executorFrom(ctx, r.pool).QueryRow(ctx, query, id)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return task, nil
}

func (r *taskRepository) FindActiveByTopic(ctx context.Context, topicID uuid.UUID) (*domain.ResearchTask, error) {
	query := `
		SELECT id, topic_id, user_id, status, progress_message, failure_reason, started_at, completed_at, result
		FROM research_tasks
		WHERE topic_id = $1 AND status IN ('queued', 'processing')
		ORDER BY started_at DESC
		LIMIT 1
	`
	row := executorFrom(ctx, r.pool).QueryRow(ctx, query, topicID)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan active task: %w", err)
	}
	return task, nil
}

func (r *taskRepository) FindLatestByTopic(ctx context.Context, topicID uuid.UUID) (*domain.ResearchTask, error) {
	query := `
		SELECT id, topic_id, user_id, status, progress_message, failure_reason, started_at, completed_at, result
		FROM research_tasks
		WHERE topic_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`
	row := executorFrom(ctx, r.pool).QueryRow(ctx, query, topicID)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan latest task: %w", err)
	}
	return task, nil
}

func (r *taskRepository) UpdateProgress(ctx context.Context, id uuid.UUID, status domain.TaskStatus, message string) error {
	// The status guard keeps progress writes off terminal tasks.
	query := `
		UPDATE research_tasks
		SET status = $1, progress_message = $2
		WHERE id = $3 AND status IN ('queued', 'processing')
	`
	_, err := executorFrom(ctx, r.pool).Exec(ctx, query, status, message, id)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return nil
}

func (r *taskRepository) Complete(ctx context.Context, id uuid.UUID, status domain.TaskStatus, result *domain.ResearchResult, failureReason string, completedAt time.Time) (bool, error) {
	resultBytes, err := marshalResult(result)
	if err != nil {
		return false, err
	}
	// Terminal states are monotonic: the guard makes a second completion
	// callback affect zero rows instead of overwriting the first outcome.
	query := `
		UPDATE research_tasks
		SET status = $1, progress_message = $2, failure_reason = $3, result = $4, completed_at = $5
		WHERE id = $6 AND status IN ('queued', 'processing')
	`
	tag, err := executorFrom(ctx, r.pool).Exec(ctx, query,
		status,
		domain.TerminalProgressMessage(status, failureReason),
		failureReason,
		resultBytes,
		completedAt,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func marshalResult(result *domain.ResearchResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal research result: %w", err)
	}
	return b, nil
}

func scanTask(row pgx.Row) (*domain.ResearchTask, error) {
	var (
		t           domain.ResearchTask
		resultBytes []byte
	)
	err := row.Scan(
		&t.ID,
		&t.TopicID,
		&t.UserID,
		&t.Status,
		&t.ProgressMessage,
		&t.FailureReason,
		&t.StartedAt,
		&t.CompletedAt,
		&resultBytes,
	)
	if err != nil {
		return nil, err
	}
	if len(resultBytes) > 0 {
		var result domain.ResearchResult
		if err := json.Unmarshal(resultBytes, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal research result: %w", err)
		}
		t.Result = &result
	}
	return &t, nil
}
