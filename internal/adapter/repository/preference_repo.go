package repository

import (
	"context"
	"errors"
	"fmt"

	"topic-orchestrator/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type preferenceRepository struct {
	pool *pgxpool.Pool
}

// NewPreferenceRepository creates the Postgres-backed PreferenceRepository.
func NewPreferenceRepository(pool *pgxpool.Pool) domain.PreferenceRepository {
	return &preferenceRepository{pool: pool}
}

func (r *preferenceRepository) GetOrCreate(ctx context.Context, userID string) (*domain.SuggestionPreference, error) {
	query := `
		SELECT user_id, auto_suggest, suggestion_count, min_priority_score, preferred_domains, created_at, updated_at
		FROM suggestion_preferences
		WHERE user_id = $1
	`
	row := executorFrom(ctx, r.pool).QueryRow(ctx, query, userID)

	var pref domain.SuggestionPreference
	err := row.Scan(
		&pref.UserID,
		&pref.AutoSuggest,
		&pref.SuggestionCount,
		&pref.MinPriorityScore,
		&pref.PreferredDomains,
		&pref.CreatedAt,
		&pref.UpdatedAt,
	)
	if err == nil {
		return &pref, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to scan preferences: %w", err)
	}

	created := domain.DefaultPreference(userID)
	insert := `
		INSERT INTO suggestion_preferences
			(user_id, auto_suggest, suggestion_count, min_priority_score, preferred_domains, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err = executorFrom(ctx, r.pool).Exec(ctx, insert,
		created.UserID,
		created.AutoSuggest,
		created.SuggestionCount,
		created.MinPriorityScore,
		created.PreferredDomains,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create default preferences: %w", err)
	}
	return created, nil
}

func (r *preferenceRepository) Update(ctx context.Context, pref *domain.SuggestionPreference) error {
	query := `
		UPDATE suggestion_preferences
		SET auto_suggest = $1, suggestion_count = $2, min_priority_score = $3, preferred_domains = $4, updated_at = $5
		WHERE user_id = $6
	`
	_, err := executorFrom(ctx, r.pool).Exec(ctx, query,
		pref.AutoSuggest,
		pref.SuggestionCount,
		pref.MinPriorityScore,
		pref.PreferredDomains,
		pref.UpdatedAt,
		pref.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	return nil
}
