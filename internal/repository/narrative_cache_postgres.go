package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pgxV5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cast-server/internal/model"
)

const (
	getNarrativeQuery = `
        SELECT user_id, narrative, recommended_order, theme, categories,
               sequence_justification, degraded, updated_at
        FROM narrative_cache
        WHERE user_id = $1
    `
	upsertNarrativeQuery = `
        INSERT INTO narrative_cache
        (user_id, narrative, recommended_order, theme, categories,
         sequence_justification, degraded, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            narrative = EXCLUDED.narrative,
            recommended_order = EXCLUDED.recommended_order,
            theme = EXCLUDED.theme,
            categories = EXCLUDED.categories,
            sequence_justification = EXCLUDED.sequence_justification,
            degraded = EXCLUDED.degraded,
            updated_at = NOW()
    `
	clearNarrativeQuery = `DELETE FROM narrative_cache WHERE user_id = $1`
)

// postgresNarrativeCacheRepository хранит один результат на пользователя.
type postgresNarrativeCacheRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresNarrativeCacheRepository создает новый экземпляр кеша нарративов.
func NewPostgresNarrativeCacheRepository(db *pgxpool.Pool, logger *zap.Logger) NarrativeCacheRepository {
	return &postgresNarrativeCacheRepository{db: db, logger: logger.Named("NarrativeCacheRepo")}
}

func (r *postgresNarrativeCacheRepository) Get(ctx context.Context, userID uuid.UUID) (*model.NarrativeResult, error) {
	var (
		result        model.NarrativeResult
		categoriesRaw []byte
	)
	err := r.db.QueryRow(ctx, getNarrativeQuery, userID).Scan(
		&result.UserID,
		&result.Narrative,
		&result.RecommendedOrder,
		&result.Theme,
		&categoriesRaw,
		&result.SequenceJustification,
		&result.Degraded,
		&result.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Error getting cached narrative", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get cached narrative for user %s: %w", userID, err)
	}

	if len(categoriesRaw) > 0 {
		if err := json.Unmarshal(categoriesRaw, &result.Categories); err != nil {
			return nil, fmt.Errorf("failed to decode categories for user %s: %w", userID, err)
		}
	}
	return &result, nil
}

func (r *postgresNarrativeCacheRepository) Upsert(ctx context.Context, result *model.NarrativeResult) error {
	categoriesRaw, err := json.Marshal(result.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	_, err = r.db.Exec(ctx, upsertNarrativeQuery,
		result.UserID,
		result.Narrative,
		result.RecommendedOrder,
		result.Theme,
		categoriesRaw,
		result.SequenceJustification,
		result.Degraded,
	)
	if err != nil {
		r.logger.Error("Error upserting narrative", zap.String("user_id", result.UserID.String()), zap.Error(err))
		return fmt.Errorf("failed to upsert narrative for user %s: %w", result.UserID, err)
	}

	r.logger.Info("Narrative cached", zap.String("user_id", result.UserID.String()))
	return nil
}

func (r *postgresNarrativeCacheRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	// DELETE без проверки RowsAffected: очистка отсутствующей записи не ошибка
	_, err := r.db.Exec(ctx, clearNarrativeQuery, userID)
	if err != nil {
		r.logger.Error("Error clearing narrative cache", zap.String("user_id", userID.String()), zap.Error(err))
		return fmt.Errorf("failed to clear narrative cache for user %s: %w", userID, err)
	}
	return nil
}
