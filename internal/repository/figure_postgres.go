package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	pgxV5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cast-server/internal/model"
)

const (
	listStoryboardFiguresQuery = `
        SELECT id, user_id, filepath, short_desc, long_desc, in_storyboard, group_id, created_at
        FROM image_data
        WHERE user_id = $1 AND in_storyboard = TRUE AND long_desc <> ''
        ORDER BY created_at, id
    `
	getFigureByIDQuery = `
        SELECT id, user_id, filepath, short_desc, long_desc, in_storyboard, group_id, created_at
        FROM image_data
        WHERE user_id = $1 AND id = $2
    `
	updateFigureLongDescQuery = `
        UPDATE image_data SET long_desc = $3 WHERE user_id = $1 AND id = $2
    `
	listGroupsQuery = `
        SELECT id, user_id, number, name, description, created_at
        FROM groups
        WHERE user_id = $1
        ORDER BY number
    `
)

// postgresFigureRepository реализует FigureRepository поверх PostgreSQL.
type postgresFigureRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresFigureRepository создает новый экземпляр репозитория фигур.
func NewPostgresFigureRepository(db *pgxpool.Pool, logger *zap.Logger) FigureRepository {
	return &postgresFigureRepository{db: db, logger: logger.Named("FigureRepo")}
}

func (r *postgresFigureRepository) ListStoryboardFigures(ctx context.Context, userID uuid.UUID) ([]model.FigureRecord, error) {
	var figures []model.FigureRecord
	err := pgxscan.Select(ctx, r.db, &figures, listStoryboardFiguresQuery, userID)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return []model.FigureRecord{}, nil
		}
		r.logger.Error("Error listing storyboard figures", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list storyboard figures for user %s: %w", userID, err)
	}
	return figures, nil
}

func (r *postgresFigureRepository) GetByID(ctx context.Context, userID, figureID uuid.UUID) (*model.FigureRecord, error) {
	var figure model.FigureRecord
	err := pgxscan.Get(ctx, r.db, &figure, getFigureByIDQuery, userID, figureID)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, model.ErrFigureNotFound
		}
		r.logger.Error("Error getting figure by id", zap.String("figure_id", figureID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get figure %s: %w", figureID, err)
	}
	return &figure, nil
}

func (r *postgresFigureRepository) UpdateLongDescription(ctx context.Context, userID, figureID uuid.UUID, longDesc string) error {
	commandTag, err := r.db.Exec(ctx, updateFigureLongDescQuery, userID, figureID, longDesc)
	if err != nil {
		r.logger.Error("Error updating figure description", zap.String("figure_id", figureID.String()), zap.Error(err))
		return fmt.Errorf("failed to update description of figure %s: %w", figureID, err)
	}
	if commandTag.RowsAffected() == 0 {
		return model.ErrFigureNotFound
	}
	r.logger.Info("Figure description updated", zap.String("figure_id", figureID.String()))
	return nil
}

func (r *postgresFigureRepository) ListGroups(ctx context.Context, userID uuid.UUID) ([]model.GroupRecord, error) {
	var groups []model.GroupRecord
	err := pgxscan.Select(ctx, r.db, &groups, listGroupsQuery, userID)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return []model.GroupRecord{}, nil
		}
		r.logger.Error("Error listing groups", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list groups for user %s: %w", userID, err)
	}
	return groups, nil
}
