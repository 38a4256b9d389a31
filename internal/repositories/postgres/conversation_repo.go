package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"gorm.io/gorm"
)

// TurnRepository is the append-only per-turn log of every call.
type TurnRepository interface {
	Insert(ctx context.Context, t *models.CallTurn) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.CallTurn, error)
}

type turnRepo struct {
	db *gorm.DB
}

func NewTurnRepo(db *gorm.DB) TurnRepository {
	return &turnRepo{db: db}
}

func (r *turnRepo) Insert(ctx context.Context, t *models.CallTurn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *turnRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.CallTurn, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []models.CallTurn
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
