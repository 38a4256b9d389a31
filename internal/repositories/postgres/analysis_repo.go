package postgres

import (
	"context"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnalysisRepository interface {
	Upsert(ctx context.Context, a *models.CallAnalysis) error
}

type analysisRepo struct {
	db *gorm.DB
}

func NewAnalysisRepo(db *gorm.DB) AnalysisRepository {
	return &analysisRepo{db: db}
}

func (r *analysisRepo) Upsert(ctx context.Context, a *models.CallAnalysis) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"phone_number", "interest_status", "confidence", "reasoning", "key_indicators", "updated_at"}),
		}).
		Create(a).Error
}
