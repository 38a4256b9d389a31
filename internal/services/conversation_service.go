package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	pgrepo "github.com/rajmehta89/call-agent-backend/internal/repositories/postgres"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"gorm.io/datatypes"
)

// TurnLogService appends each spoken line of a call to the relational turn log.
type TurnLogService interface {
	Append(ctx context.Context, sessionID, role, content string, meta map[string]any) (*models.CallTurn, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.CallTurn, error)
}

type turnLogService struct {
	turns pgrepo.TurnRepository
}

func NewTurnLogService(turns pgrepo.TurnRepository) TurnLogService {
	return &turnLogService{turns: turns}
}

func (s *turnLogService) Append(ctx context.Context, sessionID, role, content string, meta map[string]any) (*models.CallTurn, error) {
	const op = "TurnLogService.Append"

	if sessionID == "" || role == "" || content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id, role, and content are required", nil)
	}

	row := &models.CallTurn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "metadata is not serializable", err)
		}
		row.Metadata = datatypes.JSON(b)
	}

	if err := s.turns.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert call turn", err)
	}
	return row, nil
}

func (s *turnLogService) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.CallTurn, error) {
	const op = "TurnLogService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	rows, err := s.turns.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list call turns", err)
	}
	return rows, nil
}
