package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	mongorepo "github.com/rajmehta89/call-agent-backend/internal/repositories/mongo"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// initiatedWindow bounds how old an "initiated" record may be and still be completed by a
// call that arrives without a session id.
const initiatedWindow = 5 * time.Minute

type CallLogService interface {
	LogCall(ctx context.Context, phone, leadID string, data models.CallData) (*models.CallRecord, error)
}

type callLogService struct {
	calls mongorepo.CallRepository
	leads mongorepo.LeadRepository
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewCallLogService(calls mongorepo.CallRepository, leads mongorepo.LeadRepository, log logrus.FieldLogger) CallLogService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &callLogService{calls: calls, leads: leads, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Summarize is the one-line call summary stored with every record.
func Summarize(userMessages, aiResponses int) string {
	return fmt.Sprintf("Call with %d user messages and %d AI responses", userMessages, aiResponses)
}

func (s *callLogService) LogCall(ctx context.Context, phone, leadID string, data models.CallData) (*models.CallRecord, error) {
	const op = "CallLogService.LogCall"

	if phone == "" && leadID == "" && data.CallSessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phone_number, lead_id or call_session_id is required", nil)
	}

	now := s.now()
	rec := &models.CallRecord{
		CallSessionID:    data.CallSessionID,
		PhoneNumber:      phone,
		LeadID:           leadID,
		Direction:        data.Direction,
		Status:           data.Status,
		Duration:         data.Duration,
		Transcription:    data.Transcription,
		AIResponses:      data.AIResponses,
		Summary:          data.Summary,
		Sentiment:        data.Sentiment,
		InterestAnalysis: data.InterestAnalysis,
		CallDate:         now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if rec.Direction == "" {
		rec.Direction = models.DirectionOutbound
	}
	if rec.Status == "" {
		rec.Status = models.CallCompleted
	}
	if rec.Transcription == nil {
		rec.Transcription = []models.TranscriptEntry{}
	}
	if rec.AIResponses == nil {
		rec.AIResponses = []models.TranscriptEntry{}
	}
	if rec.Summary == "" {
		rec.Summary = Summarize(len(rec.Transcription), len(rec.AIResponses))
	}
	if rec.Sentiment == "" {
		rec.Sentiment = "neutral"
	}
	data.Status = rec.Status

	inserted, err := s.write(ctx, rec)
	if err != nil {
		return nil, utils.E(utils.CodeOr(err, utils.CodeInternal), op, "failed to write call record", err)
	}

	if inserted && leadID != "" {
		if err := s.leads.TouchLastCall(ctx, leadID, now); err != nil && !errors.Is(err, utils.ErrNotFound) {
			s.log.WithError(err).WithField("lead_id", leadID).Warn("failed to touch lead last_call")
		}
	}

	if err := s.applyLeadLadder(ctx, phone, leadID, data); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"lead_id": leadID, "phone": phone}).Warn("lead status update failed")
	}
	return rec, nil
}

// write stores rec and reports whether a new document was created.
func (s *callLogService) write(ctx context.Context, rec *models.CallRecord) (bool, error) {
	if rec.CallSessionID != "" {
		return s.calls.UpsertBySession(ctx, rec)
	}

	prev, err := s.calls.FindRecentInitiated(ctx, rec.LeadID, rec.PhoneNumber, rec.CreatedAt.Add(-initiatedWindow))
	switch {
	case err == nil:
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
		return false, s.calls.UpdateByID(ctx, prev.ID, rec)
	case errors.Is(err, utils.ErrNotFound):
		return true, s.calls.Insert(ctx, rec)
	default:
		return false, err
	}
}

func (s *callLogService) applyLeadLadder(ctx context.Context, phone, leadID string, data models.CallData) error {
	lead, err := findLead(ctx, s.leads, leadID, phone)
	if errors.Is(err, utils.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	next := NextLeadStatus(lead.Status, data)
	if next == lead.Status {
		return nil
	}
	s.log.WithFields(logrus.Fields{
		"lead_id": lead.ID.Hex(),
		"from":    lead.Status,
		"to":      next,
	}).Info("lead status advanced")
	return s.leads.SetStatus(ctx, lead.ID, next, "Auto-updated from call: "+string(data.Status))
}

// findLead resolves by id first and falls back to the phone number.
func findLead(ctx context.Context, leads mongorepo.LeadRepository, leadID, phone string) (*models.Lead, error) {
	if leadID != "" {
		lead, err := leads.FindByID(ctx, leadID)
		if err == nil {
			return lead, nil
		}
		if !errors.Is(err, utils.ErrNotFound) {
			return nil, err
		}
	}
	if phone == "" {
		return nil, utils.ErrNotFound
	}
	return leads.FindByPhone(ctx, phone)
}
