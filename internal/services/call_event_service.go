package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	mongorepo "github.com/rajmehta89/call-agent-backend/internal/repositories/mongo"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// CallEvent is one lifecycle notification from the telephony provider.
type CallEvent struct {
	CallID   string
	Type     string
	Phone    string
	Duration float64
}

type EventOutcome struct {
	Known     bool
	Duplicate bool
	LeadID    string
	Status    models.LeadStatus // lead status after the event, when a lead matched
}

// EventDeduper claims a key the first time it is seen.
type EventDeduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type CallEventService interface {
	HandleEvent(ctx context.Context, ev CallEvent) (EventOutcome, error)
}

type callEventService struct {
	leads mongorepo.LeadRepository
	dedup EventDeduper
	log   logrus.FieldLogger
}

const eventDedupeTTL = 24 * time.Hour

// NewCallEventService builds the webhook event handler. dedup may be nil.
func NewCallEventService(leads mongorepo.LeadRepository, dedup EventDeduper, log logrus.FieldLogger) CallEventService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &callEventService{leads: leads, dedup: dedup, log: log}
}

func (s *callEventService) HandleEvent(ctx context.Context, ev CallEvent) (EventOutcome, error) {
	const op = "CallEventService.HandleEvent"

	target, ok := LeadStatusForEvent(ev.Type, ev.Duration)
	if !ok {
		return EventOutcome{}, nil
	}
	out := EventOutcome{Known: true}

	if s.dedup != nil && ev.CallID != "" {
		key := "piopiy:event:" + ev.CallID + ":" + strings.ToLower(ev.Type)
		first, err := s.dedup.FirstSeen(ctx, key, eventDedupeTTL)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("event dedupe unavailable")
		} else if !first {
			out.Duplicate = true
			return out, nil
		}
	}

	if utils.CleanPhone(ev.Phone) == "" {
		return out, nil
	}
	lead, err := s.leads.FindByPhone(ctx, ev.Phone)
	if errors.Is(err, utils.ErrNotFound) {
		s.log.WithField("phone", ev.Phone).Info("no lead for call event")
		return out, nil
	}
	if err != nil {
		return out, utils.E(utils.CodeInternal, op, "failed to look up lead", err)
	}

	out.LeadID = lead.ID.Hex()
	out.Status = RaiseOnly(lead.Status, target)
	if out.Status != lead.Status {
		if err := s.leads.SetStatus(ctx, lead.ID, out.Status, "Auto-updated from event: "+strings.ToLower(ev.Type)); err != nil {
			return out, utils.E(utils.CodeInternal, op, "failed to update lead status", err)
		}
	}
	if err := s.leads.TouchLastCall(ctx, out.LeadID, time.Now().UTC()); err != nil {
		s.log.WithError(err).WithField("lead_id", out.LeadID).Warn("failed to touch lead last_call")
	}
	return out, nil
}
