package services

import (
	"context"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	pgrepo "github.com/rajmehta89/call-agent-backend/internal/repositories/postgres"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

type InterestAnalyzer interface {
	Analyze(ctx context.Context, transcript, responses []models.TranscriptEntry) models.InterestAnalysis
}

type Archiver interface {
	Archive(ctx context.Context, r models.CallReport, analysis *models.InterestAnalysis) (string, error)
}

// CallFinalizer turns a finished session into its persisted call record: classify, log the
// call, then the optional analysis row and transcript archive.
type CallFinalizer struct {
	Calls    CallLogService
	Analyzer InterestAnalyzer
	Analyses pgrepo.AnalysisRepository // optional
	Archive  Archiver                  // optional
	Log      logrus.FieldLogger
}

func (f *CallFinalizer) Finalize(ctx context.Context, r models.CallReport) error {
	const op = "CallFinalizer.Finalize"

	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("session_id", r.SessionID)

	user, bot := r.Split()

	var analysis *models.InterestAnalysis
	if len(user) > 0 && f.Analyzer != nil {
		a := f.Analyzer.Analyze(ctx, user, bot)
		analysis = &a
	}

	direction := r.Direction
	if direction == "" {
		direction = models.DirectionInbound
	}
	rec, err := f.Calls.LogCall(ctx, r.PhoneNumber, r.LeadID, models.CallData{
		CallSessionID:    r.SessionID,
		Direction:        direction,
		Status:           models.CallCompleted,
		Duration:         r.Duration(),
		Transcription:    user,
		AIResponses:      bot,
		Summary:          Summarize(len(user), len(bot)),
		Sentiment:        "neutral",
		InterestAnalysis: analysis,
	})
	if err != nil {
		return utils.E(utils.CodeOr(err, utils.CodeInternal), op, "failed to log call", err)
	}
	log.WithFields(logrus.Fields{
		"call_id":  rec.ID.Hex(),
		"duration": rec.Duration,
	}).Info("call logged")

	if analysis != nil && f.Analyses != nil {
		row := &models.CallAnalysis{
			SessionID:     r.SessionID,
			PhoneNumber:   r.PhoneNumber,
			Status:        string(analysis.Status),
			Confidence:    analysis.Confidence,
			Reasoning:     analysis.Reasoning,
			KeyIndicators: analysis.KeyIndicators,
			UpdatedAt:     r.EndTime.UTC(),
		}
		if err := f.Analyses.Upsert(ctx, row); err != nil {
			log.WithError(err).Warn("failed to store call analysis")
		}
	}

	if f.Archive != nil {
		path, err := f.Archive.Archive(ctx, r, analysis)
		if err != nil {
			log.WithError(err).Warn("failed to archive transcript")
		} else {
			log.WithField("path", path).Debug("transcript archived")
		}
	}
	return nil
}
