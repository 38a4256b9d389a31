package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStream = "calls:finalize"
	DefaultGroup  = "finalize-workers"
)

// Finalizer persists one finished call.
type Finalizer interface {
	Finalize(ctx context.Context, r models.CallReport) error
}

// StatusChannel is where the outcome of a finalize job is published.
func StatusChannel(sessionID string) string {
	return "call:" + sessionID + ":status"
}

// FinalizeWorkerPool drains finished calls from a Redis stream so that classification and
// persistence survive a restart of the process that ran the call.
type FinalizeWorkerPool struct {
	Redis      *redis.Client
	Finalizer  Finalizer
	NumWorkers int
	Timeout    time.Duration
	// Attempts bounds how often a job is run when the failure looks transient.
	Attempts int
	Backoff  time.Duration

	Logger logrus.FieldLogger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *FinalizeWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Finalizer == nil {
		return errors.New("FinalizeWorkerPool missing dependency: Redis/Finalizer must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Timeout <= 0 {
		p.Timeout = 60 * time.Second
	}
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 2 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *FinalizeWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				status := p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
				if status.SessionID != "" {
					payload, _ := json.Marshal(status)
					_ = p.Redis.Publish(ctx, StatusChannel(status.SessionID), string(payload)).Err()
				}
			}
		}
	}
}

// JobStatus is published once a finalize job has run.
type JobStatus struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"` // done|failed
	Message   string `json:"message,omitempty"`
	Attempts  int    `json:"attempts"`
}

func (p *FinalizeWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) JobStatus {
	report, err := DecodeJob(msg.Values)
	log := p.Logger.WithField("redis_id", msg.ID)
	if err != nil {
		log.WithError(err).Warn("dropping malformed finalize job")
		return JobStatus{}
	}
	log = log.WithField("session_id", report.SessionID)

	st := JobStatus{Type: "status", SessionID: report.SessionID, Status: "done", Message: "call persisted"}

	attempts := max(p.Attempts, 1)
	for st.Attempts = 1; ; st.Attempts++ {
		err = p.finalizeOnce(ctx, report)
		if err == nil {
			return st
		}
		if !utils.Retryable(err) || st.Attempts >= attempts {
			break
		}
		log.WithError(err).WithField("attempt", st.Attempts).Warn("finalize job failed, retrying")
		select {
		case <-ctx.Done():
			st.Status, st.Message = "failed", "shutting down"
			return st
		case <-time.After(p.Backoff):
		}
	}
	log.WithError(err).WithField("attempts", st.Attempts).Error("finalize job failed")
	st.Status, st.Message = "failed", "persist failed"
	return st
}

func (p *FinalizeWorkerPool) finalizeOnce(ctx context.Context, report models.CallReport) error {
	jobCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return p.Finalizer.Finalize(jobCtx, report)
}

// EncodeJob is the stream entry for one finished call.
func EncodeJob(r models.CallReport) (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id": r.SessionID,
		"report":     string(b),
	}, nil
}

func DecodeJob(values map[string]any) (models.CallReport, error) {
	var r models.CallReport
	raw, _ := values["report"].(string)
	if raw == "" {
		return r, errors.New("finalize job has no report")
	}
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return r, err
	}
	return r, nil
}
