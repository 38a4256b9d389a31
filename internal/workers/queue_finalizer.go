package workers

import (
	"context"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// QueueFinalizer hands finished calls to the worker pool. When Redis is unreachable it
// finalizes in place so no call goes unrecorded.
type QueueFinalizer struct {
	Redis    *redis.Client
	Stream   string
	Fallback Finalizer
	Log      logrus.FieldLogger
}

func (q *QueueFinalizer) Finalize(ctx context.Context, r models.CallReport) error {
	log := q.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	stream := q.Stream
	if stream == "" {
		stream = DefaultStream
	}

	if q.Redis != nil {
		values, err := EncodeJob(r)
		if err == nil {
			err = q.Redis.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err()
		}
		if err == nil {
			return nil
		}
		log.WithError(err).WithField("session_id", r.SessionID).Warn("finalize queue unavailable, persisting inline")
	}
	if q.Fallback == nil {
		return nil
	}
	return q.Fallback.Finalize(ctx, r)
}
