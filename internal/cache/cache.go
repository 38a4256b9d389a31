package cache

import (
	"context"
	"time"
)

// Cache is a JSON key/value store with expiry. Redis backs it across processes; Memory
// serves a single process.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CallMetaTTL bounds how long an outbound call may ring before its media stream connects.
const CallMetaTTL = 10 * time.Minute

// CallMetaKey is where make-call parks the phone and lead of an outbound session until the
// media stream for it connects.
func CallMetaKey(sessionID string) string {
	return "call:meta:" + sessionID
}

// Get decodes key into a T. A miss returns the zero value and false.
func Get[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var v T
	if c == nil {
		return v, false, nil
	}
	hit, err := c.GetJSON(ctx, key, &v)
	if err != nil || !hit {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}
