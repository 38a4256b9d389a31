package cache

import (
	"context"
	"time"
)

// Flags holds the short-lived call-control markers shared between webhook and media handlers.
type Flags interface {
	// SetHangup arms the pending-hangup marker returned to the next inbound webhook.
	SetHangup(ctx context.Context, ttl time.Duration) error
	// TakeHangup reports and clears the pending-hangup marker.
	TakeHangup(ctx context.Context) (bool, error)
	// FirstSeen claims key and reports whether this caller was first.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const hangupKey = "piopiy:pending_hangup"
