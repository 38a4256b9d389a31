package stt

import "context"

// Transcript is one recognition result. Streams only publish results with Final set.
type Transcript struct {
	Text       string
	Confidence float64
	Final      bool
}

// Stream is a live recognition session for one call.
type Stream interface {
	// Send forwards a chunk of caller audio. It never blocks; audio is dropped while the
	// upstream connection is down.
	Send(audio []byte)
	// Results delivers finalized transcripts and is closed after Close.
	Results() <-chan Transcript
	Close() error
}

type Provider interface {
	Open(ctx context.Context) (Stream, error)
	Close() error
}
