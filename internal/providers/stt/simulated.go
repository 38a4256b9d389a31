package stt

import (
	"context"
	"sync"
)

// Simulated accepts audio and never recognizes anything. It stands in when no recognition
// credentials are configured so calls still connect, greet and time out normally.
type Simulated struct{}

func (Simulated) Close() error { return nil }

func (Simulated) Open(ctx context.Context) (Stream, error) {
	return &simulatedStream{results: make(chan Transcript)}, nil
}

type simulatedStream struct {
	results chan Transcript
	once    sync.Once
}

func (s *simulatedStream) Send([]byte)                {}
func (s *simulatedStream) Results() <-chan Transcript { return s.results }

func (s *simulatedStream) Close() error {
	s.once.Do(func() { close(s.results) })
	return nil
}
