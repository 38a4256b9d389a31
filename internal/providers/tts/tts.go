package tts

import "context"

// Provider turns reply text into 16-bit mono PCM at SampleRate().
// Blank text yields (nil, nil) without contacting the service.
type Provider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SampleRate() int
	Close() error
}
