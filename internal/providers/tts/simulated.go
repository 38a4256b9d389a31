package tts

import (
	"context"
	"strings"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/audio"
)

// Simulated returns silence sized to roughly how long the text would take to say.
type Simulated struct {
	PerChar time.Duration
}

func (s Simulated) Close() error    { return nil }
func (s Simulated) SampleRate() int { return audio.SynthesisRate }

func (s Simulated) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	per := s.PerChar
	if per <= 0 {
		per = 60 * time.Millisecond
	}
	samples := int(time.Duration(len(text)) * per * audio.SynthesisRate / time.Second)
	return make([]byte, samples*2), nil
}
