package session

import (
	"context"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/agentconfig"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/rajmehta89/call-agent-backend/internal/providers/stt"
	"github.com/sirupsen/logrus"
)

// Transport is the media stream back to the PBX.
type Transport interface {
	Send(frame []byte) error
	Close() error
}

type Responder interface {
	Respond(ctx context.Context, userText string, history []llm.Message) string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SampleRate() int
}

type ConfigSource interface {
	Get() agentconfig.Config
}

// Finalizer persists a finished call. It runs once per session.
type Finalizer interface {
	Finalize(ctx context.Context, r models.CallReport) error
}

// TurnRecorder receives every transcript line as it happens.
type TurnRecorder interface {
	Append(ctx context.Context, sessionID, role, content string, meta map[string]any) (*models.CallTurn, error)
}

type Timing struct {
	HoldWindow  time.Duration
	NudgeAfter  time.Duration
	IdleAfter   time.Duration
	HangupDelay time.Duration
	SpeakPad    time.Duration
	// LogDrain bounds how long Close waits for queued turn log writes.
	LogDrain time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		HoldWindow:  700 * time.Millisecond,
		NudgeAfter:  20 * time.Second,
		IdleAfter:   60 * time.Second,
		HangupDelay: 3 * time.Second,
		SpeakPad:    300 * time.Millisecond,
		LogDrain:    finalizeTimeout,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.HoldWindow <= 0 {
		t.HoldWindow = d.HoldWindow
	}
	if t.NudgeAfter <= 0 {
		t.NudgeAfter = d.NudgeAfter
	}
	if t.IdleAfter <= 0 {
		t.IdleAfter = d.IdleAfter
	}
	if t.HangupDelay <= 0 {
		t.HangupDelay = d.HangupDelay
	}
	if t.LogDrain <= 0 {
		t.LogDrain = d.LogDrain
	}
	if t.SpeakPad < 0 {
		t.SpeakPad = 0
	}
	return t
}

// Deps are the collaborators shared by every session of the process.
type Deps struct {
	STT       stt.Provider
	TTS       Synthesizer
	Responder Responder
	Config    ConfigSource
	Finalizer Finalizer
	Turns     TurnRecorder // optional
	Registry  *Registry    // optional
	Log       logrus.FieldLogger
	Timing    Timing
}
