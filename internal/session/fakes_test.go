package session

import (
	"context"
	"sync"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/agentconfig"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/rajmehta89/call-agent-backend/internal/providers/stt"
)

type fakeStream struct {
	mu      sync.Mutex
	sent    int
	results chan stt.Transcript
	once    sync.Once
}

func (f *fakeStream) Send([]byte) {
	f.mu.Lock()
	f.sent++
	f.mu.Unlock()
}

func (f *fakeStream) Results() <-chan stt.Transcript { return f.results }

func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.results) })
	return nil
}

func (f *fakeStream) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *fakeStream) final(text string) {
	f.results <- stt.Transcript{Text: text, Final: true, Confidence: 0.9}
}

type fakeSTT struct{ stream *fakeStream }

func newFakeSTT() *fakeSTT {
	return &fakeSTT{stream: &fakeStream{results: make(chan stt.Transcript, 16)}}
}

func (f *fakeSTT) Open(context.Context) (stt.Stream, error) { return f.stream, nil }
func (f *fakeSTT) Close() error                             { return nil }

// fakeTTS returns bytes of silence at 8 kHz for every line.
type fakeTTS struct {
	bytes int
	err   error
}

func (f fakeTTS) SampleRate() int { return 8000 }

func (f fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]byte, f.bytes), nil
}

type fakeResponder struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeResponder) Respond(ctx context.Context, text string, history []llm.Message) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return "reply to " + text
}

func (f *fakeResponder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed int
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type fakeFinalizer struct {
	mu      sync.Mutex
	reports []models.CallReport
}

func (f *fakeFinalizer) Finalize(ctx context.Context, r models.CallReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeFinalizer) Reports() []models.CallReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CallReport(nil), f.reports...)
}

type staticConfig struct{ cfg agentconfig.Config }

func (s staticConfig) Get() agentconfig.Config { return s.cfg }

// slowLLM blocks until its context ends.
type slowLLM struct{}

func (slowLLM) Complete(ctx context.Context, _ []llm.Message, _ llm.Options) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowLLM) Close() error { return nil }

func waitFor(cond func() bool, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// pausingResponder takes delay to answer its first turn, like an LLM under load.
type pausingResponder struct {
	fakeResponder
	delay time.Duration
}

func (p *pausingResponder) Respond(ctx context.Context, text string, history []llm.Message) string {
	first := len(p.Calls()) == 0
	reply := p.fakeResponder.Respond(ctx, text, history)
	if first {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
		}
	}
	return reply
}

// stuckTurnLog never finishes a write until its context ends.
type stuckTurnLog struct {
	mu    sync.Mutex
	calls int
}

func (s *stuckTurnLog) Append(ctx context.Context, sessionID, role, content string, meta map[string]any) (*models.CallTurn, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}
