package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/agentconfig"
	"github.com/rajmehta89/call-agent-backend/internal/logger"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/rajmehta89/call-agent-backend/internal/responder"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
)

type harness struct {
	s         *Session
	stt       *fakeSTT
	resp      *fakeResponder
	transport *fakeTransport
	final     *fakeFinalizer
	registry  *Registry
}

func quickTiming() Timing {
	return Timing{
		HoldWindow:  60 * time.Millisecond,
		NudgeAfter:  time.Hour,
		IdleAfter:   2 * time.Hour,
		HangupDelay: 30 * time.Millisecond,
		SpeakPad:    time.Millisecond,
	}
}

func newHarness(t *testing.T, timing Timing, tts Synthesizer, r Responder) *harness {
	t.Helper()
	h := &harness{
		stt:       newFakeSTT(),
		resp:      &fakeResponder{},
		transport: &fakeTransport{},
		final:     &fakeFinalizer{},
		registry:  NewRegistry(),
	}
	if r == nil {
		r = h.resp
	}
	if tts == nil {
		tts = fakeTTS{bytes: 160}
	}
	deps := Deps{
		STT:       h.stt,
		TTS:       tts,
		Responder: r,
		Config:    staticConfig{cfg: agentconfig.Defaults()},
		Finalizer: h.final,
		Registry:  h.registry,
		Log:       logger.Discard(),
		Timing:    timing,
	}
	meta := telephony.CallMeta{SessionID: "sess-1", Phone: "9876543210", LeadID: "lead-1"}
	h.s = New(meta, true, models.DirectionOutbound, h.transport, deps)
	h.s.Start(context.Background())
	t.Cleanup(func() { h.s.Close("test") })
	return h
}

func (h *harness) waitListening(t *testing.T) {
	t.Helper()
	if !waitFor(func() bool { return h.s.State() == Listening }, 2*time.Second) {
		t.Fatalf("session never returned to listening, state %s", h.s.State())
	}
}

func (h *harness) entries(role string) []string {
	var out []string
	for _, e := range h.s.Report().Transcript {
		if e.Type == role {
			out = append(out, e.Content)
		}
	}
	return out
}

func TestGreetingIsFirstLine(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	tr := h.s.Report().Transcript
	if len(tr) == 0 || tr[0].Type != models.RoleGreeting {
		t.Fatalf("transcript = %+v", tr)
	}
	if h.transport.Frames() != 1 {
		t.Fatalf("frames = %d", h.transport.Frames())
	}
}

func TestHoldWindowMergesFragments(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	h.stt.stream.final("I want a 2 bedroom")
	h.stt.stream.final("in Andheri")

	if !waitFor(func() bool { return len(h.resp.Calls()) == 1 }, 2*time.Second) {
		t.Fatalf("responder calls = %v", h.resp.Calls())
	}
	if got := h.resp.Calls()[0]; got != "I want a 2 bedroom in Andheri" {
		t.Fatalf("utterance = %q", got)
	}
	if got := h.entries(models.RoleUser); len(got) != 1 {
		t.Fatalf("user entries = %v", got)
	}
}

func TestNoBargeIn(t *testing.T) {
	// one second of audio keeps the bot speaking well past the assertions
	h := newHarness(t, quickTiming(), fakeTTS{bytes: 16000}, nil)
	if !waitFor(func() bool { return h.transport.Frames() == 1 }, 2*time.Second) {
		t.Fatal("greeting never played")
	}
	if h.s.State() != Speaking {
		t.Fatalf("state = %s", h.s.State())
	}

	h.s.HandleAudio(make([]byte, 320))
	h.stt.stream.final("what is the price")
	time.Sleep(150 * time.Millisecond)

	if n := h.stt.stream.Sent(); n != 0 {
		t.Fatalf("forwarded %d chunks while speaking", n)
	}
	if calls := h.resp.Calls(); len(calls) != 0 {
		t.Fatalf("transcript handled while speaking: %v", calls)
	}
}

func TestAudioForwardedWhileListening(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	h.s.HandleAudio(make([]byte, 320))
	if n := h.stt.stream.Sent(); n != 1 {
		t.Fatalf("sent = %d", n)
	}
}

func TestTurnsAnsweredInOrder(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	h.stt.stream.final("what is the price")
	if !waitFor(func() bool { return len(h.entries(models.RoleBot)) == 1 }, 2*time.Second) {
		t.Fatal("no reply to first turn")
	}
	h.waitListening(t)
	h.stt.stream.final("tell me about parking")
	if !waitFor(func() bool { return len(h.entries(models.RoleBot)) == 2 }, 2*time.Second) {
		t.Fatal("no reply to second turn")
	}

	var order []string
	for _, e := range h.s.Report().Transcript {
		order = append(order, e.Type+":"+e.Content)
	}
	want := []string{
		models.RoleUser + ":what is the price",
		models.RoleBot + ":reply to what is the price",
		models.RoleUser + ":tell me about parking",
		models.RoleBot + ":reply to tell me about parking",
	}
	got := order[1:]
	if len(got) != len(want) {
		t.Fatalf("transcript = %v", order)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTurnSpokenWhileThinkingIsKept(t *testing.T) {
	slow := &pausingResponder{delay: 300 * time.Millisecond}
	h := newHarness(t, quickTiming(), nil, slow)
	h.waitListening(t)

	h.stt.stream.final("what is the price")
	if !waitFor(func() bool { return len(slow.Calls()) == 1 }, 2*time.Second) {
		t.Fatal("first turn never reached the responder")
	}
	if st := h.s.State(); st != Listening {
		t.Fatalf("state while thinking = %s", st)
	}
	h.stt.stream.final("and the location")

	if !waitFor(func() bool { return len(slow.Calls()) == 2 }, 3*time.Second) {
		t.Fatalf("responder calls = %v", slow.Calls())
	}
	want := []string{"what is the price", "and the location"}
	for i, got := range slow.Calls() {
		if got != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got, want[i])
		}
	}
	if got := h.entries(models.RoleUser); len(got) != 2 || got[1] != "and the location" {
		t.Fatalf("user entries = %v", got)
	}
}

func TestCloseBoundsTurnLogDrain(t *testing.T) {
	timing := quickTiming()
	timing.LogDrain = 50 * time.Millisecond
	turns := &stuckTurnLog{}
	deps := Deps{
		STT:       newFakeSTT(),
		TTS:       fakeTTS{bytes: 160},
		Responder: &fakeResponder{},
		Config:    staticConfig{cfg: agentconfig.Defaults()},
		Finalizer: &fakeFinalizer{},
		Turns:     turns,
		Log:       logger.Discard(),
		Timing:    timing,
	}
	s := New(telephony.CallMeta{SessionID: "sess-slowlog"}, true, models.DirectionInbound, &fakeTransport{}, deps)
	s.Start(context.Background())
	for i := 0; i < 20; i++ {
		s.HandleText([]byte(`{"meta":{"lead_id":"L` + string(rune('a'+i)) + `"}}`))
	}

	start := time.Now()
	s.Close("test")
	if took := time.Since(start); took > time.Second {
		t.Fatalf("close took %v with a stuck turn log", took)
	}
}

func TestResponderTimeoutKeepsCallAlive(t *testing.T) {
	gen := responder.New(slowLLM{}, nil, llm.Options{}, 40*time.Millisecond, logger.Discard())
	h := newHarness(t, quickTiming(), nil, gen)
	h.waitListening(t)

	h.stt.stream.final("what is the price")
	if !waitFor(func() bool { return len(h.entries(models.RoleBot)) == 1 }, 2*time.Second) {
		t.Fatal("no fallback reply")
	}
	if got := h.entries(models.RoleBot)[0]; got != responder.ReplyTimeout {
		t.Fatalf("reply = %q", got)
	}
	h.waitListening(t)
	select {
	case <-h.s.Done():
		t.Fatal("session closed after a timeout")
	default:
	}
}

func TestSynthesisFailureStillRecordsReply(t *testing.T) {
	h := newHarness(t, quickTiming(), fakeTTS{err: errors.New("tts down")}, nil)
	h.waitListening(t)

	h.stt.stream.final("what is the price")
	if !waitFor(func() bool { return len(h.entries(models.RoleBot)) == 1 }, 2*time.Second) {
		t.Fatal("reply not recorded")
	}
	h.waitListening(t)
	if h.transport.Frames() != 0 {
		t.Fatalf("frames = %d", h.transport.Frames())
	}
}

func TestExitIntentEndsCall(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	h.stt.stream.final("thank you, bye")
	if !waitFor(func() bool { return h.s.State() == Ending || h.s.State() == Closed }, time.Second) {
		t.Fatalf("state = %s", h.s.State())
	}

	select {
	case <-h.s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("call not closed after exit message")
	}

	reports := h.final.Reports()
	if len(reports) != 1 {
		t.Fatalf("finalized %d times", len(reports))
	}
	r := reports[0]
	last := r.Transcript[len(r.Transcript)-1]
	if last.Type != models.RoleExit || last.Content != agentconfig.Defaults().ExitMessage {
		t.Fatalf("last entry = %+v", last)
	}
	if len(h.resp.Calls()) != 0 {
		t.Fatal("exit intent reached the responder")
	}
	if r.SessionID != "sess-1" || r.PhoneNumber != "9876543210" || r.LeadID != "lead-1" || r.Direction != models.DirectionOutbound {
		t.Fatalf("report = %+v", r)
	}
	if h.transport.closed != 1 {
		t.Fatalf("transport closed %d times", h.transport.closed)
	}
	if h.s.State() != Closed {
		t.Fatalf("state = %s", h.s.State())
	}
}

func TestTransferRequestContinuesCall(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	h.stt.stream.final("can I talk to a real person")
	if !waitFor(func() bool { return len(h.entries(models.RoleSystem)) == 1 }, 2*time.Second) {
		t.Fatal("transfer not logged")
	}
	if !waitFor(func() bool { return len(h.entries(models.RoleBot)) == 1 }, time.Second) {
		t.Fatal("transfer message not queued")
	}
	if got := h.entries(models.RoleBot)[0]; got != agentconfig.Defaults().TransferMessage {
		t.Fatalf("reply = %q", got)
	}
	h.waitListening(t)
}

func TestSilenceNudgesThenHangsUp(t *testing.T) {
	timing := quickTiming()
	timing.NudgeAfter = 80 * time.Millisecond
	timing.IdleAfter = 300 * time.Millisecond
	h := newHarness(t, timing, nil, nil)

	select {
	case <-h.s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("idle call not closed")
	}

	bot := h.entries(models.RoleBot)
	if len(bot) != 1 || bot[0] != agentconfig.Defaults().NudgeMessage {
		t.Fatalf("bot lines = %v", bot)
	}
	if exit := h.entries(models.RoleExit); len(exit) != 1 {
		t.Fatalf("exit lines = %v", exit)
	}
	if len(h.final.Reports()) != 1 {
		t.Fatal("idle call not finalized")
	}
}

func TestCloseFinalizesOnce(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.s.Close("remote_close")
		}()
	}
	wg.Wait()

	if n := len(h.final.Reports()); n != 1 {
		t.Fatalf("finalized %d times", n)
	}
	if h.registry.Len() != 0 {
		t.Fatal("closed session still registered")
	}
	h.s.HandleAudio(make([]byte, 320))
	if h.stt.stream.Sent() != 0 {
		t.Fatal("audio forwarded after close")
	}
}

func TestHandleTextAdoptsProviderSessionID(t *testing.T) {
	reg := NewRegistry()
	deps := Deps{
		STT:      newFakeSTT(),
		TTS:      fakeTTS{bytes: 160},
		Registry: reg,
		Log:      logger.Discard(),
		Timing:   quickTiming(),
	}
	s := New(telephony.CallMeta{SessionID: "generated"}, false, "", &fakeTransport{}, deps)
	s.Start(context.Background())
	defer s.Close("test")

	s.HandleText([]byte(`{"meta":{"session":"abc","phone_number":"+919876543210","lead_id":"L1"}}`))
	s.HandleText([]byte(`{"meta":{"session":"other"}}`))
	s.HandleText([]byte(`not json`))

	if _, ok := reg.Get("generated"); ok {
		t.Fatal("old id still registered")
	}
	got, ok := reg.Get("abc")
	if !ok || got != s {
		t.Fatal("session not registered under provider id")
	}
	m := s.Meta()
	if m.SessionID != "abc" || m.Phone != "+919876543210" || m.LeadID != "L1" {
		t.Fatalf("meta = %+v", m)
	}
}

func TestRegistrySnapshots(t *testing.T) {
	h := newHarness(t, quickTiming(), nil, nil)
	h.waitListening(t)

	snaps := h.registry.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %+v", snaps)
	}
	if snaps[0].SessionID != "sess-1" || snaps[0].Status != "active" || snaps[0].ResponseCount != 1 {
		t.Fatalf("snapshot = %+v", snaps[0])
	}
}

func TestStateString(t *testing.T) {
	if Ending.String() != "ending" || State(42).String() != "unknown" {
		t.Fatal("state names")
	}
}
