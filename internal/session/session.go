// Package session runs one phone call: it feeds caller audio to recognition, turns finalized
// speech into replies, plays them back without letting the caller barge in, watches for
// silence and exit intent, and hands the finished call to the finalizer exactly once.
package session

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/agentconfig"
	"github.com/rajmehta89/call-agent-backend/internal/logger"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/rajmehta89/call-agent-backend/internal/providers/stt"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
	"github.com/sirupsen/logrus"
)

const finalizeTimeout = 30 * time.Second

type speech struct {
	text   string
	hangup bool // close the call after this line
}

type Session struct {
	deps      Deps
	timing    Timing
	transport Transport
	direction models.CallDirection

	state atomic.Int32

	mu            sync.Mutex
	meta          telephony.CallMeta
	idFixed       bool // id came from the provider and must not be replaced
	transcript    []models.TranscriptEntry
	history       []llm.Message
	start         time.Time
	end           time.Time
	speakingUntil time.Time
	queued        int // lines handed to the speaker and not yet played
	lastHeard     time.Time
	nudged        bool
	turnLogClosed bool
	log           *logrus.Entry

	stream   stt.Stream
	speech   chan speech
	inbound  chan string // caller text accepted while listening
	activity chan struct{}
	turnLog  chan models.TranscriptEntry

	// recCtx bounds turn log writes; Close cancels it when the drain runs past LogDrain.
	recCtx    context.Context
	recCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	recWG  sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
}

// New prepares a session. idFromProvider marks meta.SessionID as authoritative; otherwise a
// session id arriving later in a metadata frame replaces it.
func New(meta telephony.CallMeta, idFromProvider bool, direction models.CallDirection, t Transport, deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if direction == "" {
		direction = models.DirectionInbound
	}
	s := &Session{
		deps:      deps,
		timing:    deps.Timing.withDefaults(),
		transport: t,
		direction: direction,
		meta:      meta,
		idFixed:   idFromProvider,
		speech:    make(chan speech, 8),
		inbound:   make(chan string, 32),
		activity:  make(chan struct{}, 1),
		turnLog:   make(chan models.TranscriptEntry, 64),
		done:      make(chan struct{}),
	}
	s.recCtx, s.recCancel = context.WithCancel(context.Background())
	s.log = logger.ForCall(deps.Log, meta.SessionID, meta.Phone)
	s.state.Store(int32(Connecting))
	return s
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.SessionID
}

func (s *Session) Meta() telephony.CallMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Done is closed once the session has been finalized.
func (s *Session) Done() <-chan struct{} { return s.done }

// State reports the current state. SPEAKING turns back into LISTENING by itself once the
// queued audio has played out.
func (s *Session) State() State {
	st := State(s.state.Load())
	if st == Speaking && !s.isSpeaking(time.Now()) {
		s.state.CompareAndSwap(int32(Speaking), int32(Listening))
		return State(s.state.Load())
	}
	return st
}

// Start opens recognition, registers the call and queues the greeting.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	now := time.Now()
	s.mu.Lock()
	s.start, s.lastHeard = now, now
	s.mu.Unlock()

	stream, err := s.openStream(ctx)
	if err != nil {
		s.log.WithError(err).Error("speech recognition unavailable, call continues without it")
		stream, _ = stt.Simulated{}.Open(ctx)
	}
	s.stream = stream

	if s.deps.Registry != nil {
		s.deps.Registry.Add(s)
	}

	s.recWG.Add(1)
	go s.recordLoop()

	s.wg.Add(4)
	go s.guard("listen", s.listenLoop)
	go s.guard("turns", s.turnLoop)
	go s.guard("speaker", s.speakerLoop)
	go s.guard("timers", s.timerLoop)

	s.state.Store(int32(Listening))
	s.log.WithField("direction", s.direction).Info("call session started")

	cfg := s.config()
	s.say(models.RoleGreeting, cfg.GreetingMessage, false)
}

func (s *Session) openStream(ctx context.Context) (stt.Stream, error) {
	if s.deps.STT == nil {
		return stt.Simulated{}.Open(ctx)
	}
	return s.deps.STT.Open(s.ctx)
}

// guard runs fn as one of the session goroutines. A panic ends the call instead of the process.
func (s *Session) guard(name string, fn func()) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"goroutine": name,
				"panic":     r,
				"stack":     string(debug.Stack()),
			}).Error("session goroutine panicked")
			go s.Close("panic")
		}
	}()
	fn()
}

// HandleAudio forwards caller audio to recognition unless the bot is talking or the call is
// ending. Audio dropped here is gone; nothing is buffered for later.
func (s *Session) HandleAudio(chunk []byte) {
	switch s.State() {
	case Listening:
	default:
		return
	}
	if s.stream != nil {
		s.stream.Send(chunk)
	}
}

// HandleText merges call context from a metadata frame. Frames without context are ignored.
func (s *Session) HandleText(data []byte) {
	m, ok := telephony.ParseMetadataFrame(data)
	if !ok {
		return
	}

	s.mu.Lock()
	old := s.meta.SessionID
	if s.idFixed {
		m.SessionID = ""
	}
	s.meta = s.meta.Merge(m)
	if m.SessionID != "" {
		s.idFixed = true
	}
	meta := s.meta
	s.log = logger.ForCall(s.deps.Log, meta.SessionID, meta.Phone)
	s.mu.Unlock()

	if meta.SessionID != old && s.deps.Registry != nil {
		s.deps.Registry.Rename(old, s)
	}
	s.entry().WithField("lead_id", meta.LeadID).Info("call context updated")
	s.appendEntry(models.RoleSystem, "Call context: phone="+meta.Phone+", lead_id="+meta.LeadID+", session="+meta.SessionID)
}

// Hangup ends the call from outside, e.g. on the provider's hangup callback.
func (s *Session) Hangup(reason string) {
	go s.Close(reason)
}

// Close tears the call down and finalizes it. Safe to call any number of times from any
// goroutine except the session's own.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		defer close(s.done)
		if s.cancel == nil {
			s.ctx, s.cancel = context.WithCancel(context.Background())
		}
		s.cancel()
		s.wg.Wait()

		if s.stream != nil {
			if err := s.stream.Close(); err != nil {
				s.entry().WithError(err).Warn("closing recognition stream")
			}
		}
		s.mu.Lock()
		s.turnLogClosed = true
		close(s.turnLog)
		s.mu.Unlock()
		drain := time.AfterFunc(s.timing.LogDrain, s.recCancel)
		s.recWG.Wait()
		drain.Stop()
		s.recCancel()

		s.state.Store(int32(Closed))
		if s.transport != nil {
			_ = s.transport.Close()
		}

		s.mu.Lock()
		s.end = time.Now()
		s.mu.Unlock()

		s.finalize(reason)
		if s.deps.Registry != nil {
			s.deps.Registry.Remove(s)
		}
	})
	<-s.done
}

func (s *Session) finalize(reason string) {
	log := s.entry().WithField("reason", reason)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("call finalizer panicked")
		}
	}()

	report := s.Report()
	log.WithFields(logrus.Fields{
		"duration": report.Duration(),
		"entries":  len(report.Transcript),
	}).Info("call session ended")

	if s.deps.Finalizer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := s.deps.Finalizer.Finalize(ctx, report); err != nil {
		log.WithError(err).Error("failed to persist call")
	}
}

// Report is a copy of the call as it stands.
func (s *Session) Report() models.CallReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.end
	if end.IsZero() {
		end = time.Now()
	}
	return models.CallReport{
		SessionID:   s.meta.SessionID,
		PhoneNumber: s.meta.Phone,
		LeadID:      s.meta.LeadID,
		Direction:   s.direction,
		StartTime:   s.start,
		EndTime:     end,
		Transcript:  append([]models.TranscriptEntry(nil), s.transcript...),
	}
}

func (s *Session) Snapshot() models.CallSnapshot {
	st := s.State()
	s.mu.Lock()
	defer s.mu.Unlock()

	var user, bot int
	for _, e := range s.transcript {
		switch e.Type {
		case models.RoleUser:
			user++
		case models.RoleBot, models.RoleGreeting, models.RoleExit:
			bot++
		}
	}
	end := s.end
	if end.IsZero() {
		end = time.Now()
	}
	status := "active"
	if st == Closed {
		status = "completed"
	}
	return models.CallSnapshot{
		SessionID:          s.meta.SessionID,
		PhoneNumber:        s.meta.Phone,
		LeadID:             s.meta.LeadID,
		Status:             status,
		State:              st.String(),
		StartTime:          s.start,
		Duration:           end.Sub(s.start).Seconds(),
		TranscriptionCount: user,
		ResponseCount:      bot,
	}
}

func (s *Session) entry() *logrus.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

func (s *Session) config() agentconfig.Config {
	if s.deps.Config == nil {
		return agentconfig.Defaults()
	}
	return s.deps.Config.Get()
}

// isSpeaking is true while queued lines are waiting for synthesis or their audio is still
// playing on the caller's side.
func (s *Session) isSpeaking(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued > 0 || now.Before(s.speakingUntil)
}

// appendEntry records a line in the transcript and hands it to the turn recorder.
func (s *Session) appendEntry(role, text string) {
	e := models.TranscriptEntry{Type: role, Content: strings.TrimSpace(text), Timestamp: time.Now().UTC()}
	if e.Content == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, e)
	if s.turnLogClosed {
		return
	}
	select {
	case s.turnLog <- e:
	default:
		s.log.Warn("turn log backlog full, dropping line")
	}
}

func (s *Session) recordLoop() {
	defer s.recWG.Done()
	for e := range s.turnLog {
		if s.deps.Turns == nil || s.recCtx.Err() != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(s.recCtx, 5*time.Second)
		if _, err := s.deps.Turns.Append(ctx, s.ID(), e.Type, e.Content, map[string]any{"state": s.State().String()}); err != nil {
			s.entry().WithError(err).Debug("turn log append failed")
		}
		cancel()
	}
}

// poke wakes the timer loop after activity.
func (s *Session) poke() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}
