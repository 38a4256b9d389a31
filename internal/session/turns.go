package session

import (
	"strings"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/rajmehta89/call-agent-backend/internal/responder"
)

// listenLoop drains recognition results and decides turn taking when a result arrives: text
// finalized while the bot is speaking or the call is ending is dropped, everything else is
// queued for turnLoop in arrival order.
func (s *Session) listenLoop() {
	results := s.stream.Results()
	for {
		select {
		case <-s.ctx.Done():
			return
		case t, ok := <-results:
			if !ok {
				return
			}
			text := strings.TrimSpace(t.Text)
			if !t.Final || text == "" {
				continue
			}
			if st := s.State(); st != Listening {
				s.entry().WithField("state", st.String()).Debug("transcript dropped while not listening")
				continue
			}
			s.heard()
			select {
			case s.inbound <- text:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// turnLoop is the single consumer of accepted caller text. Fragments arriving within the hold
// window of the first one are joined into one user turn, and each turn is answered before the
// next one is looked at.
func (s *Session) turnLoop() {
	var (
		pending []string
		hold    *time.Timer
		holdC   <-chan time.Time
	)
	defer func() {
		if hold != nil {
			hold.Stop()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return

		case text := <-s.inbound:
			pending = append(pending, text)
			if holdC == nil {
				hold = time.NewTimer(s.timing.HoldWindow)
				holdC = hold.C
			}

		case <-holdC:
			holdC = nil
			utterance := strings.Join(pending, " ")
			pending = nil
			s.handleUtterance(utterance)
		}
	}
}

func (s *Session) handleUtterance(text string) {
	cfg := s.config()
	s.appendEntry(models.RoleUser, text)
	s.entry().WithField("text", text).Info("caller said")

	if cfg.IsExitIntent(text) {
		if s.beginEnding() {
			s.say(models.RoleExit, cfg.ExitMessage, true)
		}
		return
	}
	if cfg.WantsTransfer(text) {
		s.appendEntry(models.RoleSystem, "Transfer to agent requested")
		s.entry().Info("caller asked for a human agent")
		s.say(models.RoleBot, cfg.TransferMessage, false)
		return
	}

	s.mu.Lock()
	history := append([]llm.Message(nil), s.history...)
	s.mu.Unlock()

	var reply string
	if s.deps.Responder != nil {
		reply = s.deps.Responder.Respond(s.ctx, text, history)
	} else {
		reply = responder.ReplyNotConfigured
	}
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.history = responder.TrimHistory(append(s.history,
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	))
	s.mu.Unlock()

	s.say(models.RoleBot, reply, false)
}

// say records a bot line and queues it for playback. The line stays in the transcript even if
// it cannot be synthesized.
func (s *Session) say(role, text string, hangup bool) {
	text = strings.TrimSpace(text)
	if text == "" && !hangup {
		return
	}
	s.appendEntry(role, text)

	s.mu.Lock()
	s.queued++
	s.mu.Unlock()
	s.state.CompareAndSwap(int32(Listening), int32(Speaking))

	select {
	case s.speech <- speech{text: text, hangup: hangup}:
	case <-s.ctx.Done():
		s.mu.Lock()
		s.queued--
		s.mu.Unlock()
	}
}

// beginEnding moves the call to ENDING. It reports false if the call was already ending.
func (s *Session) beginEnding() bool {
	for {
		cur := s.state.Load()
		if State(cur) == Ending || State(cur) == Closed {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(Ending)) {
			s.entry().Info("call ending")
			return true
		}
	}
}

func (s *Session) heard() {
	s.mu.Lock()
	s.lastHeard = time.Now()
	s.nudged = false
	s.mu.Unlock()
	s.poke()
}
