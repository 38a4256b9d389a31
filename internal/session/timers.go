package session

import (
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
)

// timerLoop nudges the caller once per silence stretch and ends the call when it has been
// idle for too long. Time spent listening to the bot does not count as silence.
func (s *Session) timerLoop() {
	t := time.NewTimer(time.Hour)
	defer t.Stop()

	for {
		if State(s.state.Load()) == Ending {
			return
		}
		nudgeAt, idleAt, nudged := s.deadlines()
		next := idleAt
		if !nudged && nudgeAt.Before(next) && (time.Now().Before(nudgeAt) || s.State() == Listening) {
			// an overdue nudge waits for the bot to finish; the speaker pokes us when it does
			next = nudgeAt
		}
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(time.Until(next))

		select {
		case <-s.ctx.Done():
			return
		case <-s.activity:
			continue
		case <-t.C:
		}

		now := time.Now()
		nudgeAt, idleAt, nudged = s.deadlines()
		switch {
		case !now.Before(idleAt):
			if s.beginEnding() {
				s.entry().Info("caller idle, ending call")
				s.say(models.RoleExit, s.config().ExitMessage, true)
			}
			return
		case !nudged && !now.Before(nudgeAt) && s.State() == Listening:
			s.mu.Lock()
			s.nudged = true
			s.mu.Unlock()
			s.entry().Debug("nudging silent caller")
			s.say(models.RoleBot, s.config().NudgeMessage, false)
		}
	}
}

// deadlines: the nudge counts from the later of the last caller speech and the end of bot
// audio; the idle limit counts from the last caller speech but never cuts the bot off.
func (s *Session) deadlines() (nudgeAt, idleAt time.Time, nudged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.lastHeard
	if s.speakingUntil.After(from) {
		from = s.speakingUntil
	}
	idleAt = s.lastHeard.Add(s.timing.IdleAfter)
	if s.speakingUntil.After(idleAt) {
		idleAt = s.speakingUntil
	}
	return from.Add(s.timing.NudgeAfter), idleAt, s.nudged
}
