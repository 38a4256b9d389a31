package session

import (
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/audio"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
)

// speakerLoop plays queued lines in the order they were queued.
func (s *Session) speakerLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case sp := <-s.speech:
			s.speak(sp)
			if sp.hangup {
				s.hangupAfterSpeech()
				return
			}
		}
	}
}

func (s *Session) speak(sp speech) {
	defer func() {
		s.mu.Lock()
		s.queued--
		s.mu.Unlock()
		s.poke()
	}()
	if sp.text == "" || s.deps.TTS == nil {
		return
	}

	log := s.entry()
	pcm, err := s.deps.TTS.Synthesize(s.ctx, sp.text)
	if err != nil {
		log.WithError(err).Warn("speech synthesis failed, line not spoken")
		return
	}
	if len(pcm) == 0 {
		return
	}

	rate := s.deps.TTS.SampleRate()
	if rate <= 0 {
		rate = audio.SynthesisRate
	}
	out, err := audio.Resample(pcm, rate, audio.TelephonyRate, 1)
	if err != nil {
		log.WithError(err).Warn("resampling synthesized audio failed")
		return
	}
	frame, err := telephony.PlayStreamFrame(out, audio.TelephonyRate)
	if err != nil {
		log.WithError(err).Warn("encoding playStream frame failed")
		return
	}

	dur := audio.Duration(len(out), audio.TelephonyRate)
	now := time.Now()
	s.mu.Lock()
	base := s.speakingUntil
	if base.Before(now) {
		base = now
	}
	s.speakingUntil = base.Add(dur + s.timing.SpeakPad)
	until := s.speakingUntil
	s.mu.Unlock()

	if s.transport == nil {
		return
	}
	if err := s.transport.Send(frame); err != nil {
		log.WithError(err).Warn("sending audio to caller failed")
		return
	}
	log.WithField("speaking_until", until).Debug("bot speaking")
}

// hangupAfterSpeech waits for the exit line to play out, or the hangup delay if longer, and
// then ends the call.
func (s *Session) hangupAfterSpeech() {
	s.mu.Lock()
	at := time.Now().Add(s.timing.HangupDelay)
	if s.speakingUntil.After(at) {
		at = s.speakingUntil
	}
	s.mu.Unlock()

	t := time.NewTimer(time.Until(at))
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-t.C:
	}
	go s.Close("exit")
}
