package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rajmehta89/call-agent-backend/internal/audio"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

const DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen?sample_rate=8000&encoding=linear16&model=nova-2&language=en-IN&smart_format=true&vad_turnoff=1500"

type Deepgram struct {
	APIKey string
	URL    string

	// InputRate is the sample rate of the audio handed to Send. Audio is resampled to
	// 8 kHz when it differs.
	InputRate int

	Backoff   time.Duration
	KeepAlive time.Duration
	Dialer    *websocket.Dialer
	Logger    logrus.FieldLogger
}

func NewDeepgram(apiKey, url string, inputRate int, log logrus.FieldLogger) (*Deepgram, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, utils.E(utils.CodeMisconfigured, "stt.NewDeepgram", "DEEPGRAM_API_KEY is not set", nil)
	}
	if url == "" {
		url = DefaultDeepgramURL
	}
	if inputRate <= 0 {
		inputRate = audio.SynthesisRate
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Deepgram{
		APIKey:    apiKey,
		URL:       url,
		InputRate: inputRate,
		Backoff:   time.Second,
		KeepAlive: 8 * time.Second,
		Dialer:    websocket.DefaultDialer,
		Logger:    log,
	}, nil
}

func (d *Deepgram) Close() error { return nil }

func (d *Deepgram) Open(ctx context.Context) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		cfg:     d,
		audio:   make(chan []byte, 64),
		results: make(chan Transcript, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

type deepgramStream struct {
	cfg       *Deepgram
	audio     chan []byte
	results   chan Transcript
	connected atomic.Bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *deepgramStream) Results() <-chan Transcript { return s.results }

func (s *deepgramStream) Send(chunk []byte) {
	if len(chunk) == 0 || !s.connected.Load() {
		return
	}
	chunk = audio.ForRecognition(chunk, s.cfg.InputRate)
	select {
	case s.audio <- chunk:
	default:
		// upstream is slower than the call; drop rather than buffer
	}
}

func (s *deepgramStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *deepgramStream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)

	for {
		if err := s.session(ctx); err != nil && ctx.Err() == nil {
			s.cfg.Logger.WithError(err).Warn("deepgram stream dropped, reconnecting")
		}
		s.connected.Store(false)
		s.drain()

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.Backoff):
		}
	}
}

// session runs one upstream connection until it fails or ctx ends.
func (s *deepgramStream) session(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Token "+s.cfg.APIKey)

	conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return err
	}

	s.connected.Store(true)
	s.cfg.Logger.Debug("deepgram stream connected")

	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	// the reader must be gone before run closes the results channel
	defer func() {
		_ = conn.Close()
		<-readerDone
	}()
	go func() {
		defer close(readerDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			t, ok := ParseDeepgramMessage(data)
			if !ok || !t.Final {
				continue
			}
			select {
			case s.results <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
			return nil
		case err := <-readErr:
			return err
		case chunk := <-s.audio:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				return err
			}
		}
	}
}

func (s *deepgramStream) drain() {
	for {
		select {
		case <-s.audio:
		default:
			return
		}
	}
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Final       bool   `json:"final"`
	Channel     struct {
		IsFinal      bool                  `json:"is_final"`
		Alternatives []deepgramAlternative `json:"alternatives"`
	} `json:"channel"`
}

// ParseDeepgramMessage extracts the transcript from a "Results" message. The result is final
// if any of the flags the service uses for finality is set. ok is false for other message
// types, malformed frames and empty transcripts.
func ParseDeepgramMessage(data []byte) (Transcript, bool) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Transcript{}, false
	}
	if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
		return Transcript{}, false
	}
	alt := msg.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return Transcript{}, false
	}
	return Transcript{
		Text:       text,
		Confidence: alt.Confidence,
		Final:      msg.IsFinal || msg.SpeechFinal || msg.Final || msg.Channel.IsFinal || alt.Final,
	}, true
}
