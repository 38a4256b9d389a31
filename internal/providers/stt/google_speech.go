package stt

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GoogleSpeech recognizes 8 kHz LINEAR16 call audio with Cloud Speech streaming recognition.
type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
	Language     string
	Backoff      time.Duration
	Logger       logrus.FieldLogger
}

func NewGoogleSpeech(ctx context.Context, language string, log logrus.FieldLogger, opts ...option.ClientOption) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = "en-IN"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 8000,
		Language:     language,
		Backoff:      time.Second,
		Logger:       log,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Open(ctx context.Context) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &googleStream{
		g:       g,
		audio:   make(chan []byte, 64),
		results: make(chan Transcript, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

type googleStream struct {
	g         *GoogleSpeech
	audio     chan []byte
	results   chan Transcript
	connected atomic.Bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *googleStream) Results() <-chan Transcript { return s.results }

func (s *googleStream) Send(chunk []byte) {
	if len(chunk) == 0 || !s.connected.Load() {
		return
	}
	select {
	case s.audio <- chunk:
	default:
	}
}

func (s *googleStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *googleStream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)

	for {
		err := s.session(ctx)
		s.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		if err != nil && err != io.EOF {
			s.g.Logger.WithError(err).Warn("speech stream dropped, reopening")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.g.Backoff):
		}
	}
}

// session runs one StreamingRecognize call. The service ends streams after a few minutes,
// which surfaces here as io.EOF and a reopen.
func (s *googleStream) session(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	recvDone := make(chan struct{})
	started := false
	defer func() {
		cancel()
		if started {
			<-recvDone
		}
	}()

	stream, err := s.g.c.StreamingRecognize(ctx)
	if err != nil {
		return err
	}
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   s.g.Encoding,
					SampleRateHertz:            s.g.SampleRateHz,
					LanguageCode:               s.g.Language,
					EnableAutomaticPunctuation: true,
					Model:                      "phone_call",
				},
				InterimResults: false,
			},
		},
	}); err != nil {
		return err
	}
	s.connected.Store(true)

	recvErr := make(chan error, 1)
	started = true
	go func() {
		defer close(recvDone)
		for {
			resp, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			for _, r := range resp.Results {
				if !r.IsFinal || len(r.Alternatives) == 0 {
					continue
				}
				alt := r.Alternatives[0]
				text := strings.TrimSpace(alt.Transcript)
				if text == "" {
					continue
				}
				select {
				case s.results <- Transcript{Text: text, Confidence: float64(alt.Confidence), Final: true}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-parent.Done():
			_ = stream.CloseSend()
			return nil
		case err := <-recvErr:
			return err
		case chunk := <-s.audio:
			if err := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
			}); err != nil {
				return err
			}
		}
	}
}
