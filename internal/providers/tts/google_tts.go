package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/rajmehta89/call-agent-backend/internal/audio"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"google.golang.org/api/option"
)

type GoogleTTS struct {
	client *texttospeech.Client

	Voice        *ttspb.VoiceSelectionParams
	SpeakingRate float64
	Pitch        float64
	SSML         SSMLOptions
}

func NewGoogleTTS(ctx context.Context, speakingRate, pitch float64, opts ...option.ClientOption) (*GoogleTTS, error) {
	c, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if speakingRate <= 0 {
		speakingRate = 1.15
	}
	return &GoogleTTS{
		client: c,
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: "en-US",
			Name:         "en-US-Standard-D",
			SsmlGender:   ttspb.SsmlVoiceGender_MALE,
		},
		SpeakingRate: speakingRate,
		Pitch:        pitch,
		SSML:         DefaultSSML,
	}, nil
}

func (g *GoogleTTS) Close() error { return g.client.Close() }

func (g *GoogleTTS) SampleRate() int { return audio.SynthesisRate }

func (g *GoogleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	const op = "GoogleTTS.Synthesize"

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{
			InputSource: &ttspb.SynthesisInput_Ssml{Ssml: BuildSSML(text, g.SSML)},
		},
		Voice: g.Voice,
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding:   ttspb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(audio.SynthesisRate),
			SpeakingRate:    g.SpeakingRate,
			Pitch:           g.Pitch,
		},
	})
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "synthesis failed", err)
	}
	pcm := StripWAVHeader(resp.AudioContent)
	if len(pcm) == 0 {
		return nil, utils.E(utils.CodeUpstream, op, "empty audio content", nil)
	}
	return pcm, nil
}

// StripWAVHeader drops the RIFF container LINEAR16 responses come wrapped in and returns the
// raw sample data. Input without a RIFF header is returned as is.
func StripWAVHeader(b []byte) []byte {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b
	}
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		pos += 8
		if id == "data" {
			end := pos + size
			if end > len(b) || size == 0 {
				end = len(b)
			}
			return b[pos:end]
		}
		pos += size + size%2
	}
	return nil
}
