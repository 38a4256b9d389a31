// Package telephony speaks Piopiy: call-control objects (PCMO), media-stream frames,
// lifecycle events and the REST endpoint for outbound calls.
package telephony

import (
	"encoding/base64"
	"encoding/json"
)

type StreamOptions struct {
	ListenMode     string            `json:"listen_mode"`
	StreamOnAnswer bool              `json:"stream_on_answer"`
	VoiceQuality   int               `json:"voice_quality,omitempty"`
	ExtraParams    map[string]string `json:"extra_params"`
}

// Action is one PCMO step. Only the stream action is used.
type Action struct {
	Action  string        `json:"action"`
	WSURL   string        `json:"ws_url"`
	Options StreamOptions `json:"options"`
}

type HangupResponse struct {
	Hangup bool `json:"hangup"`
}

// StreamPCMO bridges the answered call to wsURL at 8 kHz, listening to both legs.
// Empty extra values are dropped.
func StreamPCMO(wsURL string, extra map[string]string) []Action {
	params := map[string]string{}
	for k, v := range extra {
		if v != "" {
			params[k] = v
		}
	}
	return []Action{{
		Action: "stream",
		WSURL:  wsURL,
		Options: StreamOptions{
			ListenMode:     "both",
			StreamOnAnswer: true,
			VoiceQuality:   8000,
			ExtraParams:    params,
		},
	}}
}

type playStreamData struct {
	AudioContentType string `json:"audioContentType"`
	SampleRate       int    `json:"sampleRate"`
	AudioContent     string `json:"audioContent"`
}

type playStream struct {
	Type string         `json:"type"`
	Data playStreamData `json:"data"`
}

// PlayStreamFrame wraps 8 kHz PCM in the text frame the media stream plays back.
func PlayStreamFrame(pcm []byte, sampleRate int) ([]byte, error) {
	return json.Marshal(playStream{
		Type: "playStream",
		Data: playStreamData{
			AudioContentType: "raw",
			SampleRate:       sampleRate,
			AudioContent:     base64.StdEncoding.EncodeToString(pcm),
		},
	})
}
