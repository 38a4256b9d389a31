package tts

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

type SSMLOptions struct {
	Rate  string        // prosody rate, e.g. "90%"
	Pitch string        // prosody pitch, e.g. "-1st"
	Pause time.Duration // break inserted between sentences
}

var DefaultSSML = SSMLOptions{Rate: "95%", Pitch: "-1st", Pause: 300 * time.Millisecond}

// SplitSentences splits on '.', '!' or '?' followed by whitespace.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && isSpace(text[i+1]) {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// BuildSSML escapes text and wraps it in one prosody element with a pause between sentences.
func BuildSSML(text string, o SSMLOptions) string {
	var b bytes.Buffer
	b.WriteString("<speak>")
	fmt.Fprintf(&b, `<prosody rate="%s" pitch="%s">`, o.Rate, o.Pitch)
	for i, s := range SplitSentences(text) {
		if i > 0 && o.Pause > 0 {
			fmt.Fprintf(&b, `<break time="%dms"/>`, o.Pause.Milliseconds())
		}
		_ = xml.EscapeText(&b, []byte(s))
	}
	b.WriteString("</prosody></speak>")
	return b.String()
}
