package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rajmehta89/call-agent-backend/internal/models"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

// TranscriptArchive writes one JSON document per finished call.
type TranscriptArchive struct {
	up     Uploader
	prefix string
}

func NewTranscriptArchive(up Uploader, prefix string) *TranscriptArchive {
	if prefix == "" {
		prefix = "calls"
	}
	return &TranscriptArchive{up: up, prefix: prefix}
}

// ObjectName is <prefix>/YYYY/MM/DD/<session>.json, dated by call start.
func (a *TranscriptArchive) ObjectName(r models.CallReport) string {
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, r.StartTime.UTC().Format("2006/01/02"), r.SessionID)
}

func (a *TranscriptArchive) Archive(ctx context.Context, r models.CallReport, analysis *models.InterestAnalysis) (string, error) {
	doc := struct {
		models.CallReport
		DurationSeconds  float64                  `json:"duration_seconds"`
		InterestAnalysis *models.InterestAnalysis `json:"interest_analysis,omitempty"`
	}{r, r.Duration(), analysis}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return a.up.Upload(ctx, a.ObjectName(r), "application/json", bytes.NewReader(b))
}
