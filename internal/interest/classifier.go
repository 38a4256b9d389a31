// Package interest grades how interested a caller was, once per finished call.
package interest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/sirupsen/logrus"
)

const rubric = `You are an expert conversation analyst specializing in real estate sales.
Your task is to analyze conversations between potential customers and real estate agents to determine the customer's level of interest.

Please analyze the conversation and provide your assessment in the following JSON format:
{
    "interest_status": "interested" | "not_interested" | "neutral",
    "confidence": 0.85,
    "reasoning": "Brief explanation of why you chose this status",
    "key_indicators": ["specific phrase 1", "specific phrase 2", "behavior 1"]
}

Interest Level Guidelines:
- INTERESTED: Customer asks specific questions about properties, pricing, amenities, site visits, payment plans, possession dates, or shows clear intent to purchase/visit
- NOT_INTERESTED: Customer explicitly says no, shows disinterest, asks to be removed from calls, or gives clear negative responses
- NEUTRAL: Customer engages but doesn't show clear positive or negative intent, asks general questions only, or conversation is too brief

Be conservative - only mark as "interested" if there are clear positive indicators. When in doubt, choose "neutral".
Reply with the JSON object only.`

var Options = llm.Options{
	Model:       "llama-3.3-70b-versatile",
	MaxTokens:   300,
	Temperature: 0.3,
	TopP:        0.9,
}

type Classifier struct {
	llm     llm.Provider
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewClassifier returns a classifier; with a nil provider every call uses Heuristic.
func NewClassifier(p llm.Provider, timeout time.Duration, log logrus.FieldLogger) *Classifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Classifier{llm: p, timeout: timeout, log: log}
}

// Analyze always returns a status in {interested, not_interested, neutral} with a confidence
// in [0,1].
func (c *Classifier) Analyze(ctx context.Context, transcript, responses []models.TranscriptEntry) models.InterestAnalysis {
	if len(transcript) < 2 {
		return models.InterestAnalysis{
			Status:        models.Neutral,
			Confidence:    0.5,
			Reasoning:     "Conversation too short to determine interest level",
			KeyIndicators: []string{},
		}
	}
	if c.llm == nil {
		return Heuristic(transcript)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: rubric},
		{Role: llm.RoleUser, Content: "Please analyze this conversation:\n\n" + FormatDialogue(transcript, responses)},
	}, Options)
	if err != nil {
		c.log.WithError(err).Warn("interest analysis failed, using keyword heuristic")
		return Heuristic(transcript)
	}

	a := ParseAnalysis(raw)
	c.log.WithFields(logrus.Fields{
		"interest_status": a.Status,
		"confidence":      a.Confidence,
	}).Info("interest analysis done")
	return a
}

// FormatDialogue interleaves caller and bot lines by timestamp as "User: ..." and "Bot: ...".
func FormatDialogue(transcript, responses []models.TranscriptEntry) string {
	type line struct {
		at      time.Time
		speaker string
		text    string
	}
	all := make([]line, 0, len(transcript)+len(responses))
	for _, e := range transcript {
		all = append(all, line{e.Timestamp, "User", e.Content})
	}
	for _, e := range responses {
		all = append(all, line{e.Timestamp, "Bot", e.Content})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	var b strings.Builder
	for _, l := range all {
		text := strings.TrimSpace(l.text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.speaker)
		b.WriteString(": ")
		b.WriteString(text)
	}
	return b.String()
}
