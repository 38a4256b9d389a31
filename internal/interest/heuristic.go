package interest

import (
	"fmt"
	"strings"

	"github.com/rajmehta89/call-agent-backend/internal/models"
)

var positiveKeywords = []string{
	"price", "cost", "visit", "site", "when", "how much", "payment",
	"loan", "emi", "possession", "ready", "interested", "yes", "ok",
	"sure", "tell me", "what about", "can i", "booking",
}

var negativeKeywords = []string{
	"not interested", "no", "don't call", "remove", "stop", "never",
	"can't afford", "not looking", "not buying", "not now",
}

// Heuristic scores the caller's lines against fixed keyword lists. It is what Analyze
// returns whenever the model is unavailable or fails.
func Heuristic(transcript []models.TranscriptEntry) models.InterestAnalysis {
	lines := make([]string, 0, len(transcript))
	for _, e := range transcript {
		lines = append(lines, strings.ToLower(e.Content))
	}
	text := strings.Join(lines, " ")

	pos := matching(text, positiveKeywords)
	neg := matching(text, negativeKeywords)

	switch {
	case len(pos) > len(neg) && len(pos) >= 2:
		return models.InterestAnalysis{
			Status:        models.Interested,
			Confidence:    0.7,
			Reasoning:     fmt.Sprintf("Fallback analysis detected %d positive indicators", len(pos)),
			KeyIndicators: firstN(pos, 5),
		}
	case len(neg) > len(pos) && len(neg) >= 1:
		return models.InterestAnalysis{
			Status:        models.NotInterested,
			Confidence:    0.7,
			Reasoning:     fmt.Sprintf("Fallback analysis detected %d negative indicators", len(neg)),
			KeyIndicators: firstN(neg, 5),
		}
	}
	return models.InterestAnalysis{
		Status:        models.Neutral,
		Confidence:    0.5,
		Reasoning:     "Fallback analysis - no clear interest indicators detected",
		KeyIndicators: []string{},
	}
}

func matching(text string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if strings.Contains(text, k) {
			out = append(out, k)
		}
	}
	return out
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return append([]string{}, s...)
}
