package interest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rajmehta89/call-agent-backend/internal/models"
)

const (
	maxReasoning  = 500
	maxIndicators = 10
)

var (
	negativeVerdicts = []string{"not interested", "not_interested", "negative", "refused", "declined"}
	positiveVerdicts = []string{"interested", "positive", "wants to", "asking about"}
)

// ParseAnalysis reads the classifier's reply. It takes the text between the first '{' and the
// last '}' as JSON; when that fails it falls back to a keyword reading of the whole reply.
func ParseAnalysis(raw string) models.InterestAnalysis {
	if a, ok := parseJSON(raw); ok {
		return a
	}
	return parseLoose(raw)
}

func parseJSON(raw string) (models.InterestAnalysis, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return models.InterestAnalysis{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return models.InterestAnalysis{}, false
	}
	for _, k := range []string{"interest_status", "confidence", "reasoning", "key_indicators"} {
		if _, ok := fields[k]; !ok {
			return models.InterestAnalysis{}, false
		}
	}

	var status string
	if err := json.Unmarshal(fields["interest_status"], &status); err != nil {
		return models.InterestAnalysis{}, false
	}
	conf, ok := parseConfidence(fields["confidence"])
	if !ok {
		return models.InterestAnalysis{}, false
	}

	a := models.InterestAnalysis{
		Status:        models.InterestStatus(strings.ToLower(strings.TrimSpace(status))),
		Confidence:    clamp01(conf),
		Reasoning:     truncate(rawString(fields["reasoning"]), maxReasoning),
		KeyIndicators: parseIndicators(fields["key_indicators"]),
	}
	if !a.Status.Valid() {
		a.Status = models.Neutral
	}
	return a, true
}

// parseConfidence accepts a JSON number or a numeric string. ParseFloat also reads "NaN" and
// "Inf", which are rejected.
func parseConfidence(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// rawString renders a JSON value as text; strings lose their quotes.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func parseIndicators(raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	if len(items) > maxIndicators {
		items = items[:maxIndicators]
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(it))
	}
	return out
}

func parseLoose(raw string) models.InterestAnalysis {
	lower := strings.ToLower(raw)
	a := models.InterestAnalysis{
		Status:        models.Neutral,
		Confidence:    0.5,
		Reasoning:     "Fallback analysis - LLM response could not be parsed properly",
		KeyIndicators: []string{},
	}
	switch {
	case containsAny(lower, negativeVerdicts):
		a.Status, a.Confidence = models.NotInterested, 0.6
	case containsAny(lower, positiveVerdicts):
		a.Status, a.Confidence = models.Interested, 0.6
	}
	return a
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
