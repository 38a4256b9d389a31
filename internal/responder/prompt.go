package responder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rajmehta89/call-agent-backend/internal/agentconfig"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
)

const conciseDirective = "\n\nIMPORTANT: Keep your responses SHORT and CONCISE. Aim for 1-2 sentences maximum. " +
	"Be direct and to the point. Avoid lengthy explanations unless specifically asked for more details."

// BuildSystemPrompt appends the brevity directive and, when kb is non-empty, one block per
// knowledge base section in document order.
func BuildSystemPrompt(base string, kb agentconfig.Object) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString(conciseDirective)
	if len(kb) == 0 {
		return b.String()
	}

	b.WriteString("\n\nHere is what you know:\n")
	for _, section := range kb {
		fmt.Fprintf(&b, "\n%s:\n", sectionTitle(section.Key))
		switch v := section.Value.(type) {
		case agentconfig.Object:
			for _, e := range v {
				fmt.Fprintf(&b, " - %s: %s\n", e.Key, formatValue(e.Value))
			}
		case []any:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = formatValue(item)
			}
			fmt.Fprintf(&b, " - %s\n", strings.Join(items, ", "))
		default:
			fmt.Fprintf(&b, " - %s\n", formatValue(v))
		}
	}
	return b.String()
}

// sectionTitle turns "payment_plans" into "Payment plans".
func sectionTitle(key string) string {
	s := strings.ToLower(strings.ReplaceAll(key, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case agentconfig.Object, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

const (
	historyLimit = 10
	historyKeep  = 8
	historySent  = 4
)

// TrimHistory keeps the last 8 entries once the history grows past 10.
func TrimHistory(h []llm.Message) []llm.Message {
	if len(h) <= historyLimit {
		return h
	}
	out := make([]llm.Message, historyKeep)
	copy(out, h[len(h)-historyKeep:])
	return out
}

func buildMessages(system string, history []llm.Message, user string) []llm.Message {
	if len(history) > historySent {
		history = history[len(history)-historySent:]
	}
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: user})
	return msgs
}
