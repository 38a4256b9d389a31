package telephony

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Event struct {
	CallID   string
	Type     string
	Phone    string
	Duration float64
}

// ParseEvent picks the event fields out of a webhook body. Piopiy and its SDKs use several
// spellings, so each field is the first non-empty of its aliases.
func ParseEvent(body map[string]any) Event {
	return Event{
		CallID:   firstString(body, "call_id", "id", "uuid"),
		Type:     strings.ToLower(firstString(body, "event", "event_type", "type", "status")),
		Phone:    firstString(body, "to", "to_number", "callee", "from", "from_number", "caller"),
		Duration: number(body["duration"]),
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	}
	return 0
}
