package telephony

import (
	"encoding/json"
	"net/url"
)

// CallMeta identifies who is on a media stream.
type CallMeta struct {
	SessionID string `json:"session,omitempty"`
	Phone     string `json:"phone_number,omitempty"`
	LeadID    string `json:"lead_id,omitempty"`
}

// Merge returns m with every non-empty field of o applied; known values are never erased.
func (m CallMeta) Merge(o CallMeta) CallMeta {
	if o.SessionID != "" {
		m.SessionID = o.SessionID
	}
	if o.Phone != "" {
		m.Phone = o.Phone
	}
	if o.LeadID != "" {
		m.LeadID = o.LeadID
	}
	return m
}

func (m CallMeta) Empty() bool {
	return m.SessionID == "" && m.Phone == "" && m.LeadID == ""
}

// MetaFromQuery reads session|sid, phone_number|phone and lead_id.
func MetaFromQuery(q url.Values) CallMeta {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := q.Get(k); v != "" {
				return v
			}
		}
		return ""
	}
	return CallMeta{
		SessionID: first("session", "sid"),
		Phone:     first("phone_number", "phone"),
		LeadID:    first("lead_id"),
	}
}

// ParseMetadataFrame reads a text frame of the form {"extra_params":{...}} or {"meta":{...}}.
// ok is false for frames that are not JSON objects or carry no call context.
func ParseMetadataFrame(data []byte) (CallMeta, bool) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return CallMeta{}, false
	}

	var out CallMeta
	if ep, ok := frame["extra_params"].(map[string]any); ok {
		out = out.Merge(CallMeta{
			SessionID: asString(ep["session"]),
			Phone:     asString(ep["phone_number"]),
			LeadID:    asString(ep["lead_id"]),
		})
	}
	if meta, ok := frame["meta"].(map[string]any); ok {
		out = out.Merge(CallMeta{
			SessionID: firstString(meta, "session", "sid", "call_session_id"),
			Phone:     firstString(meta, "phone_number", "phone"),
			LeadID:    asString(meta["lead_id"]),
		})
	}
	return out, !out.Empty()
}
