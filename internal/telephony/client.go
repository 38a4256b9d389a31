package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/utils"
)

const DefaultAPIURL = "https://rest.piopiy.com/v1/voice/call"

// Client places outbound calls through the Piopiy REST API.
type Client struct {
	AppID      string
	Secret     string
	FromNumber string
	URL        string
	HTTP       *http.Client
}

func NewClient(appID, secret, fromNumber, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		AppID:      appID,
		Secret:     secret,
		FromNumber: fromNumber,
		URL:        apiURL,
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.AppID != "" && c.Secret != "" && c.FromNumber != ""
}

type OutboundCall struct {
	To          string
	PCMO        []Action
	HangupURL   string
	ExtraParams map[string]string
	Record      bool
}

type callRequest struct {
	AppID       any               `json:"appid"`
	Secret      string            `json:"secret"`
	To          any               `json:"to"`
	PiopiyNo    any               `json:"piopiy_no"`
	PCMO        []Action          `json:"pcmo"`
	HangupURL   string            `json:"hangup_url,omitempty"`
	ExtraParams map[string]string `json:"extra_params,omitempty"`
	Options     map[string]any    `json:"options,omitempty"`
}

// Call places the call and returns the provider's JSON response.
func (c *Client) Call(ctx context.Context, call OutboundCall) (map[string]any, error) {
	const op = "Piopiy.Call"

	if !c.Configured() {
		return nil, utils.E(utils.CodeMisconfigured, op, "piopiy credentials are not configured", nil)
	}
	to := utils.CleanPhone(call.To)
	if to == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "destination number is required", nil)
	}

	body := callRequest{
		AppID:       numeric(c.AppID),
		Secret:      c.Secret,
		To:          numeric(to),
		PiopiyNo:    numeric(utils.CleanPhone(c.FromNumber)),
		PCMO:        call.PCMO,
		HangupURL:   call.HangupURL,
		ExtraParams: call.ExtraParams,
	}
	if call.Record {
		body.Options = map[string]any{"record": true}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(b))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "piopiy request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, utils.E(utils.CodeMisconfigured, op, "piopiy rejected credentials", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return nil, utils.E(utils.CodeUpstream, op, "piopiy returned an error",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			out = map[string]any{"raw": string(raw)}
		}
	}
	return out, nil
}

// numeric sends digit-only values as JSON numbers, the way Piopiy expects ids and numbers.
func numeric(s string) any {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n
	}
	return s
}
