package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	if projectID == "" {
		return nil, ErrNotConfigured
	}
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

// Complete maps the chat onto a Gemini chat session: system messages become the system
// instruction, the last user message is sent and the rest is history.
func (v *VertexGemini) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	const op = "VertexGemini.Complete"

	// a model value per call so concurrent calls do not share generation settings
	m := v.client.GenerativeModel(v.modelName)
	if opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		m.SetTemperature(opts.Temperature)
	}
	if opts.TopP > 0 {
		m.SetTopP(opts.TopP)
	}

	var system []string
	var history []*vertexgenai.Content
	var last string
	for i, msg := range msgs {
		switch {
		case msg.Role == RoleSystem:
			system = append(system, msg.Content)
		case i == len(msgs)-1 && msg.Role == RoleUser:
			last = msg.Content
		default:
			role := "user"
			if msg.Role == RoleAssistant {
				role = "model"
			}
			history = append(history, &vertexgenai.Content{Role: role, Parts: []vertexgenai.Part{vertexgenai.Text(msg.Content)}})
		}
	}
	if len(system) > 0 {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(strings.Join(system, "\n\n"))}}
	}

	cs := m.StartChat()
	cs.History = history

	var full strings.Builder
	it := cs.SendMessageStream(ctx, vertexgenai.Text(last))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", utils.E(utils.CodeTimeout, op, "completion cancelled", err)
			}
			return "", utils.E(utils.CodeUpstream, op, "completion failed", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					full.WriteString(string(t))
				}
			}
		}
	}
	return strings.TrimSpace(full.String()), nil
}
