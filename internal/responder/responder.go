// Package responder turns one caller utterance into one short spoken reply.
package responder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/agentconfig"
	"github.com/rajmehta89/call-agent-backend/internal/providers/llm"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	ReplyTimeout       = "I apologize, but I'm having trouble processing your request right now. Could you please try again?"
	ReplyAuthError     = "I'm sorry, there's an authentication issue with my AI service."
	ReplyError         = "I'm sorry, I encountered an error. Please try again."
	ReplyNotConfigured = "I'm sorry, the AI service is not properly configured."
)

// DefaultOptions are the generation settings for spoken replies.
var DefaultOptions = llm.Options{
	Model:       "llama-3.3-70b-versatile",
	MaxTokens:   80,
	Temperature: 0.7,
	TopP:        0.9,
}

const DefaultTimeout = 10 * time.Second

// ConfigSource is satisfied by *agentconfig.Store.
type ConfigSource interface {
	Get() agentconfig.Config
}

type Generator struct {
	llm     llm.Provider
	cfg     ConfigSource
	opts    llm.Options
	timeout time.Duration
	log     logrus.FieldLogger
}

// New builds a generator. A nil provider makes every reply the not-configured apology.
func New(p llm.Provider, cfg ConfigSource, opts llm.Options, timeout time.Duration, log logrus.FieldLogger) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Model == "" {
		opts.Model = DefaultOptions.Model
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultOptions.MaxTokens
	}
	return &Generator{llm: p, cfg: cfg, opts: opts, timeout: timeout, log: log}
}

type completion struct {
	text string
	err  error
}

// Respond never fails: every error path produces one of the fixed apologies. The deadline
// holds even if the provider ignores its context.
func (g *Generator) Respond(ctx context.Context, userText string, history []llm.Message) string {
	if g.llm == nil {
		g.log.Error("responder: no llm provider configured")
		return ReplyNotConfigured
	}

	cfg := agentconfig.Defaults()
	if g.cfg != nil {
		cfg = g.cfg.Get()
	}
	msgs := buildMessages(BuildSystemPrompt(cfg.SystemPrompt, cfg.ActiveKnowledgeBase()), history, userText)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan completion, 1)
	go func() {
		text, err := g.llm.Complete(ctx, msgs, g.opts)
		done <- completion{text: text, err: err}
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	var res completion
	select {
	case res = <-done:
	case <-timer.C:
		g.log.WithField("timeout", g.timeout.String()).Warn("llm reply timed out")
		return ReplyTimeout
	case <-ctx.Done():
		g.log.WithError(ctx.Err()).Warn("llm reply cancelled")
		return ReplyTimeout
	}

	if res.err != nil {
		return g.replyForError(res.err)
	}
	if strings.TrimSpace(res.text) == "" {
		return cfg.FallbackReply()
	}
	return strings.TrimSpace(res.text)
}

func (g *Generator) replyForError(err error) string {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		g.log.WithError(err).Error("llm not configured")
		return ReplyNotConfigured
	case isAuthFailure(err):
		g.log.WithError(err).Error("llm authentication failed")
		return ReplyAuthError
	case utils.IsCode(err, utils.CodeTimeout), errors.Is(err, context.DeadlineExceeded):
		g.log.WithError(err).Warn("llm reply timed out")
		return ReplyTimeout
	default:
		g.log.WithError(err).Warn("llm reply failed")
		return ReplyError
	}
}

func isAuthFailure(err error) bool {
	if utils.IsCode(err, utils.CodeMisconfigured) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "api_key") || strings.Contains(msg, "authentication")
}
