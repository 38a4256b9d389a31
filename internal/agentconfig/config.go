// Package agentconfig holds the operator-editable agent persona: greeting, exit and system
// prompt text, the optional knowledge base and the intent keyword lists.
package agentconfig

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	GreetingMessage      string   `json:"greeting_message"`
	ExitMessage          string   `json:"exit_message"`
	NudgeMessage         string   `json:"nudge_message"`
	TransferMessage      string   `json:"transfer_message"`
	SystemPrompt         string   `json:"system_prompt"`
	KnowledgeBaseEnabled bool     `json:"knowledge_base_enabled"`
	KnowledgeBase        Object   `json:"knowledge_base"`
	ExitKeywords         []string `json:"exit_keywords,omitempty"`
	TransferKeywords     []string `json:"transfer_keywords,omitempty"`
	LastUpdated          string   `json:"last_updated"`
	Version              string   `json:"version"`
}

var DefaultExitKeywords = []string{
	"bye", "goodbye", "see you", "exit", "quit",
	"stop", "end", "finish", "done", "thank you",
	"thanks", "that's all", "no more", "nothing else",
	"i'm done", "gotta go", "have to go", "talk later",
}

var DefaultTransferKeywords = []string{
	"agent", "human", "person", "representative",
	"talk to someone", "speak to agent", "connect agent",
	"real person", "customer service", "help me",
	"not satisfied", "complaint", "issue",
}

func Defaults() Config {
	return Config{
		GreetingMessage: "Hello! I'm here to help you with information about Vansh Real Estate Developers projects. How can I assist you?",
		ExitMessage:     "Thank you for your interest in Vansh Real Estate Developers. Have a great day!",
		NudgeMessage:    "Are you still there? I'm happy to help with any questions about our projects.",
		TransferMessage: "I understand. I'll make a note for one of our representatives to call you back shortly.",
		SystemPrompt: "You are a professional, friendly real estate assistant representing Vansh Real Estate Developers. ONLY answer questions using the provided real estate information. " +
			"When a user asks a question, respond ONLY with the most relevant, specific answer. Do NOT include extra details unless the user explicitly asks for more. " +
			"Keep responses SHORT and CONCISE - aim for 1-2 sentences maximum.",
		KnowledgeBaseEnabled: false,
		KnowledgeBase:        Object{},
		ExitKeywords:         append([]string(nil), DefaultExitKeywords...),
		TransferKeywords:     append([]string(nil), DefaultTransferKeywords...),
		LastUpdated:          time.Now().UTC().Format(time.RFC3339),
		Version:              "1.0",
	}
}

// Store serves the agent config from a JSON file and reloads it whenever the file's
// modification time changes.
type Store struct {
	path string
	log  logrus.FieldLogger

	mu      sync.Mutex
	cfg     Config
	modTime time.Time
}

// NewStore loads path, creating it with defaults when it does not exist.
func NewStore(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{path: path, log: log, cfg: Defaults()}

	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.save(s.cfg); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the current config, reloading the file first if it changed on disk.
// A broken file keeps the last good config.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, err := os.Stat(s.path); err == nil && !st.ModTime().Equal(s.modTime) {
		if err := s.load(); err != nil {
			s.log.WithError(err).WithField("path", s.path).Warn("agent config reload failed")
		}
	}
	return s.cfg
}

// Update applies fn to the current config and writes it back.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)
	if err := s.save(next); err != nil {
		return s.cfg, err
	}
	return s.cfg, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	cfg := Defaults()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return err
	}
	fillDefaults(&cfg)
	st, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.modTime = st.ModTime()
	return nil
}

func (s *Store) save(cfg Config) error {
	cfg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return err
	}
	st, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.modTime = st.ModTime()
	return nil
}

// fillDefaults restores fields an operator blanked out.
func fillDefaults(cfg *Config) {
	d := Defaults()
	if strings.TrimSpace(cfg.GreetingMessage) == "" {
		cfg.GreetingMessage = d.GreetingMessage
	}
	if strings.TrimSpace(cfg.ExitMessage) == "" {
		cfg.ExitMessage = d.ExitMessage
	}
	if strings.TrimSpace(cfg.NudgeMessage) == "" {
		cfg.NudgeMessage = d.NudgeMessage
	}
	if strings.TrimSpace(cfg.TransferMessage) == "" {
		cfg.TransferMessage = d.TransferMessage
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = d.SystemPrompt
	}
	if len(cfg.ExitKeywords) == 0 {
		cfg.ExitKeywords = d.ExitKeywords
	}
	if len(cfg.TransferKeywords) == 0 {
		cfg.TransferKeywords = d.TransferKeywords
	}
}

// ActiveKnowledgeBase is the knowledge base when it is enabled and non-empty, else nil.
func (c Config) ActiveKnowledgeBase() Object {
	if !c.KnowledgeBaseEnabled || len(c.KnowledgeBase) == 0 {
		return nil
	}
	return c.KnowledgeBase
}

// IsExitIntent reports whether text contains any exit keyword (case-insensitive substring).
func (c Config) IsExitIntent(text string) bool {
	_, ok := MatchKeyword(text, c.ExitKeywords)
	return ok
}

func (c Config) WantsTransfer(text string) bool {
	_, ok := MatchKeyword(text, c.TransferKeywords)
	return ok
}

// FallbackReply lists the knowledge base topics, for when the model cannot answer.
func (c Config) FallbackReply() string {
	kb := c.ActiveKnowledgeBase()
	if len(kb) == 0 {
		return "I'm here to help! Please ask me any questions."
	}
	topics := make([]string, 0, len(kb))
	for _, k := range kb.Keys() {
		topics = append(topics, strings.ReplaceAll(k, "_", " "))
	}
	return "I can help you with: " + strings.Join(topics, ", ") + ". What would you like to know?"
}

// MatchKeyword returns the first keyword found in text. Matching is a lower-cased substring
// test, so "weekend" matches "end".
func MatchKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}
