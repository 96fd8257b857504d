// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Shared command state and exchange wiring.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
	"github.com/jeranaias/rigrun-chatlink/internal/config"
	"github.com/jeranaias/rigrun-chatlink/internal/inputctx"
	"github.com/jeranaias/rigrun-chatlink/internal/ollama"
	"github.com/jeranaias/rigrun-chatlink/internal/openai"
	"github.com/jeranaias/rigrun-chatlink/internal/storage"
	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

// =============================================================================
// APP
// =============================================================================

// app carries what every command needs. The root command fills it in
// PersistentPreRunE; tests construct it directly.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// global flags
	configPath string
	provider   string
	model      string
	logLevel   string
	jsonOutput bool
	noColor    bool

	cfg    atomic.Pointer[config.Config]
	logger *zap.Logger

	// newTransport builds the transport; tests replace it.
	newTransport func(cfg *config.Config) (transport.Transport, error)
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	a := &app{in: in, out: out, errOut: errOut, logger: zap.NewNop()}
	a.newTransport = buildTransport
	return a
}

// config returns the current configuration.
func (a *app) config() *config.Config {
	if cfg := a.cfg.Load(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// setConfig applies the global flag overrides to cfg and installs it.
func (a *app) setConfig(cfg *config.Config) {
	if a.provider != "" {
		cfg.Chat.Provider = strings.ToLower(a.provider)
	}
	if a.model != "" {
		cfg.Chat.Model = a.model
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg.Store(cfg)
}

// =============================================================================
// TRANSPORT
// =============================================================================

// buildTransport returns the client for the configured provider.
func buildTransport(cfg *config.Config) (transport.Transport, error) {
	switch strings.ToLower(cfg.Chat.Provider) {
	case config.ProviderOllama, "":
		return ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.Ollama.URL,
			DefaultModel: cfg.Ollama.Model,
		}), nil
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.OpenAI.APIKey).
			WithBaseURL(cfg.OpenAI.BaseURL).
			WithModel(cfg.OpenAI.Model).
			WithSite(cfg.OpenAI.SiteURL, cfg.OpenAI.SiteName), nil
	default:
		return nil, &ValidationError{
			Field:   "provider",
			Value:   cfg.Chat.Provider,
			Reason:  "unknown provider",
			Example: "--provider ollama",
		}
	}
}

// =============================================================================
// CONVERSATION AND LINK
// =============================================================================

// newConversation builds a conversation whose system prompt tracks the
// current configuration. Placeholders expand in prompts and the system prompt.
func (a *app) newConversation() *chat.Conversation {
	cfg := a.config()
	vars := chat.NewPlaceholders()
	vars.Set("model", func() string { return a.config().ActiveModel() })
	vars.Set("provider", func() string { return a.config().Chat.Provider })

	return chat.NewConversation(
		chat.WithModel(cfg.ActiveModel()),
		chat.WithMaxTokens(cfg.Chat.MaxTokens),
		chat.WithTemperature(cfg.Chat.Temperature),
		chat.WithContextWindow(cfg.Chat.ContextWindow),
		chat.WithSystemPromptFunc(func() string { return vars.Substitute(a.config().Chat.SystemPrompt) }),
		chat.WithSubstitutor(vars),
	)
}

// session is a link with everything it was built from.
type session struct {
	link      *chat.Link
	transport transport.Transport
	journal   *storage.Journal
	vetoes    *vetoLog
}

// Close cancels any exchange in flight and closes the journal.
func (s *session) Close() {
	s.link.Close()
	if s.journal != nil {
		s.journal.Close()
	}
}

// newSession wires a transport, dispatcher, journal and the given listeners
// into a link over a fresh conversation.
func (a *app) newSession(store *inputctx.Store, listeners ...chat.Listener) (*session, error) {
	cfg := a.config()
	tr, err := a.newTransport(cfg)
	if err != nil {
		return nil, err
	}

	vetoes := &vetoLog{}
	dispatcher := chat.NewDispatcher(tr,
		chat.WithPreflight(
			vetoes.wrap(chat.RequireCredential(tr)),
			vetoes.wrap(chat.RateLimit(chat.PerMinute(cfg.Limits.RequestsPerMinute))),
		),
		chat.WithDispatcherLogger(a.logger),
	)

	s := &session{
		link:      chat.NewLink(a.newConversation(), store, dispatcher, chat.WithLogger(a.logger)),
		transport: tr,
		vetoes:    vetoes,
	}

	if cfg.Storage.Enabled {
		if s.journal, err = a.openJournal(); err != nil {
			// The journal is a record, not a requirement for chatting.
			a.logger.Warn("journal disabled", zap.Error(err))
		} else {
			s.link.RegisterListener(s.journal)
		}
	}
	for _, l := range listeners {
		s.link.RegisterListener(l)
	}
	return s, nil
}

// openJournal opens the configured exchange journal.
func (a *app) openJournal() (*storage.Journal, error) {
	path, err := a.config().JournalPath()
	if err != nil {
		return nil, err
	}
	return storage.OpenJournal(path, storage.WithLogger(a.logger))
}

// =============================================================================
// VETO LOG
// =============================================================================

// vetoLog remembers the last preflight refusal so commands can explain a
// Cancelled outcome.
type vetoLog struct {
	mu   sync.Mutex
	last error
}

func (v *vetoLog) wrap(check chat.Preflight) chat.Preflight {
	return func(conv *chat.Conversation) error {
		err := check(conv)
		if err != nil {
			v.mu.Lock()
			v.last = err
			v.mu.Unlock()
		}
		return err
	}
}

// take returns and clears the last refusal.
func (v *vetoLog) take() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.last
	v.last = nil
	return err
}

// =============================================================================
// OUTCOME
// =============================================================================

// outcome records how the most recent exchange ended.
type outcome struct {
	chat.NopListener

	mu       sync.Mutex
	id       string
	state    chat.State
	err      error
	response string
	usage    transport.Usage
	code     []text.CodeFragment
	model    string
	started  time.Time
	finished time.Time
}

func (o *outcome) ExchangeStarting(ev *chat.Starting) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.id, o.model, o.started = ev.ID, ev.Model, ev.At
	o.state, o.err, o.response, o.usage, o.code = chat.StateStarting, nil, "", transport.Usage{}, nil
	return nil
}

func (o *outcome) ResponseArrived(ev *chat.ResponseArrived) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state, o.response, o.usage, o.finished = chat.StateCompleted, ev.Response, ev.Usage, ev.Time()
	o.code = ev.Fragment().CodeBlocks()
}

func (o *outcome) ExchangeFailed(ev *chat.Failed) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state, o.err, o.response, o.finished = chat.StateFailed, ev.Err, ev.Partial, ev.Time()
}

func (o *outcome) ExchangeCancelled(ev *chat.Cancelled) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state, o.response, o.finished = chat.StateCancelled, ev.Partial, ev.Time()
}

// reset forgets the previous exchange.
func (o *outcome) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.id, o.state, o.err, o.response = "", chat.StateIdle, nil, ""
}

// codeBlocks returns the fenced code blocks of the last completed answer.
func (o *outcome) codeBlocks() []text.CodeFragment {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.code
}

// lastState returns how the most recent exchange ended.
func (o *outcome) lastState() chat.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// cancelledEarly reports whether the exchange was cancelled or vetoed before
// any response text arrived.
func (o *outcome) cancelledEarly() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == chat.StateCancelled && o.response == ""
}

// result returns nil for a Completed exchange and an ExchangeError otherwise.
// veto explains a Cancelled outcome that never reached the transport.
func (o *outcome) result(veto error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case chat.StateCompleted:
		return nil
	case chat.StateFailed:
		return &ExchangeError{ID: o.id, State: o.state, Err: o.err}
	case chat.StateCancelled:
		return &ExchangeError{ID: o.id, State: o.state, Err: veto}
	case chat.StateIdle:
		return fmt.Errorf("nothing to send")
	default:
		return &ExchangeError{ID: o.id, State: o.state}
	}
}
