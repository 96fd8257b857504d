// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

// MaxHistory is the number of messages kept in a conversation. Older
// messages are pruned when it is exceeded.
const MaxHistory = 1000

// =============================================================================
// CONVERSATION
// =============================================================================

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithModel sets the model used for requests.
func WithModel(model string) ConversationOption {
	return func(c *Conversation) { c.model = model }
}

// WithMaxTokens caps the length of each response.
func WithMaxTokens(n int) ConversationOption {
	return func(c *Conversation) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ConversationOption {
	return func(c *Conversation) { c.temperature = t }
}

// WithContextWindow bounds the estimated tokens of history sent with each
// request. Zero sends the whole history.
func WithContextWindow(tokens int) ConversationOption {
	return func(c *Conversation) { c.contextWindow = tokens }
}

// WithSystemPrompt sets a fixed system prompt.
func WithSystemPrompt(prompt string) ConversationOption {
	return func(c *Conversation) { c.systemPrompt = func() string { return prompt } }
}

// WithSystemPromptFunc sets a supplier evaluated for every request.
func WithSystemPromptFunc(fn func() string) ConversationOption {
	return func(c *Conversation) { c.systemPrompt = fn }
}

// WithSubstitutor sets the prompt substitution policy.
func WithSubstitutor(s TextSubstitutor) ConversationOption {
	return func(c *Conversation) { c.substitutor = s }
}

// Conversation is the state shared by the exchanges of one chat: the
// accepted history, the model settings and the single pending-exchange slot.
// It is safe for concurrent use.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	mu            sync.RWMutex
	history       []transport.Message
	model         string
	maxTokens     int
	temperature   float64
	contextWindow int
	systemPrompt  func() string
	substitutor   TextSubstitutor
	lastPosted    []text.TextContent

	pending atomic.Pointer[Handle]
}

// NewConversation creates an empty conversation.
func NewConversation(opts ...ConversationOption) *Conversation {
	c := &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History returns a copy of the accepted messages.
func (c *Conversation) History() []transport.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]transport.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Append adds messages to the history, pruning the oldest past MaxHistory.
func (c *Conversation) Append(msgs ...transport.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msgs...)
	if over := len(c.history) - MaxHistory; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
}

// Clear drops the history and the last-posted fragments.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.lastPosted = nil
}

// Model returns the active model.
func (c *Conversation) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SetModel changes the model for later exchanges.
func (c *Conversation) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// ModelConfig returns the request settings.
func (c *Conversation) ModelConfig() transport.ModelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return transport.ModelConfig{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
}

// ContextWindow returns the history token budget, zero when unbounded.
func (c *Conversation) ContextWindow() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contextWindow
}

// SystemPrompt evaluates the system prompt supplier.
func (c *Conversation) SystemPrompt() string {
	c.mu.RLock()
	fn := c.systemPrompt
	c.mu.RUnlock()
	if fn == nil {
		return ""
	}
	return fn()
}

// Substitute applies the substitution policy to prompt.
func (c *Conversation) Substitute(prompt string) string {
	c.mu.RLock()
	s := c.substitutor
	c.mu.RUnlock()
	if s == nil {
		return prompt
	}
	return s.Substitute(prompt)
}

// LastPostedFragments returns the fragments of the most recent submission
// that was not refused.
func (c *Conversation) LastPostedFragments() []text.TextContent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]text.TextContent, len(c.lastPosted))
	copy(out, c.lastPosted)
	return out
}

// SetLastPostedFragments records the fragments of a submission.
func (c *Conversation) SetLastPostedFragments(fragments []text.TextContent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPosted = append([]text.TextContent(nil), fragments...)
}

// Pending returns the handle of the exchange in flight, or nil.
func (c *Conversation) Pending() *Handle {
	return c.pending.Load()
}

// claim installs h as the pending exchange if the slot is free.
func (c *Conversation) claim(h *Handle) bool {
	return c.pending.CompareAndSwap(nil, h)
}

// release frees the slot if h still holds it.
func (c *Conversation) release(h *Handle) {
	c.pending.CompareAndSwap(h, nil)
}
