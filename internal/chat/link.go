// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chatlink/internal/inputctx"
	"github.com/jeranaias/rigrun-chatlink/internal/text"
)

// =============================================================================
// LINK
// =============================================================================

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithLogger sets the logger used by the link and its exchanges.
func WithLogger(logger *zap.Logger) LinkOption {
	return func(l *Link) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Link connects user input to the conversation: it merges context, composes
// the message, notifies listeners and dispatches the exchange.
type Link struct {
	conv       *Conversation
	store      *inputctx.Store
	registry   *Registry
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewLink creates a link for conv. store holds the pinned context and may be
// nil.
func NewLink(conv *Conversation, store *inputctx.Store, d *Dispatcher, opts ...LinkOption) *Link {
	l := &Link{
		conv:       conv,
		store:      store,
		dispatcher: d,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.registry = NewRegistry(l.logger)
	return l
}

// Conversation returns the conversation the link sends to.
func (l *Link) Conversation() *Conversation { return l.conv }

// InputContext returns the pinned context store.
func (l *Link) InputContext() *inputctx.Store { return l.store }

// RegisterListener adds a listener and returns a function removing it.
func (l *Link) RegisterListener(listener Listener) (unregister func()) {
	return l.registry.Register(listener)
}

// UnregisterListener removes a listener registered earlier.
func (l *Link) UnregisterListener(listener Listener) bool {
	return l.registry.Unregister(listener)
}

// Submit sends prompt with the ad-hoc fragments and the pinned context of
// override, or of the link's own store when override is nil.
//
// It returns the handle of the dispatched exchange, or nil when nothing was
// dispatched: the message was empty, a listener vetoed it, or it failed
// before reaching the transport. Listeners learn the outcome through events;
// Submit never panics and never returns an error.
//
// A submission made while another exchange is in flight fails with
// ErrExchangeInFlight and leaves the pinned context and the last posted
// fragments as they were.
func (l *Link) Submit(prompt string, adHoc []text.TextContent, override *inputctx.Store) (h *Handle) {
	store := l.store
	if override != nil {
		store = override
	}

	var pinned []*inputctx.Entry
	if store != nil {
		pinned = store.Entries()
	}
	fragments := MergeContext(adHoc, pinned)

	msg := Compose(l.conv, prompt, fragments)
	if msg.IsEmpty() {
		return nil
	}

	busy := l.conv.Pending() != nil
	previous := l.conv.LastPostedFragments()
	if !busy {
		l.conv.SetLastPostedFragments(fragments)
		if store != nil {
			store.Clear()
		}
	}

	ev := &Starting{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Fragments: fragments,
		Message:   &msg,
		Model:     l.conv.Model(),
		At:        time.Now(),
	}
	x := NewExchange(ev, l.registry.Fire(), l.logger)

	// rollback undoes what this submission changed before it ended early.
	rollback := func(err error) {
		switch {
		case busy:
		case errors.Is(err, ErrExchangeInFlight):
			l.conv.SetLastPostedFragments(previous)
			if store != nil {
				store.Restore(pinned)
			}
		default:
			l.conv.SetLastPostedFragments(nil)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("submit panicked", zap.String("exchange_id", ev.ID), zap.Any("panic", r))
			h = nil
			if s := x.State(); s == StateStarting || s == StateActive {
				rollback(nil)
				x.Fail(fmt.Errorf("exchange setup panicked: %v", r))
			}
		}
	}()

	if err := x.Start(); err != nil {
		rollback(err)
		x.Abort(err)
		return nil
	}
	if busy {
		x.Abort(ErrExchangeInFlight)
		return nil
	}

	handle, err := l.dispatcher.Push(l.conv, x)
	if err != nil {
		rollback(err)
		x.Abort(err)
		return nil
	}
	return handle
}

// CancelActive cancels the exchange in flight, if any.
func (l *Link) CancelActive() {
	if h := l.conv.Pending(); h != nil {
		h.Cancel()
	}
}

// NewConversation cancels any exchange in flight and clears the history.
func (l *Link) NewConversation() {
	l.CancelActive()
	l.conv.Clear()
}

// Close cancels the exchange in flight and waits for workers to exit.
func (l *Link) Close() {
	l.CancelActive()
	l.dispatcher.Wait()
}
