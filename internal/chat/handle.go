// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCELLATION HANDLE
// =============================================================================

// Handle controls one dispatched exchange.
type Handle struct {
	id string

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	cancelled  bool
	outcome    State

	done chan struct{}
}

func newHandle(id string) *Handle {
	return &Handle{id: id, outcome: StateActive, done: make(chan struct{})}
}

// ExchangeID returns the id of the exchange.
func (h *Handle) ExchangeID() string { return h.id }

// Cancel asks the exchange to stop. It is idempotent and does nothing once
// the exchange has ended.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
	if h.cancelFunc != nil {
		h.cancelFunc()
		h.cancelFunc = nil
	}
}

// CancelRequested reports whether Cancel has been called.
func (h *Handle) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Done is closed after the terminal event has been delivered.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns StateActive until the exchange ends, then its terminal state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Wait blocks until the exchange ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// setCancelFunc binds the handle to the worker context. A Cancel that
// happened before binding is applied immediately.
func (h *Handle) setCancelFunc(fn context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		fn()
		return
	}
	h.cancelFunc = fn
}

// finish records the outcome, releases the worker context and wakes waiters.
func (h *Handle) finish(outcome State) {
	h.mu.Lock()
	h.outcome = outcome
	if h.cancelFunc != nil {
		h.cancelFunc()
		h.cancelFunc = nil
	}
	h.mu.Unlock()
	close(h.done)
}
