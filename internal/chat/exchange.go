// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

// =============================================================================
// EXCHANGE STATE
// =============================================================================

// State is the lifecycle position of an exchange.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s ends the exchange.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateActive, StateFailed, StateCancelled},
	StateActive:   {StateCompleted, StateFailed, StateCancelled},
}

// CanTransition reports whether the state table allows from -> to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// EXCHANGE
// =============================================================================

// Exchange drives one request/response cycle and reports it to a listener.
//
// A terminal transition requested after the exchange has already ended is a
// no-op that returns false, which is how a cancel racing with completion
// resolves. Any other transition outside the table panics with a
// *TransitionError.
type Exchange struct {
	starting *Starting
	listener Listener
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	partial strings.Builder
	handle  *Handle
	hooks   []func(State, string)
}

// NewExchange creates an idle exchange for ev that reports to l.
func NewExchange(ev *Starting, l Listener, logger *zap.Logger) *Exchange {
	if l == nil {
		l = NopListener{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exchange{
		starting: ev,
		listener: l,
		logger:   logger.With(zap.String("exchange_id", ev.ID)),
	}
}

// ID returns the exchange id.
func (x *Exchange) ID() string { return x.starting.ID }

// Starting returns the event that opened the exchange.
func (x *Exchange) Starting() *Starting { return x.starting }

// State returns the current state.
func (x *Exchange) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Partial returns the response text accumulated so far.
func (x *Exchange) Partial() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.partial.String()
}

// OnTerminal registers fn to run when the exchange ends, before the terminal
// event is delivered. fn receives the terminal state and the final text.
func (x *Exchange) OnTerminal(fn func(state State, response string)) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.hooks = append(x.hooks, fn)
}

// Start moves the exchange to Starting and delivers the Starting event.
// The returned error is the listeners' refusal, if any.
func (x *Exchange) Start() error {
	x.transition(StateStarting)
	return x.listener.ExchangeStarting(x.starting)
}

// Abort ends an exchange that never reached Active. A veto ends it as
// Cancelled; any other error as Failed.
func (x *Exchange) Abort(err error) bool {
	if IsVeto(err) {
		x.logger.Info("exchange vetoed", zap.Error(err))
		return x.Cancel()
	}
	return x.Fail(err)
}

// Activate moves the exchange to Active and delivers Started.
func (x *Exchange) Activate(h *Handle) {
	x.mu.Lock()
	x.handle = h
	x.mu.Unlock()

	x.transition(StateActive)
	x.listener.ExchangeStarted(x.starting.Started(h))
}

// Deliver appends delta to the response and reports the cumulative text.
// Empty deltas are ignored.
func (x *Exchange) Deliver(delta string) {
	if delta == "" {
		return
	}
	x.mu.Lock()
	if x.state != StateActive {
		from := x.state
		x.mu.Unlock()
		panic(&TransitionError{ExchangeID: x.ID(), From: from, To: StateActive})
	}
	x.partial.WriteString(delta)
	partial := x.partial.String()
	x.mu.Unlock()

	x.listener.ResponseArriving(x.starting.Arriving(partial, delta))
}

// Complete ends the exchange with the authoritative response text. An empty
// final text means the accumulated partial text is the response.
func (x *Exchange) Complete(final string, usage transport.Usage) bool {
	if !x.transition(StateCompleted) {
		return false
	}
	response := final
	if response == "" {
		response = x.Partial()
	}
	x.runHooks(StateCompleted, response)
	x.logger.Debug("exchange completed", zap.Int("chars", len(response)))
	x.listener.ResponseArrived(x.starting.Arrived(response, usage))
	x.finishHandle(StateCompleted)
	return true
}

// Fail ends the exchange with err.
func (x *Exchange) Fail(err error) bool {
	if !x.transition(StateFailed) {
		return false
	}
	partial := x.Partial()
	x.runHooks(StateFailed, partial)
	x.logger.Warn("exchange failed", zap.Error(err))
	x.listener.ExchangeFailed(x.starting.Failed(err, partial))
	x.finishHandle(StateFailed)
	return true
}

// Cancel ends the exchange as Cancelled.
func (x *Exchange) Cancel() bool {
	if !x.transition(StateCancelled) {
		return false
	}
	partial := x.Partial()
	x.runHooks(StateCancelled, partial)
	x.logger.Debug("exchange cancelled", zap.Int("partial_chars", len(partial)))
	x.listener.ExchangeCancelled(x.starting.Cancelled(partial))
	x.finishHandle(StateCancelled)
	return true
}

// transition applies from -> to. It returns false when to is terminal and the
// exchange has already ended.
func (x *Exchange) transition(to State) bool {
	x.mu.Lock()
	from := x.state
	if from.IsTerminal() && to.IsTerminal() {
		x.mu.Unlock()
		return false
	}
	if !CanTransition(from, to) {
		x.mu.Unlock()
		panic(&TransitionError{ExchangeID: x.ID(), From: from, To: to})
	}
	x.state = to
	x.mu.Unlock()

	x.logger.Debug("exchange transition", zap.Stringer("from", from), zap.Stringer("to", to))
	return true
}

func (x *Exchange) runHooks(state State, response string) {
	x.mu.Lock()
	hooks := x.hooks
	x.mu.Unlock()
	for _, fn := range hooks {
		fn(state, response)
	}
}

func (x *Exchange) finishHandle(state State) {
	x.mu.Lock()
	h := x.handle
	x.mu.Unlock()
	if h != nil {
		h.finish(state)
	}
}
