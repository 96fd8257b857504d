// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-chatlink/internal/transport"
	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// =============================================================================
// PREFLIGHT CHECKS
// =============================================================================

// Preflight decides whether a conversation may send right now. Returning a
// *PreconditionError vetoes the exchange; other errors fail it.
type Preflight func(conv *Conversation) error

// RequireCredential vetoes exchanges while tr reports missing credentials.
func RequireCredential(tr transport.Transport) Preflight {
	return func(*Conversation) error {
		cc, ok := tr.(transport.CredentialChecker)
		if !ok {
			return nil
		}
		if err := cc.Configured(); err != nil {
			return &PreconditionError{Reason: "credentials are not configured", Cause: err}
		}
		return nil
	}
}

// RateLimit vetoes exchanges beyond the limiter's budget.
func RateLimit(limiter *rate.Limiter) Preflight {
	return func(*Conversation) error {
		if !limiter.Allow() {
			return &PreconditionError{Reason: "rate limit exceeded, try again shortly"}
		}
		return nil
	}
}

// PerMinute builds a limiter allowing n requests per minute with a burst of
// n. A non-positive n means no limit.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
}

// =============================================================================
// DISPATCHER
// =============================================================================

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPreflight adds checks run before every dispatch, in order.
func WithPreflight(checks ...Preflight) DispatcherOption {
	return func(d *Dispatcher) { d.preflights = append(d.preflights, checks...) }
}

// WithDispatcherLogger sets the logger for worker diagnostics.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher sends exchanges through a Transport, one worker goroutine per
// exchange.
type Dispatcher struct {
	transport  transport.Transport
	preflights []Preflight
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher for tr.
func NewDispatcher(tr transport.Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{transport: tr, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Push validates and dispatches x, which must be in the Starting state.
//
// It returns without waiting for any I/O. On success x is Active, Started has
// been delivered, and the remaining events arrive from the worker goroutine.
// On error nothing was sent and x is still Starting; the caller ends it.
func (d *Dispatcher) Push(conv *Conversation, x *Exchange) (*Handle, error) {
	for _, check := range d.preflights {
		if err := check(conv); err != nil {
			return nil, err
		}
	}

	req, err := BuildRequest(conv, *x.Starting().Message)
	if err != nil {
		return nil, err
	}

	h := newHandle(x.ID())
	if !conv.claim(h) {
		return nil, ErrExchangeInFlight
	}

	x.OnTerminal(func(state State, response string) {
		conv.release(h)
		if state == StateCompleted {
			last, _ := req.Last()
			conv.Append(last, transport.NewAssistantMessage(response))
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.setCancelFunc(cancel)

	x.Activate(h)

	d.wg.Add(1)
	go d.run(ctx, x, req)
	return h, nil
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, x *Exchange, req *transport.Request) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("exchange worker panicked", zap.String("exchange_id", x.ID()), zap.Any("panic", r))
			x.Fail(fmt.Errorf("exchange worker panicked: %v", r))
		}
	}()

	if ctx.Err() != nil {
		x.Cancel()
		return
	}

	stream, err := d.transport.Send(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			x.Cancel()
			return
		}
		x.Fail(&TransportError{Op: "send", Cause: err})
		return
	}

	var closeOnce sync.Once
	closeStream := func() {
		closeOnce.Do(func() {
			if err := stream.Close(); err != nil {
				d.logger.Debug("stream close failed", zap.String("exchange_id", x.ID()), zap.Error(err))
			}
		})
	}
	defer closeStream()

	end := d.pump(ctx, x, stream)
	closeStream()
	end()
}

// pump delivers chunks until the stream ends and returns the terminal step,
// which runs after the stream has been closed.
func (d *Dispatcher) pump(ctx context.Context, x *Exchange, stream transport.Stream) func() {
	chunks := 0
	for {
		chunk, err := stream.Recv()
		if ctx.Err() != nil {
			return func() { x.Cancel() }
		}
		if errors.Is(err, io.EOF) {
			return func() { x.Complete("", transport.Usage{}) }
		}
		if err != nil {
			return func() { x.Fail(&TransportError{Op: "receive", Cause: err}) }
		}

		chunks++
		x.Deliver(chunk.Delta)
		if chunk.Final {
			d.logger.Debug("stream finished",
				zap.String("exchange_id", x.ID()),
				zap.Int("chunks", chunks),
				zap.String("finish_reason", chunk.FinishReason),
			)
			return func() { x.Complete(chunk.Text, chunk.Usage) }
		}
	}
}

// =============================================================================
// REQUEST CONSTRUCTION
// =============================================================================

// BuildRequest assembles the outgoing request: the system prompt, the
// eligible history and msg. History is eligible when it is a non-empty user
// or assistant message; with a context window set, the oldest messages that
// do not fit are left out.
func BuildRequest(conv *Conversation, msg transport.Message) (*transport.Request, error) {
	cfg := conv.ModelConfig()
	if cfg.Model == "" {
		return nil, &ConfigurationError{Field: "model", Message: "no model selected"}
	}
	if msg.IsEmpty() {
		return nil, &ConfigurationError{Field: "message", Message: "nothing to send"}
	}

	var eligible []transport.Message
	for _, m := range conv.History() {
		if (m.Role == transport.RoleUser || m.Role == transport.RoleAssistant) && !m.IsEmpty() {
			eligible = append(eligible, m)
		}
	}
	if budget := conv.ContextWindow(); budget > 0 {
		eligible = fitHistory(eligible, budget-util.EstimateTokens(msg.Content))
	}

	messages := make([]transport.Message, 0, len(eligible)+2)
	if sys := conv.SystemPrompt(); sys != "" {
		messages = append(messages, transport.NewSystemMessage(sys))
	}
	messages = append(messages, eligible...)
	messages = append(messages, msg)

	return &transport.Request{Config: cfg, Messages: messages}, nil
}

// fitHistory keeps the newest messages whose estimated tokens fit budget.
func fitHistory(history []transport.Message, budget int) []transport.Message {
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := util.EstimateTokens(history[i].Content)
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return history[start:]
}
