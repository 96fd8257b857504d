// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

// =============================================================================
// EVENT KINDS
// =============================================================================

// EventKind identifies a lifecycle event.
type EventKind int

const (
	KindStarting EventKind = iota
	KindStarted
	KindResponseArriving
	KindResponseArrived
	KindFailed
	KindCancelled
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case KindStarting:
		return "starting"
	case KindStarted:
		return "started"
	case KindResponseArriving:
		return "arriving"
	case KindResponseArrived:
		return "arrived"
	case KindFailed:
		return "failed"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the kind ends an exchange.
func (k EventKind) IsTerminal() bool {
	return k == KindResponseArrived || k == KindFailed || k == KindCancelled
}

// Event is implemented by every lifecycle event. The set is closed.
type Event interface {
	ExchangeID() string
	Kind() EventKind
	event()
}

// header is shared by the events derived from a Starting event.
type header struct {
	id      string
	message transport.Message
	at      time.Time
}

// ExchangeID returns the id of the exchange the event belongs to.
func (h header) ExchangeID() string { return h.id }

// UserMessage returns the message as it was dispatched.
func (h header) UserMessage() transport.Message { return h.message }

// Time returns when the event was created.
func (h header) Time() time.Time { return h.at }

func (header) event() {}

// =============================================================================
// STARTING
// =============================================================================

// Starting opens an exchange. Listeners may edit Message until the exchange
// is dispatched, or veto it by returning ErrExchangeAborted.
type Starting struct {
	ID        string
	Prompt    string
	Fragments []text.TextContent
	Message   *transport.Message
	Model     string
	At        time.Time
}

// ExchangeID returns the exchange id.
func (s *Starting) ExchangeID() string { return s.ID }

// Kind returns KindStarting.
func (s *Starting) Kind() EventKind { return KindStarting }

func (s *Starting) event() {}

func (s *Starting) derive() header {
	h := header{id: s.ID, at: time.Now()}
	if s.Message != nil {
		h.message = *s.Message
	}
	return h
}

// Started derives the event announcing the dispatched exchange.
func (s *Starting) Started(h *Handle) *Started {
	return &Started{header: s.derive(), Handle: h}
}

// Arriving derives a partial-response event.
func (s *Starting) Arriving(partial, delta string) *ResponseArriving {
	return &ResponseArriving{header: s.derive(), Partial: partial, Delta: delta}
}

// Arrived derives the final-response event.
func (s *Starting) Arrived(response string, usage transport.Usage) *ResponseArrived {
	return &ResponseArrived{header: s.derive(), Response: response, Usage: usage}
}

// Failed derives the failure event.
func (s *Starting) Failed(err error, partial string) *Failed {
	return &Failed{header: s.derive(), Err: err, Partial: partial}
}

// Cancelled derives the cancellation event.
func (s *Starting) Cancelled(partial string) *Cancelled {
	return &Cancelled{header: s.derive(), Partial: partial}
}

// =============================================================================
// DERIVED EVENTS
// =============================================================================

// Started carries the handle of a dispatched exchange.
type Started struct {
	header
	Handle *Handle
}

// Kind returns KindStarted.
func (*Started) Kind() EventKind { return KindStarted }

// ResponseArriving carries the cumulative response text so far.
// Partial only ever grows; Delta is the text added by this event.
type ResponseArriving struct {
	header
	Partial string
	Delta   string
}

// Kind returns KindResponseArriving.
func (*ResponseArriving) Kind() EventKind { return KindResponseArriving }

// ResponseArrived carries the complete response.
type ResponseArrived struct {
	header
	Response string
	Usage    transport.Usage
}

// Kind returns KindResponseArrived.
func (*ResponseArrived) Kind() EventKind { return KindResponseArrived }

// Fragment returns the response as a text fragment for block parsing.
func (e *ResponseArrived) Fragment() text.TextFragment {
	return text.NewTextFragment(e.Response)
}

// Failed carries the cause of a failed exchange and any partial text.
type Failed struct {
	header
	Err     error
	Partial string
}

// Kind returns KindFailed.
func (*Failed) Kind() EventKind { return KindFailed }

// Diagnostic returns the cause chain, one message per line.
func (e *Failed) Diagnostic() string {
	return Diagnostic(e.Err)
}

// Cancelled ends an exchange that was vetoed or cancelled.
type Cancelled struct {
	header
	Partial string
}

// Kind returns KindCancelled.
func (*Cancelled) Kind() EventKind { return KindCancelled }
