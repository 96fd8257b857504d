// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrExchangeAborted is returned by a Starting handler to veto the
	// exchange. A vetoed exchange ends as Cancelled, not Failed.
	ErrExchangeAborted = errors.New("exchange aborted")

	// ErrExchangeInFlight means the conversation already has a pending exchange.
	ErrExchangeInFlight = errors.New("an exchange is already in flight for this conversation")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// PreconditionError reports that sending is not currently permitted, such as
// missing credentials. It always counts as a veto.
type PreconditionError struct {
	Reason string
	Cause  error
}

func (e *PreconditionError) Error() string {
	msg := "cannot send: " + e.Reason
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	return e.Cause
}

// Is makes every PreconditionError match ErrExchangeAborted.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrExchangeAborted
}

// ConfigurationError reports a request that cannot be built from the
// current conversation settings.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// TransportError wraps a failure to open or read the response stream.
type TransportError struct {
	Op    string // "send" or "receive"
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return "transport " + e.Op + " failed"
	}
	return "transport " + e.Op + " failed: " + e.Cause.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// TransitionError is raised as a panic when an exchange is driven through a
// transition its state table does not allow.
type TransitionError struct {
	ExchangeID string
	From       State
	To         State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("exchange %s: illegal transition %s -> %s", e.ExchangeID, e.From, e.To)
}

// =============================================================================
// HELPERS
// =============================================================================

// IsVeto reports whether err aborts an exchange without failing it.
func IsVeto(err error) bool {
	return errors.Is(err, ErrExchangeAborted)
}

// IsTransport reports whether err came from the transport.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsConfiguration reports whether err is a request configuration problem.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
