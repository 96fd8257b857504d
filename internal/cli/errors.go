// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for chatlink commands.
//
// STANDARDIZED PATTERN:
//   - Commands return errors; they never print and return nil
//   - Execute displays the error once and maps it to an exit code
//   - Exchange outcomes that are not Completed become ExchangeError

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
	"github.com/jeranaias/rigrun-chatlink/internal/config"
	"github.com/jeranaias/rigrun-chatlink/internal/ollama"
	"github.com/jeranaias/rigrun-chatlink/internal/openai"
	"github.com/jeranaias/rigrun-chatlink/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates missing or rejected credentials
	ExitAuthError = 4
	// ExitNetworkError indicates the provider could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a model or journal record was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitCancelled indicates the exchange was cancelled or vetoed
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string // Field or argument that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ExchangeError reports an exchange that ended without a response.
type ExchangeError struct {
	ID    string
	State chat.State
	Err   error // cause for Failed exchanges and vetoes
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exchange %s: %v", e.State, e.Err)
	}
	return "exchange " + e.State.String()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR CONSTRUCTION HELPERS
// =============================================================================

// ErrMissingArgument creates an error for a missing required argument.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required argument missing", Example: usage}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
// Multi-line diagnostics are indented under the first line.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
			"chain":   chat.ErrorChain(err),
		})
		return
	}

	var xerr *ExchangeError
	if errors.As(err, &xerr) && xerr.State == chat.StateCancelled && xerr.Err == nil {
		// The console listener already reported the cancellation.
		return
	}

	chain := chat.ErrorChain(err)
	if len(chain) == 0 {
		chain = []string{err.Error()}
	}
	fmt.Fprintf(w, "%s %s\n", RenderConditional(ErrorStyle, "[Error]"), chain[0])
	for _, line := range chain[1:] {
		fmt.Fprintf(w, "  %s\n", RenderConditional(DimStyle, "caused by: "+line))
	}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var configErrs config.ValidateErrors
	var configurationErr *chat.ConfigurationError
	var xerr *ExchangeError
	switch {
	case errors.As(err, &validationErr):
		return ExitUsageError
	case errors.As(err, &configErrs), errors.As(err, &configurationErr):
		return ExitConfigError
	case errors.Is(err, openai.ErrNotConfigured),
		errors.Is(err, openai.ErrAuthFailed),
		errors.Is(err, openai.ErrInsufficientCredits):
		return ExitAuthError
	case errors.Is(err, storage.ErrRecordNotFound),
		errors.Is(err, openai.ErrModelNotFound),
		ollama.IsModelNotFound(err):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded), ollama.IsTimeout(err):
		return ExitTimeoutError
	case ollama.IsNotRunning(err):
		return ExitNetworkError
	case errors.As(err, &xerr) && xerr.State == chat.StateCancelled,
		errors.Is(err, chat.ErrExchangeAborted):
		return ExitCancelled
	}
	return ExitGeneralError
}
