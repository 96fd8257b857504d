// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"strings"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// IsEmpty reports whether the message carries no visible content.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// =============================================================================
// REQUEST
// =============================================================================

// ModelConfig selects the model and its sampling limits for a request.
type ModelConfig struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Request is one outgoing completion request.
type Request struct {
	Config   ModelConfig
	Messages []Message
}

// Last returns the final message of the request, the one being asked about.
func (r *Request) Last() (Message, bool) {
	if r == nil || len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// =============================================================================
// STREAMING
// =============================================================================

// Usage holds token accounting reported by the service, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int

	// TokensPerSecond is the generation speed reported by the server, or 0.
	TokensPerSecond float64
}

// Chunk is one increment of a streamed response.
type Chunk struct {
	// Delta is the text appended by this chunk.
	Delta string

	// Final marks the last chunk of the stream.
	Final bool

	// Text is the full response text. Only set on the final chunk.
	Text string

	FinishReason string
	Model        string
	Usage        Usage
}

// Stream is the pull side of one streamed response.
// Recv returns io.EOF once the stream is exhausted. Close releases the
// underlying connection and is safe to call more than once.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Transport sends a request and streams the response back.
// Cancelling ctx must abort the connection and unblock Recv.
type Transport interface {
	Send(ctx context.Context, req *Request) (Stream, error)
}

// CredentialChecker is implemented by transports that need credentials
// before a request can be sent. Configured returns nil when sending is
// permitted.
type CredentialChecker interface {
	Configured() error
}

// Namer is implemented by transports that report a provider name for logs.
type Namer interface {
	Name() string
}
