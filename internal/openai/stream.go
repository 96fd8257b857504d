// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

// MaxChunkSize is the maximum allowed size for a single SSE event.
const MaxChunkSize = 64 * 1024

// doneMarker terminates an OpenAI-compatible stream.
const doneMarker = "[DONE]"

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is a single SSE data payload.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GetContent returns the content from the first choice's delta.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// GetFinishReason returns the finish reason if the choice has ended.
func (c *StreamChunk) GetFinishReason() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason
	}
	return ""
}

// StreamError is an error raised mid-stream, with the text received so far.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event and returns its type and data. Multiple
// data lines are joined with newlines. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line ends the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(line[5:], []byte(" "))
			size += len(data)
			if size > MaxChunkSize {
				return "", nil, fmt.Errorf("SSE event exceeds %d bytes", MaxChunkSize)
			}
			dataLines = append(dataLines, data)
		}
		// id:, retry: and ":" comments are ignored.
	}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream adapts an SSE completion body to transport.Stream. Recv must not be
// called concurrently; Close may be called from any goroutine.
type Stream struct {
	body        io.ReadCloser
	sse         *SSEReader
	accumulator strings.Builder
	model       string
	finish      string
	usage       transport.Usage
	done        bool
	closeOnce   sync.Once
	closeErr    error
}

// NewStream wraps a streaming response body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, sse: NewSSEReader(body)}
}

// Recv returns the next chunk. The [DONE] marker yields a Final chunk with
// the accumulated text; after it Recv returns io.EOF.
func (s *Stream) Recv() (transport.Chunk, error) {
	if s.done {
		return transport.Chunk{}, io.EOF
	}

	for {
		_, data, err := s.sse.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Some servers close after finish_reason without sending [DONE].
				if s.finish != "" {
					return s.final(), nil
				}
				err = io.ErrUnexpectedEOF
			}
			return transport.Chunk{}, &StreamError{Partial: s.accumulator.String(), Err: err}
		}

		if strings.TrimSpace(string(data)) == doneMarker {
			return s.final(), nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Malformed payloads are skipped.
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return transport.Chunk{}, &StreamError{
				Partial: s.accumulator.String(),
				Err:     errors.New(chunk.Error.Message),
			}
		}

		if chunk.Model != "" {
			s.model = chunk.Model
		}
		if chunk.Usage != nil {
			s.usage = transport.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
			}
		}
		if reason := chunk.GetFinishReason(); reason != "" {
			s.finish = reason
		}

		delta := chunk.GetContent()
		if delta == "" {
			continue
		}
		s.accumulator.WriteString(delta)
		return transport.Chunk{Delta: delta, Model: s.model}, nil
	}
}

func (s *Stream) final() transport.Chunk {
	s.done = true
	return transport.Chunk{
		Final:        true,
		Text:         s.accumulator.String(),
		FinishReason: s.finish,
		Model:        s.model,
		Usage:        s.usage,
	}
}

// Close releases the response body. It is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
