// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader turns an NDJSON /api/chat body into transport chunks.
// Recv must not be called concurrently; Close may be called from any
// goroutine.
type StreamReader struct {
	body        io.ReadCloser
	reader      *bufio.Reader
	accumulator strings.Builder
	model       string
	done        bool
	closeOnce   sync.Once
	closeErr    error
}

// NewStreamReader wraps a streaming response body.
func NewStreamReader(body io.ReadCloser) *StreamReader {
	return &StreamReader{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Recv returns the next chunk. After the final chunk it returns io.EOF. A
// body that ends before Ollama reports done yields io.ErrUnexpectedEOF.
func (s *StreamReader) Recv() (transport.Chunk, error) {
	if s.done {
		return transport.Chunk{}, io.EOF
	}

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			chunk, ok, perr := s.parseLine(line)
			if perr != nil {
				return transport.Chunk{}, perr
			}
			if ok {
				return chunk, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return transport.Chunk{}, &ClientError{
					Type:    ErrTypeInvalidResponse,
					Message: "stream ended before completion",
					Cause:   io.ErrUnexpectedEOF,
				}
			}
			return transport.Chunk{}, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
		}
	}
}

func (s *StreamReader) parseLine(line []byte) (transport.Chunk, bool, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return transport.Chunk{}, false, nil
	}

	var resp ChatResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		// Malformed lines are skipped; the next line usually recovers.
		return transport.Chunk{}, false, nil
	}
	if resp.Error != "" {
		return transport.Chunk{}, false, &ClientError{Type: ErrTypeInvalidResponse, Message: resp.Error}
	}

	if resp.Model != "" {
		s.model = resp.Model
	}
	s.accumulator.WriteString(resp.Message.Content)

	chunk := transport.Chunk{Delta: resp.Message.Content, Model: s.model}
	if resp.Done {
		s.done = true
		chunk.Final = true
		chunk.Text = s.accumulator.String()
		chunk.FinishReason = resp.DoneReason
		chunk.Usage = transport.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TokensPerSecond:  resp.TokensPerSecond(),
		}
	}
	return chunk, true, nil
}

// Close releases the response body. It is idempotent.
func (s *StreamReader) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
