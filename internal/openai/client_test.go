// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

const testKey = "sk-or-test-abcdefghijklmnopqrstuvwxyz0123456789"

func sseServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(testKey).WithBaseURL(server.URL).WithModel("default-model")
}

func writeEvents(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
	}
}

func userRequest(model, prompt string) *transport.Request {
	return &transport.Request{
		Config:   transport.ModelConfig{Model: model, MaxTokens: 128, Temperature: 0.2},
		Messages: []transport.Message{transport.NewUserMessage(prompt)},
	}
}

func collect(s transport.Stream) ([]transport.Chunk, error) {
	var chunks []transport.Chunk
	for {
		c, err := s.Recv()
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_StreamsDeltasAndFinal(t *testing.T) {
	var got ChatRequest
	var auth, accept string
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		json.NewDecoder(r.Body).Decode(&got)
		writeEvents(w,
			`{"model":"m","choices":[{"delta":{"role":"assistant"}}]}`,
			`{"model":"m","choices":[{"delta":{"content":"Hel"}}]}`,
			`{"model":"m","choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`{"model":"m","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2}}`,
			`[DONE]`,
		)
	})

	stream, err := client.Send(context.Background(), userRequest("m", "hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer stream.Close()

	chunks, err := collect(stream)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error = %v, want io.EOF", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(chunks), chunks)
	}
	if chunks[0].Delta != "Hel" || chunks[1].Delta != "lo" {
		t.Errorf("deltas = %q %q", chunks[0].Delta, chunks[1].Delta)
	}
	final := chunks[2]
	if !final.Final || final.Text != "Hello" || final.FinishReason != "stop" {
		t.Errorf("final = %+v", final)
	}
	if final.Usage.PromptTokens != 9 || final.Usage.CompletionTokens != 2 {
		t.Errorf("usage = %+v", final.Usage)
	}

	if auth != "Bearer "+testKey {
		t.Errorf("Authorization = %q", auth)
	}
	if accept != "text/event-stream" {
		t.Errorf("Accept = %q", accept)
	}
	if !got.Stream || got.Model != "m" || got.MaxTokens != 128 || got.Temperature != 0.2 {
		t.Errorf("request = %+v", got)
	}
	if got.StreamOptions == nil || !got.StreamOptions.IncludeUsage {
		t.Errorf("stream_options = %+v", got.StreamOptions)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestSend_DefaultModel(t *testing.T) {
	var got ChatRequest
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeEvents(w, `[DONE]`)
	})

	stream, err := client.Send(context.Background(), userRequest("", "hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	stream.Close()

	if got.Model != "default-model" {
		t.Errorf("Model = %q, want default-model", got.Model)
	}
}

func TestSend_NotConfigured(t *testing.T) {
	client := NewClient("")
	if err := client.Configured(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Configured = %v, want ErrNotConfigured", err)
	}
	if _, err := client.Send(context.Background(), userRequest("m", "hi")); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send = %v, want ErrNotConfigured", err)
	}
}

func TestSend_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrAuthFailed},
		{"payment", http.StatusPaymentRequired, `{"error":{"message":"no credits"}}`, ErrInsufficientCredits},
		{"not found", http.StatusNotFound, ``, ErrModelNotFound},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := client.Send(context.Background(), userRequest("m", "hi"))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSend_ServerErrorKeepsCode(t *testing.T) {
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":{"code":502,"message":"upstream down"}}`)
	})

	_, err := client.Send(context.Background(), userRequest("m", "hi"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Code != "502" || apiErr.Message != "upstream down" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestSend_RateLimitRetryAfter(t *testing.T) {
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Send(context.Background(), userRequest("m", "hi"))
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestStream_MidStreamError(t *testing.T) {
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w,
			`{"choices":[{"delta":{"content":"par"}}]}`,
			`{"error":{"message":"provider overloaded"}}`,
		)
	})

	stream, err := client.Send(context.Background(), userRequest("m", "hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer stream.Close()

	chunks, err := collect(stream)
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want 1", len(chunks))
	}
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StreamError", err)
	}
	if se.Partial != "par" || !strings.Contains(se.Error(), "provider overloaded") {
		t.Errorf("StreamError = %+v", se)
	}
}

func TestStream_TruncatedBody(t *testing.T) {
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, `{"choices":[{"delta":{"content":"a"}}]}`)
	})

	stream, err := client.Send(context.Background(), userRequest("m", "hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer stream.Close()

	_, err = collect(stream)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want unexpected EOF", err)
	}
}

func TestStream_FinishWithoutDone(t *testing.T) {
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, `{"choices":[{"delta":{"content":"ok"},"finish_reason":"length"}]}`)
	})

	stream, err := client.Send(context.Background(), userRequest("m", "hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer stream.Close()

	chunks, err := collect(stream)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
	last := chunks[len(chunks)-1]
	if !last.Final || last.Text != "ok" || last.FinishReason != "length" {
		t.Errorf("final = %+v", last)
	}
}

func TestStream_CancelUnblocksRecv(t *testing.T) {
	release := make(chan struct{})
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, `{"choices":[{"delta":{"content":"a"}}]}`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.Send(ctx, userRequest("m", "hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Recv(); err != nil {
		t.Fatalf("first Recv: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := stream.Recv()
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Recv after cancel returned nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Recv did not unblock after cancel")
	}
}

func TestSSEReader_MultiLineAndComments(t *testing.T) {
	input := ": keep-alive\r\nevent: message\r\ndata: line1\r\ndata: line2\r\nid: 4\r\n\r\ndata: tail"
	r := NewSSEReader(strings.NewReader(input))

	ev, data, err := r.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if ev != "message" || string(data) != "line1\nline2" {
		t.Errorf("event = %q data = %q", ev, data)
	}

	_, data, err = r.ReadEvent()
	if err != nil || string(data) != "tail" {
		t.Errorf("tail event = %q, %v", data, err)
	}

	if _, _, err := r.ReadEvent(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestSSEReader_OversizedEvent(t *testing.T) {
	input := "data: " + strings.Repeat("x", MaxChunkSize+1) + "\n\n"
	_, _, err := NewSSEReader(strings.NewReader(input)).ReadEvent()
	if err == nil {
		t.Error("oversized event should fail")
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestListModels(t *testing.T) {
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"data":[{"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000}]}`)
	})

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID != "openai/gpt-4o" || models[0].ContextSize != 128000 {
		t.Errorf("models = %+v", models)
	}
}

func TestKeyFingerprint(t *testing.T) {
	fp := NewClient(testKey).KeyFingerprint()
	if !strings.HasPrefix(fp, "sha256:") || strings.Contains(fp, "abcdef") {
		t.Errorf("fingerprint = %q", fp)
	}
	if NewClient("").KeyFingerprint() != "(not set)" {
		t.Error("empty key fingerprint")
	}
}

// TestSend_Concurrent verifies that one client serves concurrent exchanges.
//
// Run with: go test -race -run TestSend_Concurrent
func TestSend_Concurrent(t *testing.T) {
	client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeEvents(w, fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, req.Model), `[DONE]`)
	})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			model := fmt.Sprintf("model-%d", n)
			stream, err := client.Send(context.Background(), userRequest(model, "hi"))
			if err != nil {
				errs <- err
				return
			}
			defer stream.Close()
			chunks, _ := collect(stream)
			if len(chunks) == 0 || chunks[len(chunks)-1].Text != model {
				errs <- fmt.Errorf("model %s got %+v", model, chunks)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
