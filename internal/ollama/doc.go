// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama streams chat completions from a local Ollama server.
//
// Client implements transport.Transport over the /api/chat endpoint, which
// answers with newline-delimited JSON. Each line becomes one transport.Chunk;
// the line with "done": true becomes the final chunk carrying the full text.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - ChatRequest / ChatResponse: wire types of /api/chat
//   - StreamReader: pull-based NDJSON reader
//   - ClientError: categorized failures (not running, timeout, model missing)
//
// # Usage
//
//	client := ollama.NewClient()
//	if err := client.CheckRunning(ctx); err != nil {
//	    return err
//	}
//	stream, err := client.Send(ctx, &transport.Request{
//	    Config:   transport.ModelConfig{Model: "qwen2.5-coder:7b"},
//	    Messages: []transport.Message{transport.NewUserMessage("Hello")},
//	})
package ollama
