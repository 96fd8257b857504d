// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai implements transport.Transport for OpenAI-compatible chat
// completion endpoints that stream Server-Sent Events.
//
// OpenRouter is the default endpoint; any service that speaks the
// /chat/completions protocol with "stream": true works. Each SSE data payload
// is a completion chunk whose first choice carries the delta; the literal
// payload "[DONE]" ends the stream.
//
// Usage:
//
//	client := openai.NewClient(apiKey).WithBaseURL("https://api.openai.com/v1")
//	stream, err := client.Send(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Recv()
//	    if err != nil {
//	        break
//	    }
//	    fmt.Print(chunk.Delta)
//	}
package openai
