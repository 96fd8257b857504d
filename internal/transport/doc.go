// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport defines the boundary between the conversation core and the
// remote completion services.
//
// A Transport turns a Request into a pull-based Stream of Chunks. Each chunk
// carries an incremental delta; the final chunk carries the authoritative full
// text of the response. Implementations live in the ollama and openai packages.
//
// # Key Types
//
//   - Message: a single role/content pair sent to the model
//   - Request: the model configuration plus the ordered message list
//   - Chunk: one streamed increment of the response
//   - Stream: Recv/Close over the chunks of one response
//
// # Usage
//
//	stream, err := tr.Send(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package transport
