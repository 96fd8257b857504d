// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package text holds the immutable text values exchanged with the model.
//
// # Key Types
//
//   - TextContent: the interface every fragment satisfies
//   - CodeFragment: source text tagged with a file extension and a title
//   - TextFragment: free-form text, typically a model reply in Markdown
//   - Block: a prose or fenced-code section parsed out of Markdown
//
// Fragments are compared by value with Equal; two fragments built from the
// same selection are the same fragment.
//
// # Usage
//
//	frag, ok := text.FromSelection(selected, "src/Main.java", 10, 20)
//	if ok {
//	    fragments = append(fragments, frag)
//	}
//
//	for _, b := range text.ParseMarkdown(reply) {
//	    if b.Kind == text.BlockCode {
//	        ...
//	    }
//	}
package text
