// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inputctx holds the user's pinned context: an ordered list of text
// entries that are prepended to the next message sent to the model.
//
// # Key Types
//
//   - Store: ordered, concurrency-safe entry list with change notifications
//   - Entry: one pinned item with a lazily computed token count
//   - Watcher: refreshes file-backed entries when the file changes on disk
//
// # Usage
//
//	store := inputctx.NewStore()
//	unsubscribe := store.Subscribe(func(c inputctx.Change) {
//	    fmt.Println(c.Kind, store.TokenCount())
//	})
//	defer unsubscribe()
//
//	entry, err := store.AddFile("internal/chat/link.go")
package inputctx
