// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides exchange persistence for chatlink.
//
// The Journal is a chat.Listener backed by SQLite. Registered on a Link it
// records every exchange from Starting to its terminal event, including
// vetoed, failed and cancelled ones, so history can be listed, searched and
// exported later.
//
// # Key Types
//
//   - Journal: SQLite-backed listener and query API
//   - Record: One exchange with its outcome
//
// # Usage
//
//	journal, err := storage.OpenJournal(path)
//	if err != nil {
//	    return err
//	}
//	defer journal.Close()
//	link.RegisterListener(journal)
//
//	records, err := journal.List(ctx, 20)
//
// # Storage Location
//
// The journal lives in ~/.rigrun-chatlink/journal.db unless configured.
package storage
