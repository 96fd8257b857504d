// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// Schema creates the journal tables. Times are Unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id                TEXT PRIMARY KEY,
	model             TEXT NOT NULL DEFAULT '',
	prompt            TEXT NOT NULL DEFAULT '',
	message           TEXT NOT NULL DEFAULT '',
	fragments         INTEGER NOT NULL DEFAULT 0,
	state             TEXT NOT NULL,
	response          TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	chunks            INTEGER NOT NULL DEFAULT 0,
	started_at        INTEGER NOT NULL,
	finished_at       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_exchanges_started ON exchanges(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_exchanges_state ON exchanges(state);
`
