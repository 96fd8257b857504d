// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the chatlink packages.
//
// # Key Functions
//
//   - TruncateWidth: display-width aware truncation with an ellipsis
//   - FirstLine: first non-blank line of a text, for titles and previews
//   - EstimateTokens: rough token count used for context budgeting
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateWidth(util.FirstLine(prompt), 40)
//	tokens := util.EstimateTokens(content)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
