// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package selection resolves editor selections into ad-hoc fragments.
//
// A Source is anything that can produce zero or one fragment: a literal
// selection from an editor, a line range of a file on disk, or an @file:
// mention typed into a prompt. The Snippetizer resolves many sources
// concurrently and returns the fragments in source order.
//
// Mention syntax:
//
//	@file:path/to/main.go          whole file
//	@file:main.go#L10              line 10
//	@file:main.go#L10-20           lines 10 through 20
//	@file:"path with spaces.go"    quoted path
package selection
