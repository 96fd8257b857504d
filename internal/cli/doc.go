// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the chatlink command-line interface.
//
// Commands are built with cobra and share one app value carrying the loaded
// configuration, the logger and the output streams. Every command that talks
// to a model goes through a chat.Link: the console listener streams the
// response, and the storage journal records each exchange when enabled.
//
// # Commands Overview
//
//   - ask: Send one prompt, optionally with files and @file: mentions
//   - chat: Interactive session with pinned context and slash commands
//   - context: Preview the message that would be sent
//   - history: List, search, show, export and delete journaled exchanges
//   - config: Show, get and set configuration values
//   - models: List the models the configured provider offers
//
// # Usage
//
//	os.Exit(cli.Execute())
//
// All listing commands support the --json flag.
package cli
