// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatlink.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ChatConfig: Provider, model and request parameters
//   - OllamaConfig, OpenAIConfig: Transport endpoints
//   - LimitsConfig: Local request and file size limits
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CHATLINK_*)
//   - ~/.rigrun-chatlink/config.toml
//   - ~/.rigrun-chatlink/config.json
//   - Built-in defaults
//
// CHATLINK_HOME replaces ~/.rigrun-chatlink.
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Reload on change:
//
//	go config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
package config
