// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)      Display current configuration
//   get <key>           Print one value
//   set <key> <value>   Set a value in the config file
//   keys                List every key
//   reset               Write the default configuration
//   path                Show configuration file path
//
// Examples:
//   chatlink config set chat.provider openai
//   chatlink config set openai.api_key sk-or-xxx
//   chatlink config set limits.requests_per_minute 0
//   chatlink config get chat.model

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chatlink/internal/config"
	"github.com/jeranaias/rigrun-chatlink/internal/openai"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd(a *app) *cobra.Command {
	show := func(cmd *cobra.Command, args []string) error {
		if a.jsonOutput {
			// String redacts the API key.
			fmt.Fprintln(a.out, a.config().String())
			return nil
		}
		return a.showConfig()
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Args:  cobra.NoArgs,
		RunE:  show,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display current configuration",
			Args:  cobra.NoArgs,
			RunE:  show,
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := normalizeKey(args[0])
				v, err := a.config().Get(key)
				if err != nil {
					return &ValidationError{Field: "key", Value: args[0], Reason: err.Error(), Example: "chatlink config keys"}
				}
				fmt.Fprintln(a.out, maskIfSecret(key, fmt.Sprint(v)))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Set a value in the config file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.setConfigValue(normalizeKey(args[0]), args[1])
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List configuration keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, k := range config.GetAllKeys() {
					fmt.Fprintln(a.out, k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Write the default configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.configFilePath()
				if err != nil {
					return err
				}
				if err := saveConfigFile(config.Default(), path); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s Configuration reset: %s\n", RenderConditional(SuccessStyle, "[OK]"), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.configFilePath()
				if err != nil {
					return err
				}
				if a.jsonOutput {
					_, statErr := os.Stat(path)
					return printJSON(a.out, map[string]interface{}{"path": path, "exists": statErr == nil})
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
	)
	return cmd
}

// showConfig prints every key with secrets masked.
func (a *app) showConfig() error {
	cfg := a.config()
	section := ""
	for _, key := range config.GetAllKeys() {
		if s, _, ok := strings.Cut(key, "."); ok && s != section {
			section = s
			fmt.Fprintln(a.out, RenderConditional(TitleStyle, "["+section+"]"))
		}
		v, err := cfg.Get(key)
		if err != nil {
			return err
		}
		name := key
		if _, rest, ok := strings.Cut(key, "."); ok {
			name = rest
		}
		fmt.Fprintf(a.out, "  %-22s %s\n", name, maskIfSecret(key, fmt.Sprint(v)))
	}
	return nil
}

// setConfigValue updates one key in the config file. The file is decoded
// without environment overrides so they are never written back.
func (a *app) setConfigValue(key, value string) error {
	path, err := a.configFilePath()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		load := config.LoadTOML
		if strings.HasSuffix(path, ".json") {
			load = config.LoadJSON
		}
		if err := load(cfg, path); err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "chatlink config keys"}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration value: %w", err)
	}
	if err := saveConfigFile(cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %s = %s\n", RenderConditional(SuccessStyle, "[OK]"), key, maskIfSecret(key, value))
	return nil
}

func saveConfigFile(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

// normalizeKey accepts "Chat.Model" and "chat-model" style keys.
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if !strings.Contains(key, ".") {
		if section, rest, ok := strings.Cut(key, "-"); ok {
			return section + "." + strings.ReplaceAll(rest, "-", "_")
		}
	}
	return key
}

// maskIfSecret replaces credential values with a fingerprint.
func maskIfSecret(key, value string) string {
	if !config.IsSecretKey(key) {
		return value
	}
	return openai.NewClient(value).KeyFingerprint()
}
