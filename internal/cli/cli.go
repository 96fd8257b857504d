// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, global flags and process entry point.

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chatlink/internal/config"
	"github.com/jeranaias/rigrun-chatlink/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	root := NewRootCmd(a)
	err := root.ExecuteContext(context.Background())
	a.logger.Sync()
	if err != nil {
		DisplayError(a.errOut, err, a.jsonOutput)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// NewRootCmd creates the chatlink root command with every subcommand.
func NewRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatlink",
		Short: "Chat with local and hosted models from the terminal",
		Long: `chatlink sends prompts with code context to a model and streams the answer.

It talks to a local Ollama server by default, or to any OpenAI-compatible
endpoint such as OpenRouter. Files can be attached with --file or mentioned
inline as @file:path#L10-L20.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default: $CHATLINK_HOME/config.toml)")
	flags.StringVarP(&a.provider, "provider", "p", "", "Provider: ollama or openai")
	flags.StringVarP(&a.model, "model", "m", "", "Model to use (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonOutput, "json", false, "Output as JSON")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		NewAskCmd(a),
		NewChatCmd(a),
		NewContextCmd(a),
		NewHistoryCmd(a),
		NewConfigCmd(a),
		NewModelsCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup() error {
	if a.noColor {
		ForceColorsEnabled(false)
	}

	var (
		cfg     *config.Config
		loadErr error
	)
	if a.configPath != "" {
		c, err := config.LoadFromPath(a.configPath)
		if err != nil {
			return err
		}
		cfg = c
	} else {
		c, err := config.Load()
		if c == nil {
			return err
		}
		cfg, loadErr = c, err
	}
	a.setConfig(cfg)
	cfg = a.config()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return &ValidationError{Field: "log level", Value: cfg.Log.Level, Reason: err.Error()}
	}
	a.logger = logger
	if loadErr != nil {
		a.logger.Warn("config file ignored, using defaults", zap.Error(loadErr))
	}

	applyTheme(cfg.UI.Theme)
	return nil
}

// configFilePath returns the file config commands read and write.
func (a *app) configFilePath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.ConfigPathTOML()
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
