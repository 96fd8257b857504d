// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single prompt command.
//
// Command: ask [prompt...]
//
// Examples:
//   chatlink ask "What does this regex match?" --file parse.go:40-52
//   chatlink ask "Explain @file:internal/chat/link.go#L80-L140"
//   git diff | chatlink ask --stdin "Write a commit message for this diff"
//   chatlink ask --json "List three uses of sync.Once"

package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
)

type askOptions struct {
	inputOptions
	noRender bool
	quiet    bool
}

// NewAskCmd creates the ask command.
func NewAskCmd(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send one prompt and stream the answer",
		Long: `Send one prompt, with optional file context, and stream the answer.

Files given with --file are attached to this message only. Files given with
--pin are attached as pinned context. Mentions of the form @file:path,
@file:path#L10 or @file:path#L10-L20 inside the prompt are attached the same
way as --file and removed from the prompt text.

Press Ctrl+C to cancel the exchange.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if strings.TrimSpace(prompt) == "" && len(opts.files) == 0 && len(opts.pins) == 0 && !opts.stdin {
				return ErrMissingArgument("prompt", `chatlink ask "Explain goroutine leaks"`)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runAsk(ctx, prompt, opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "Attach a file or line range (path[:start[-end]])")
	cmd.Flags().StringArrayVar(&opts.pins, "pin", nil, "Attach a whole file as pinned context")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "Attach standard input as a snippet")
	cmd.Flags().BoolVar(&opts.noRender, "raw", false, "Stream raw text instead of rendering Markdown")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress status lines")
	return cmd
}

// askResult is the --json output of ask.
type askResult struct {
	ID               string      `json:"id"`
	Model            string      `json:"model"`
	State            string      `json:"state"`
	Response         string      `json:"response"`
	PromptTokens     int         `json:"prompt_tokens,omitempty"`
	CompletionTokens int         `json:"completion_tokens,omitempty"`
	TokensPerSecond  float64     `json:"tokens_per_second,omitempty"`
	DurationSeconds  float64     `json:"duration_seconds"`
	CodeBlocks       []codeBlock `json:"code_blocks,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// codeBlock is one fenced block of the answer.
type codeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (a *app) runAsk(ctx context.Context, prompt string, opts askOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, err := a.gather(ctx, prompt, opts.inputOptions)
	if err != nil {
		return err
	}

	result := &outcome{}
	listeners := []chat.Listener{result}
	if !a.jsonOutput {
		console, err := a.console(opts.noRender, opts.quiet)
		if err != nil {
			return err
		}
		listeners = append(listeners, console)
	}

	s, err := a.newSession(nil, listeners...)
	if err != nil {
		return err
	}
	defer s.Close()

	if h := s.link.Submit(g.prompt, g.adHoc, g.pinned); h != nil {
		stop := context.AfterFunc(ctx, h.Cancel)
		defer stop()
		<-h.Done()
	}

	if result.state == chat.StateIdle {
		return &ValidationError{Field: "prompt", Reason: "the message is empty"}
	}
	runErr := result.result(s.vetoes.take())
	if a.jsonOutput {
		out := askResult{
			ID:               result.id,
			Model:            result.model,
			State:            result.state.String(),
			Response:         result.response,
			PromptTokens:     result.usage.PromptTokens,
			CompletionTokens: result.usage.CompletionTokens,
			TokensPerSecond:  result.usage.TokensPerSecond,
			DurationSeconds:  result.finished.Sub(result.started).Round(time.Millisecond).Seconds(),
		}
		for _, cf := range result.codeBlocks() {
			out.CodeBlocks = append(out.CodeBlocks, codeBlock{Language: cf.Language(), Code: cf.Content()})
		}
		if runErr != nil {
			out.Error = chat.Diagnostic(runErr)
		}
		if err := printJSON(a.out, out); err != nil {
			return err
		}
	}
	return runErr
}

// console builds the console listener for the current output streams.
func (a *app) console(raw, quiet bool) (*Console, error) {
	cfg := a.config()
	var render MarkdownRenderer
	if cfg.UI.Markdown && !raw && isTerminalWriter(a.out) {
		r, err := newMarkdownRenderer(DarkTheme(cfg.UI.Theme), GetTerminalWidth())
		if err != nil {
			return nil, err
		}
		render = r
	}
	return NewConsole(a.out, a.errOut, render, !quiet && isTerminalWriter(a.errOut)), nil
}
