// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// Command: chat
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new, /clear        Start a new conversation
//   /model [name]       Show or switch model
//   /pin FILE...        Pin files as context for the next message
//   /unpin N|ID         Remove a pinned file
//   /context            List pinned context
//   /drop               Remove all pinned context
//   /code [N|all]       List or pin code blocks from the last answer
//   /history [N]        Show journaled exchanges
//   /status, /s         Show session status
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
	"github.com/jeranaias/rigrun-chatlink/internal/config"
	"github.com/jeranaias/rigrun-chatlink/internal/inputctx"
	"github.com/jeranaias/rigrun-chatlink/internal/storage"
	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of input per prompt.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history loaded from the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(configDir, "chat_history")}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// Prompt reads a line with history navigation.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// AppendHistory adds a line to the history.
func (c *ChatCLI) AppendHistory(item string) {
	c.line.AppendHistory(item)
}

// Close saves history with owner-only permissions and restores the terminal.
func (c *ChatCLI) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

type chatOptions struct {
	raw     bool
	noWatch bool
}

// NewChatCmd creates the chat command.
func NewChatCmd(a *app) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

The conversation keeps its history until /new. Files pinned with /pin are
attached to the next message and then unpinned. Pinned files are reloaded
when they change on disk, and edits to the config file apply to the next
message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := RequiresTTY("chat"); err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cs, err := a.newChatSession(ctx, opts)
			if err != nil {
				return err
			}
			defer cs.Close()

			reader := NewChatCLI()
			defer reader.Close()

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)
			go func() {
				for {
					select {
					case <-interrupts:
						cs.s.link.CancelActive()
					case <-ctx.Done():
						return
					}
				}
			}()

			cs.printWelcome()
			return cs.loop(ctx, reader)
		},
	}
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Stream raw text instead of rendering Markdown")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch pinned files and the config file")
	return cmd
}

// RequiresTTY returns an error if stdin is not a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return &ValidationError{
			Field:   "input",
			Reason:  "stdin is not a terminal; cannot " + operation + " interactively",
			Example: `echo "question" | chatlink ask --stdin`,
		}
	}
	return nil
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession is the state of one interactive session.
type chatSession struct {
	a       *app
	s       *session
	store   *inputctx.Store
	result  *outcome
	started time.Time
	sent    int
}

// newChatSession builds the link and starts the file and config watchers,
// which stop when ctx is done.
func (a *app) newChatSession(ctx context.Context, opts chatOptions) (*chatSession, error) {
	console, err := a.console(opts.raw, false)
	if err != nil {
		return nil, err
	}
	store := inputctx.NewStore(inputctx.WithMaxFileSize(a.config().MaxFileSize()))
	result := &outcome{}

	s, err := a.newSession(store, result, console)
	if err != nil {
		return nil, err
	}
	cs := &chatSession{a: a, s: s, store: store, result: result, started: time.Now()}

	if !opts.noWatch {
		if w, err := inputctx.NewWatcher(store, a.logger); err != nil {
			a.logger.Warn("pinned file watching disabled", zap.Error(err))
		} else {
			go w.Run(ctx)
		}
		if path, err := a.configFilePath(); err == nil {
			go func() {
				if err := config.Watch(ctx, path, cs.reloadConfig); err != nil {
					a.logger.Warn("config watching disabled", zap.Error(err))
				}
			}()
		}
	}
	return cs, nil
}

// Close cancels any exchange in flight and releases the session.
func (cs *chatSession) Close() {
	cs.s.Close()
}

// reloadConfig installs a changed config file. The model follows the new
// settings unless it was chosen on the command line.
func (cs *chatSession) reloadConfig(cfg *config.Config, err error) {
	if err != nil {
		cs.a.logger.Warn("config reload failed, keeping previous settings", zap.Error(err))
		return
	}
	cs.a.setConfig(cfg)
	cs.s.link.Conversation().SetModel(cs.a.config().ActiveModel())
	cs.a.logger.Info("config reloaded", zap.String("model", cs.a.config().ActiveModel()))
}

// loop reads and handles input until /quit, EOF or Ctrl+C at the prompt.
func (cs *chatSession) loop(ctx context.Context, reader lineReader) error {
	for {
		input, err := reader.Prompt("chatlink> ")
		if err != nil {
			// liner.ErrPromptAborted (Ctrl+C) or io.EOF (Ctrl+D)
			fmt.Fprintln(cs.a.out)
			cs.printExitSummary()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		reader.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			cont, err := cs.handleSlashCommand(ctx, input)
			if err != nil {
				DisplayError(cs.a.errOut, err, false)
			}
			if !cont {
				cs.printExitSummary()
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			cs.printExitSummary()
			return nil
		}

		if err := cs.send(ctx, input); err != nil {
			DisplayError(cs.a.errOut, err, false)
		}
	}
}

// send submits one message and waits for its outcome. The console listener
// reports Failed and Cancelled exchanges, so only vetoes come back as errors.
// Pinned context is put back when nothing of the answer arrived.
func (cs *chatSession) send(ctx context.Context, input string) error {
	g, err := cs.a.gather(ctx, input, inputOptions{})
	if err != nil {
		return err
	}

	pinned := cs.store.Entries()
	cs.result.reset()
	if h := cs.s.link.Submit(g.prompt, g.adHoc, nil); h != nil {
		cs.sent++
		<-h.Done()
	}
	if cs.result.cancelledEarly() && cs.store.Restore(pinned) > 0 {
		fmt.Fprintln(cs.a.out, RenderConditional(DimStyle, "[Pinned context restored]"))
	}

	err = cs.result.result(cs.s.vetoes.take())
	var xerr *ExchangeError
	if errors.As(err, &xerr) && xerr.State == chat.StateCancelled && xerr.Err != nil {
		return xerr.Err
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs one command. It returns false when the session
// should end.
func (cs *chatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	args := parts[1:]
	w := cs.a.out
	conv := cs.s.link.Conversation()

	switch command {
	case "/help", "/h", "/?", "/":
		cs.printHelp()

	case "/new", "/clear", "/c":
		cs.s.link.NewConversation()
		fmt.Fprintln(w, RenderConditional(InfoStyle, "[New conversation]"))

	case "/model", "/m":
		if len(args) == 0 {
			fmt.Fprintf(w, "%s %s\n", RenderLabel("Model"), conv.Model())
			break
		}
		conv.SetModel(args[0])
		fmt.Fprintf(w, "%s Switched to model: %s\n", RenderConditional(SuccessStyle, "[OK]"), args[0])

	case "/pin":
		if len(args) == 0 {
			return true, ErrMissingArgument("file", "/pin internal/chat/link.go")
		}
		for _, path := range args {
			e, err := cs.store.AddFile(path)
			if err != nil {
				return true, fmt.Errorf("failed to pin %s: %w", path, err)
			}
			fmt.Fprintf(w, "%s %s %s\n", RenderConditional(SuccessStyle, "[Pinned]"), e.Title,
				RenderConditional(DimStyle, fmt.Sprintf("(~%d tokens)", e.Tokens())))
		}

	case "/unpin":
		if len(args) == 0 {
			return true, ErrMissingArgument("entry", "/unpin 1")
		}
		e := cs.findEntry(args[0])
		if e == nil || !cs.store.Remove(e.ID) {
			return true, &ValidationError{Field: "entry", Value: args[0], Reason: "no such pinned entry", Example: "/context"}
		}
		fmt.Fprintf(w, "%s %s\n", RenderConditional(InfoStyle, "[Unpinned]"), e.Title)

	case "/context", "/ctx":
		cs.printContext()

	case "/drop":
		cs.store.Clear()
		fmt.Fprintln(w, RenderConditional(InfoStyle, "[Pinned context cleared]"))

	case "/code":
		return true, cs.pinCode(args)

	case "/history":
		limit := 10
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return true, &ValidationError{Field: "count", Value: args[0], Reason: "must be a positive number"}
			}
			limit = n
		}
		if cs.s.journal == nil {
			return true, errors.New("the exchange journal is disabled (storage.enabled)")
		}
		records, err := cs.s.journal.List(ctx, limit)
		if err != nil {
			return true, err
		}
		fmt.Fprintln(w, storage.FormatList(records))

	case "/status", "/s":
		cs.printStatus()

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

// pinCode lists the code blocks of the last answer, or pins the one at a
// 1-based position, or all of them.
func (cs *chatSession) pinCode(args []string) error {
	w := cs.a.out
	blocks := cs.result.codeBlocks()
	if len(blocks) == 0 {
		fmt.Fprintln(w, RenderConditional(DimStyle, "[No code blocks in the last answer]"))
		return nil
	}
	if len(args) == 0 {
		for i, b := range blocks {
			lang := b.Language()
			if lang == "" {
				lang = "text"
			}
			fmt.Fprintf(w, "  %d. %s %s\n", i+1, RenderConditional(DimStyle, lang),
				util.TruncateWidth(util.FirstLine(b.Content()), 50))
		}
		return nil
	}

	picked := blocks
	if !strings.EqualFold(args[0], "all") {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(blocks) {
			return &ValidationError{Field: "block", Value: args[0],
				Reason: fmt.Sprintf("must be between 1 and %d", len(blocks)), Example: "/code 1"}
		}
		picked = blocks[n-1 : n]
	}
	for _, b := range picked {
		e := cs.store.AddFragment(b)
		fmt.Fprintf(w, "%s %s %s\n", RenderConditional(SuccessStyle, "[Pinned]"), e.Title,
			RenderConditional(DimStyle, fmt.Sprintf("(~%d tokens)", e.Tokens())))
	}
	return nil
}

// findEntry resolves a 1-based list position or an id prefix.
func (cs *chatSession) findEntry(ref string) *inputctx.Entry {
	entries := cs.store.Entries()
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(entries) {
			return entries[n-1]
		}
		return nil
	}
	for _, e := range entries {
		if strings.HasPrefix(e.ID, ref) {
			return e
		}
	}
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (cs *chatSession) printWelcome() {
	w := cs.a.out
	cfg := cs.a.config()
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderConditional(TitleStyle, "chatlink interactive chat"))
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Provider"), cfg.Chat.Provider)
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Model"), cs.s.link.Conversation().Model())
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderConditional(DimStyle, "Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(w)
}

func (cs *chatSession) printHelp() {
	w := cs.a.out
	commands := []struct{ cmd, desc string }{
		{"/help, /h", "Show this help"},
		{"/new, /clear", "Start a new conversation"},
		{"/model [name]", "Show or switch model"},
		{"/pin FILE...", "Pin files for the next message"},
		{"/unpin N|ID", "Remove a pinned file"},
		{"/context", "List pinned context"},
		{"/drop", "Remove all pinned context"},
		{"/code [N|all]", "List or pin code blocks from the last answer"},
		{"/history [N]", "Show journaled exchanges"},
		{"/status, /s", "Show session status"},
		{"/quit, /q", "Exit chat"},
	}
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.cmd, RenderConditional(DimStyle, c.desc))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderConditional(DimStyle, "Mention files inline with @file:path#L10-L20. Ctrl+C cancels, Ctrl+D exits."))
}

func (cs *chatSession) printContext() {
	w := cs.a.out
	entries := cs.store.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(w, RenderConditional(DimStyle, "[No pinned context]"))
		return
	}
	for i, e := range entries {
		fmt.Fprintf(w, "  %d. %s %s %s\n", i+1,
			RenderConditional(DimStyle, e.ID[:8]),
			util.TruncateWidth(e.Title, 50),
			RenderConditional(DimStyle, fmt.Sprintf("(~%d tokens)", e.Tokens())))
	}
	fmt.Fprintf(w, "%s ~%d\n", RenderLabel("Total tokens"), cs.store.TokenCount())
}

func (cs *chatSession) printStatus() {
	w := cs.a.out
	conv := cs.s.link.Conversation()
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Provider"), cs.a.config().Chat.Provider)
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Model"), conv.Model())
	fmt.Fprintf(w, "%s %d messages\n", RenderLabel("History"), len(conv.History()))
	fmt.Fprintf(w, "%s %d files\n", RenderLabel("Pinned"), cs.store.Len())
	if state := cs.result.lastState(); state != chat.StateIdle {
		fmt.Fprintf(w, "%s %s\n", RenderLabel("Last"), RenderState(state.String()))
	}
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Duration"), time.Since(cs.started).Round(time.Second))
}

func (cs *chatSession) printExitSummary() {
	fmt.Fprintln(cs.a.out, RenderConditional(DimStyle,
		fmt.Sprintf("Sent %d messages in %s", cs.sent, time.Since(cs.started).Round(time.Second))))
}

var _ lineReader = (*ChatCLI)(nil)
