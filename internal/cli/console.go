// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// console.go - Terminal rendering of exchange events.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// MarkdownRenderer renders a complete answer for the terminal.
type MarkdownRenderer func(markdown string) (string, error)

// newMarkdownRenderer returns a glamour renderer for the theme, wrapped at
// the terminal width.
func newMarkdownRenderer(dark bool, width int) (MarkdownRenderer, error) {
	style := "light"
	if dark {
		style = "dark"
	}
	if width > MaxRenderWidth {
		width = MaxRenderWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

// =============================================================================
// CONSOLE LISTENER
// =============================================================================

// Console writes exchange events to a terminal.
//
// Without a renderer the response is streamed to out as it arrives. With a
// renderer nothing is printed until the answer is complete, which is then
// rendered as Markdown. Status lines go to errOut so piped output holds only
// the answer.
type Console struct {
	chat.NopListener

	out    io.Writer
	errOut io.Writer
	render MarkdownRenderer
	status bool

	mu       sync.Mutex
	streamed bool
	started  time.Time
}

// NewConsole creates a console listener. render may be nil; status enables
// the start and usage lines.
func NewConsole(out, errOut io.Writer, render MarkdownRenderer, status bool) *Console {
	return &Console{out: out, errOut: errOut, render: render, status: status}
}

func (c *Console) ExchangeStarted(ev *chat.Started) {
	c.mu.Lock()
	c.streamed = false
	c.started = ev.Time()
	c.mu.Unlock()

	if c.status && c.render != nil {
		fmt.Fprintln(c.errOut, RenderConditional(DimStyle, "Thinking..."))
	}
}

func (c *Console) ResponseArriving(ev *chat.ResponseArriving) {
	if c.render != nil {
		return
	}
	c.mu.Lock()
	c.streamed = true
	c.mu.Unlock()
	io.WriteString(c.out, ev.Delta)
}

func (c *Console) ResponseArrived(ev *chat.ResponseArrived) {
	c.mu.Lock()
	streamed, started := c.streamed, c.started
	c.streamed = false
	c.mu.Unlock()

	switch {
	case c.render != nil:
		rendered, err := c.render(ev.Response)
		if err != nil {
			rendered = ev.Response
		}
		io.WriteString(c.out, ensureNewline(rendered))
	case streamed:
		io.WriteString(c.out, "\n")
	default:
		io.WriteString(c.out, ensureNewline(ev.Response))
	}

	if c.status {
		line := fmt.Sprintf("%s tokens, %s",
			formatUsage(ev.Usage.PromptTokens, ev.Usage.CompletionTokens),
			formatDuration(ev.Time().Sub(started)))
		if ev.Usage.TokensPerSecond > 0 {
			line += fmt.Sprintf(", %.1f tok/s", ev.Usage.TokensPerSecond)
		}
		fmt.Fprintln(c.errOut, RenderConditional(DimStyle, line))
	}
}

func (c *Console) ExchangeFailed(ev *chat.Failed) {
	c.finishPartial(ev.Partial)
	chain := strings.Split(ev.Diagnostic(), "\n")
	fmt.Fprintf(c.errOut, "%s %s\n", RenderConditional(ErrorStyle, "[Failed]"), chain[0])
	for _, line := range chain[1:] {
		fmt.Fprintf(c.errOut, "  %s\n", RenderConditional(DimStyle, "caused by: "+line))
	}
}

func (c *Console) ExchangeCancelled(ev *chat.Cancelled) {
	c.finishPartial(ev.Partial)
	fmt.Fprintln(c.errOut, RenderConditional(WarningStyle, "[Cancelled]"))
}

// finishPartial ends a streamed line, or prints the partial answer when
// rendering held it back.
func (c *Console) finishPartial(partial string) {
	c.mu.Lock()
	streamed := c.streamed
	c.streamed = false
	c.mu.Unlock()

	switch {
	case streamed:
		io.WriteString(c.out, "\n")
	case c.render != nil && partial != "":
		io.WriteString(c.out, ensureNewline(partial))
	}
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func formatUsage(prompt, completion int) string {
	if prompt == 0 && completion == 0 {
		return "?"
	}
	return fmt.Sprintf("%d+%d", prompt, completion)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
