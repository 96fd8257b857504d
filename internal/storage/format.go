// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList formats records as a table: short id, start time, state,
// model and prompt preview.
func FormatList(records []Record) string {
	if len(records) == 0 {
		return "No exchanges found."
	}

	var sb strings.Builder
	sb.WriteString(pad("ID", 8) + " " + pad("Started", 16) + " " + pad("State", 9) + " " + pad("Model", 20) + " Prompt\n")
	sb.WriteString(strings.Repeat("-", 80) + "\n")

	for _, r := range records {
		sb.WriteString(pad(shortID(r.ID), 8) + " " +
			pad(r.StartedAt.Format("2006-01-02 15:04"), 16) + " " +
			pad(r.State, 9) + " " +
			pad(util.TruncateWidth(r.Model, 20), 20) + " " +
			r.Preview(40) + "\n")
	}
	return sb.String()
}

// Preview returns the first line of the prompt truncated to width columns.
func (r *Record) Preview(width int) string {
	return util.TruncateWidth(util.FirstLine(r.Prompt), width)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// pad pads s with spaces to width terminal columns.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the exchange as Markdown: metadata, the message as
// dispatched, then the response or failure.
func (r *Record) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# Exchange " + r.ID + "\n\n")
	sb.WriteString("Started: " + r.StartedAt.Format(time.RFC3339) + "\n\n")
	if r.Model != "" {
		sb.WriteString("Model: " + r.Model + "\n\n")
	}
	sb.WriteString("State: " + r.State)
	if d := r.Duration(); d > 0 {
		sb.WriteString(fmt.Sprintf(" (%s)", d.Round(time.Millisecond)))
	}
	sb.WriteString("\n\n---\n\n")

	message := r.Message
	if message == "" {
		message = r.Prompt
	}
	sb.WriteString("**User**:\n\n")
	sb.WriteString(message)
	sb.WriteString("\n\n---\n\n")

	if r.Response != "" {
		sb.WriteString("**Assistant**:\n\n")
		sb.WriteString(r.Response)
		sb.WriteString("\n\n")
	}
	if r.Error != "" {
		sb.WriteString("**Error**:\n\n")
		for _, line := range strings.Split(r.Error, "\n") {
			sb.WriteString("> " + line + "\n")
		}
		sb.WriteString("\n")
	}
	if r.PromptTokens > 0 || r.CompletionTokens > 0 {
		sb.WriteString(fmt.Sprintf("_Tokens: %d prompt, %d completion_\n", r.PromptTokens, r.CompletionTokens))
	}
	return sb.String()
}
