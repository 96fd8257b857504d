// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// context_cmd.go - Preview of the composed message.
//
// Command: context [prompt...]
//
// Shows exactly what ask would send: the system prompt after substitution,
// the merged fragments and the composed user message, with token estimates.
// Nothing is sent.

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
	"github.com/jeranaias/rigrun-chatlink/internal/inputctx"
	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// NewContextCmd creates the context command.
func NewContextCmd(a *app) *cobra.Command {
	var opts inputOptions
	cmd := &cobra.Command{
		Use:   "context [prompt...]",
		Short: "Preview the message that would be sent",
		Long: `Preview the message ask would send for the same arguments.

Fragments from --file, --stdin and @file: mentions come first, followed by
pinned files that are not already attached. Duplicates are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runContext(cmd.Context(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "Attach a file or line range (path[:start[-end]])")
	cmd.Flags().StringArrayVar(&opts.pins, "pin", nil, "Attach a whole file as pinned context")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "Attach standard input as a snippet")
	return cmd
}

type fragmentInfo struct {
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
	Tokens   int    `json:"tokens"`
}

type contextPreview struct {
	Model         string         `json:"model"`
	SystemPrompt  string         `json:"system_prompt,omitempty"`
	Fragments     []fragmentInfo `json:"fragments"`
	Message       string         `json:"message"`
	MessageTokens int            `json:"message_tokens"`
}

func (a *app) runContext(ctx context.Context, prompt string, opts inputOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, err := a.gather(ctx, prompt, opts)
	if err != nil {
		return err
	}

	var pinned []*inputctx.Entry
	if g.pinned != nil {
		pinned = g.pinned.Entries()
	}
	fragments := chat.MergeContext(g.adHoc, pinned)

	conv := a.newConversation()
	msg := chat.Compose(conv, g.prompt, fragments)

	preview := contextPreview{
		Model:         conv.Model(),
		SystemPrompt:  conv.SystemPrompt(),
		Fragments:     make([]fragmentInfo, 0, len(fragments)),
		Message:       msg.Content,
		MessageTokens: chat.MessageTokens(msg),
	}
	for _, f := range fragments {
		preview.Fragments = append(preview.Fragments, fragmentInfo{
			Title:    fragmentTitle(f),
			Language: f.Language(),
			Tokens:   util.EstimateTokens(f.Content()),
		})
	}

	if a.jsonOutput {
		return printJSON(a.out, preview)
	}

	w := a.out
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Model"), preview.Model)
	if preview.SystemPrompt != "" {
		fmt.Fprintf(w, "%s %s\n", RenderLabel(transport.RoleSystem.DisplayName()), util.TruncateWidth(util.FirstLine(preview.SystemPrompt), 60))
	}
	fmt.Fprintf(w, "%s %d\n", RenderLabel("Fragments"), len(preview.Fragments))
	for i, f := range preview.Fragments {
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, util.TruncateWidth(f.Title, 50),
			RenderConditional(DimStyle, fmt.Sprintf("(~%d tokens)", f.Tokens)))
	}
	fmt.Fprintf(w, "%s ~%d\n", RenderLabel("Tokens"), preview.MessageTokens)
	fmt.Fprintln(w, RenderSeparator())
	if preview.Message == "" {
		fmt.Fprintln(w, RenderConditional(DimStyle, "(empty message, nothing would be sent)"))
		return nil
	}
	fmt.Fprintln(w, RenderLabel(transport.RoleUser.DisplayName()))
	fmt.Fprintln(w, preview.Message)
	return nil
}

// fragmentTitle names a fragment for listings.
func fragmentTitle(f text.TextContent) string {
	if cf, ok := f.(text.CodeFragment); ok && cf.Title != "" {
		return cf.Title
	}
	if line := util.FirstLine(f.Content()); line != "" {
		return line
	}
	return "snippet"
}
