// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Exchange journal commands.
//
// Command: history [list|show|export|delete|clear]
//
// Examples:
//   chatlink history                     Last 20 exchanges
//   chatlink history --search "deadlock" Exchanges mentioning deadlock
//   chatlink history show 3f2a9c1e       One exchange as Markdown
//   chatlink history export 3f2a -o x.md Save one exchange

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chatlink/internal/storage"
	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		search string
	)
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Browse the exchange journal",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJournal(func(j *storage.Journal) error {
				return a.listHistory(cmd.Context(), j, search, limit)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of exchanges to show (0 for all)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only exchanges whose prompt or response contains this text")

	cmd.AddCommand(
		newHistoryShowCmd(a),
		newHistoryExportCmd(a),
		newHistoryDeleteCmd(a),
		newHistoryClearCmd(a),
	)
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJournal(func(j *storage.Journal) error {
				rec, err := j.Get(cmd.Context(), args[0])
				if err != nil {
					return historyLookupError(args[0], err)
				}
				if a.jsonOutput {
					return printJSON(a.out, rec)
				}
				md := rec.ExportMarkdown()
				if !raw && a.config().UI.Markdown && isTerminalWriter(a.out) {
					if render, err := newMarkdownRenderer(DarkTheme(a.config().UI.Theme), GetTerminalWidth()); err == nil {
						if out, err := render(md); err == nil {
							md = out
						}
					}
				}
				fmt.Fprint(a.out, ensureNewline(md))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print Markdown source instead of rendering it")
	return cmd
}

func newHistoryExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export one exchange as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJournal(func(j *storage.Journal) error {
				rec, err := j.Get(cmd.Context(), args[0])
				if err != nil {
					return historyLookupError(args[0], err)
				}
				md := rec.ExportMarkdown()
				if output == "" || output == "-" {
					fmt.Fprint(a.out, md)
					return nil
				}
				if err := util.AtomicWriteFile(output, []byte(md), 0600); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				fmt.Fprintf(a.errOut, "%s Exported to %s\n", RenderConditional(SuccessStyle, "[OK]"), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newHistoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete one exchange",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJournal(func(j *storage.Journal) error {
				rec, err := j.Get(cmd.Context(), args[0])
				if err != nil {
					return historyLookupError(args[0], err)
				}
				if err := j.Delete(cmd.Context(), rec.ID); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s Deleted %s\n", RenderConditional(SuccessStyle, "[OK]"), rec.ID)
				return nil
			})
		},
	}
}

func newHistoryClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every journaled exchange",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return &ValidationError{Field: "confirmation", Reason: "clearing the journal needs --yes", Example: "chatlink history clear --yes"}
			}
			return a.withJournal(func(j *storage.Journal) error {
				n, err := j.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s Deleted %d exchanges\n", RenderConditional(SuccessStyle, "[OK]"), n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}

// withJournal opens the journal for the duration of fn.
func (a *app) withJournal(fn func(j *storage.Journal) error) error {
	j, err := a.openJournal()
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()
	return fn(j)
}

func (a *app) listHistory(ctx context.Context, j *storage.Journal, search string, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := j.Search(ctx, search, limit)
	if err != nil {
		return err
	}
	if a.jsonOutput {
		if records == nil {
			records = []storage.Record{}
		}
		return printJSON(a.out, records)
	}
	fmt.Fprintln(a.out, storage.FormatList(records))
	return nil
}

func historyLookupError(id string, err error) error {
	if errors.Is(err, storage.ErrRecordNotFound) {
		return fmt.Errorf("exchange %s: %w", id, err)
	}
	return err
}
