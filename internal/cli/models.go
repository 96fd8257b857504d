// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model listing for the configured provider.

package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-chatlink/internal/ollama"
	"github.com/jeranaias/rigrun-chatlink/internal/openai"
)

// modelsTimeout bounds the model listing request.
const modelsTimeout = 15 * time.Second

// NewModelsCmd creates the models command.
func NewModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the configured provider offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), modelsTimeout)
			defer cancel()
			return a.listModels(ctx)
		},
	}
}

// modelRow is one line of models output.
type modelRow struct {
	ID      string `json:"id"`
	Detail  string `json:"detail,omitempty"`
	Context int    `json:"context_length,omitempty"`
	Active  bool   `json:"active"`
}

func (a *app) listModels(ctx context.Context) error {
	tr, err := a.newTransport(a.config())
	if err != nil {
		return err
	}
	active := a.config().ActiveModel()

	var rows []modelRow
	switch c := tr.(type) {
	case *ollama.Client:
		if err := c.CheckRunning(ctx); err != nil {
			return err
		}
		models, err := c.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			detail := m.FormatSize()
			if m.Details.ParameterSize != "" {
				detail += ", " + m.Details.ParameterSize
			}
			rows = append(rows, modelRow{ID: m.Name, Detail: detail, Active: m.Name == active})
		}
	case *openai.Client:
		if err := c.Configured(); err != nil {
			return err
		}
		models, err := c.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			rows = append(rows, modelRow{ID: m.ID, Detail: m.Name, Context: m.ContextSize, Active: m.ID == active})
		}
	default:
		return fmt.Errorf("provider %q cannot list models", a.config().Chat.Provider)
	}

	if a.jsonOutput {
		if rows == nil {
			rows = []modelRow{}
		}
		return printJSON(a.out, map[string]interface{}{"provider": a.config().Chat.Provider, "models": rows})
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No models found.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "MODEL\tDETAIL\tCONTEXT\t")
	for _, r := range rows {
		ctxLen := "-"
		if r.Context > 0 {
			ctxLen = fmt.Sprint(r.Context)
		}
		marker := ""
		if r.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t\n", r.ID, marker, r.Detail, ctxLen)
	}
	return w.Flush()
}
