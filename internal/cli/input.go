// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// input.go - Gathering prompts, files and pinned context for an exchange.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/jeranaias/rigrun-chatlink/internal/inputctx"
	"github.com/jeranaias/rigrun-chatlink/internal/selection"
	"github.com/jeranaias/rigrun-chatlink/internal/text"
)

// rangeSuffix matches the optional ":start[-end]" line range of a file spec.
var rangeSuffix = regexp.MustCompile(`:(\d+)(?:-(\d+))?$`)

// parseFileSpec turns "path", "path:12" or "path:12-40" into a file source.
func parseFileSpec(spec string, maxSize int64) (selection.File, error) {
	f := selection.File{Path: spec, MaxSize: maxSize}
	if m := rangeSuffix.FindStringSubmatch(spec); m != nil {
		f.Path = strings.TrimSuffix(spec, m[0])
		f.Start, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			f.End, _ = strconv.Atoi(m[2])
		}
		if f.Start == 0 || (f.End != 0 && f.End < f.Start) {
			return f, &ValidationError{
				Field:   "file range",
				Value:   spec,
				Reason:  "lines are 1-based and the range must not be reversed",
				Example: "--file main.go:10-40",
			}
		}
	}
	if f.Path == "" {
		return f, &ValidationError{Field: "file", Value: spec, Reason: "empty path"}
	}
	return f, nil
}

// inputOptions are the flags shared by commands that build a message.
type inputOptions struct {
	files []string // ad-hoc file specs
	pins  []string // files pinned as context
	stdin bool     // read a fragment from stdin
}

// gathered is everything Link.Submit needs.
type gathered struct {
	prompt string
	adHoc  []text.TextContent
	pinned *inputctx.Store
}

// gather resolves prompt mentions, --file specs and stdin into ad-hoc
// fragments, and --pin files into a context store.
func (a *app) gather(ctx context.Context, prompt string, opts inputOptions) (*gathered, error) {
	cfg := a.config()
	maxSize := cfg.MaxFileSize()

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	sources, remaining := selection.SourcesFromPrompt(prompt, wd, maxSize)
	for _, spec := range opts.files {
		f, err := parseFileSpec(spec, maxSize)
		if err != nil {
			return nil, err
		}
		sources = append(sources, f)
	}
	if opts.stdin {
		data, err := io.ReadAll(io.LimitReader(a.in, maxSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		if int64(len(data)) > maxSize {
			return nil, fmt.Errorf("stdin exceeds %d KB limit", cfg.Limits.MaxFileSizeKB)
		}
		body := string(data)
		sources = append(sources, selection.Static{
			Fragment: text.NewCodeFragment(body, text.GuessExtension("", body), "stdin"),
		})
	}

	snippetizer := selection.NewSnippetizer(selection.WithLogger(a.logger))
	adHoc, err := snippetizer.FetchSnippets(ctx, sources)
	if err != nil {
		return nil, err
	}

	g := &gathered{prompt: remaining, adHoc: adHoc}
	if len(opts.pins) > 0 {
		g.pinned = inputctx.NewStore(inputctx.WithMaxFileSize(maxSize))
		for _, path := range opts.pins {
			if _, err := g.pinned.AddFile(path); err != nil {
				return nil, fmt.Errorf("failed to pin %s: %w", path, err)
			}
		}
	}
	return g, nil
}
