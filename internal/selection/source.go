// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package selection

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
)

// Source yields at most one fragment. ok is false when there is nothing to
// contribute, such as a blank selection.
type Source interface {
	Resolve(ctx context.Context) (frag text.TextContent, ok bool, err error)
	Describe() string
}

// =============================================================================
// EDITOR SELECTION
// =============================================================================

// Text is a selection taken from an editor buffer.
type Text struct {
	Selected string
	Path     string // file the selection came from, may be empty
	Start    int    // 1-based first line, 0 if unknown
	End      int    // 1-based last line, inclusive

	// WholeFile substitutes the file at Path when the selection is blank.
	WholeFile bool
	MaxSize   int64
}

// Resolve implements Source.
func (t Text) Resolve(ctx context.Context) (text.TextContent, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if frag, ok := text.FromSelection(t.Selected, t.Path, t.Start, t.End); ok {
		return frag, true, nil
	}
	if !t.WholeFile || t.Path == "" {
		return nil, false, nil
	}
	frag, ok, err := text.FromFile(t.Path, t.MaxSize)
	if err != nil || !ok {
		return nil, false, err
	}
	return frag, true, nil
}

// Describe implements Source.
func (t Text) Describe() string {
	return text.Title(t.Path, t.Start, t.End)
}

// =============================================================================
// FILE RANGE
// =============================================================================

// File reads a file, or a line range of it, from disk.
type File struct {
	Path    string
	Start   int // 1-based first line, 0 for the whole file
	End     int // 1-based last line, inclusive; 0 means Start only
	MaxSize int64
}

// Resolve implements Source.
func (f File) Resolve(ctx context.Context) (text.TextContent, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if f.Start <= 0 {
		frag, ok, err := text.FromFile(f.Path, f.MaxSize)
		if err != nil || !ok {
			return nil, false, err
		}
		return frag, true, nil
	}

	end := f.End
	if end < f.Start {
		end = f.Start
	}
	selected, err := readLines(ctx, f.Path, f.Start, end)
	if err != nil {
		return nil, false, err
	}
	frag, ok := text.FromSelection(selected, f.Path, f.Start, f.End)
	if !ok {
		return nil, false, nil
	}
	return frag, true, nil
}

// Describe implements Source.
func (f File) Describe() string {
	return text.Title(f.Path, f.Start, f.End)
}

// readLines returns lines start..end (1-based, inclusive) of the file.
func readLines(ctx context.Context, path string, start, end int) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line < start {
			continue
		}
		if line > end {
			break
		}
		if line%256 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if line < start {
		return "", fmt.Errorf("%s has %d lines, range starts at %d", path, line, start)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// =============================================================================
// STATIC
// =============================================================================

// Static wraps an already resolved fragment.
type Static struct {
	Fragment text.TextContent
}

// Resolve implements Source.
func (s Static) Resolve(context.Context) (text.TextContent, bool, error) {
	if text.IsBlank(s.Fragment) {
		return nil, false, nil
	}
	return s.Fragment, true, nil
}

// Describe implements Source.
func (s Static) Describe() string {
	if cf, ok := s.Fragment.(text.CodeFragment); ok && cf.Title != "" {
		return cf.Title
	}
	return "snippet"
}
