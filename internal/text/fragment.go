// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package text

import (
	"reflect"
	"strings"

	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// =============================================================================
// TEXT CONTENT
// =============================================================================

// TextContent is an immutable piece of text that can be sent to the model.
type TextContent interface {
	// Content returns the raw text.
	Content() string

	// Language returns the tag used when the text is fenced, or "".
	Language() string
}

// Equal reports whether a and b hold the same value.
// Implementations may define their own Equal(TextContent) bool; otherwise
// values of the same dynamic type with equal content and language are equal.
func Equal(a, b TextContent) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if eq, ok := a.(interface{ Equal(TextContent) bool }); ok {
		return eq.Equal(b)
	}
	return reflect.TypeOf(a) == reflect.TypeOf(b) &&
		a.Content() == b.Content() &&
		a.Language() == b.Language()
}

// Contains reports whether list holds a fragment equal to c.
func Contains(list []TextContent, c TextContent) bool {
	for _, item := range list {
		if Equal(item, c) {
			return true
		}
	}
	return false
}

// IsBlank reports whether c is nil or has only whitespace content.
func IsBlank(c TextContent) bool {
	return c == nil || strings.TrimSpace(c.Content()) == ""
}

// =============================================================================
// CODE FRAGMENT
// =============================================================================

// CodeFragment is a piece of source text with the extension of the file it
// came from and a short human readable title.
type CodeFragment struct {
	Text      string
	Extension string
	Title     string
}

// NewCodeFragment builds a fragment with normalized text and a lowercase
// extension without the leading dot.
func NewCodeFragment(text, extension, title string) CodeFragment {
	return CodeFragment{
		Text:      Normalize(text),
		Extension: strings.ToLower(strings.TrimPrefix(extension, ".")),
		Title:     title,
	}
}

// Content returns the fragment text.
func (f CodeFragment) Content() string { return f.Text }

// Language returns the fragment extension.
func (f CodeFragment) Language() string { return f.Extension }

// Equal compares every field of two code fragments.
func (f CodeFragment) Equal(other TextContent) bool {
	switch o := other.(type) {
	case CodeFragment:
		return f == o
	case *CodeFragment:
		return o != nil && f == *o
	default:
		return false
	}
}

// String returns the title, or the first line of text when untitled.
func (f CodeFragment) String() string {
	if f.Title != "" {
		return f.Title
	}
	return util.TruncateWidth(util.FirstLine(f.Text), 60)
}

// =============================================================================
// TEXT FRAGMENT
// =============================================================================

// TextFragment is free-form text, usually Markdown.
type TextFragment struct {
	Text string
}

// NewTextFragment builds a fragment with normalized text.
func NewTextFragment(text string) TextFragment {
	return TextFragment{Text: Normalize(text)}
}

// Content returns the fragment text.
func (f TextFragment) Content() string { return f.Text }

// Language returns "" since free text is not fenced.
func (f TextFragment) Language() string { return "" }

// Blocks splits the fragment into prose and code blocks.
func (f TextFragment) Blocks() []Block { return ParseMarkdown(f.Text) }

// CodeBlocks returns only the fenced code blocks of the fragment as code
// fragments, in order.
func (f TextFragment) CodeBlocks() []CodeFragment {
	var out []CodeFragment
	for _, b := range f.Blocks() {
		if b.Kind == BlockCode {
			out = append(out, b.Fragment())
		}
	}
	return out
}
