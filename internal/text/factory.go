// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package text

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxFileSize limits whole-file fragments.
const DefaultMaxFileSize = 512 * 1024

// Normalize converts line endings to \n and the text to Unicode NFC so the
// same selection always yields an equal fragment.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFC.String(s)
}

// FromSelection builds a fragment from selected text in the file at path.
// Line numbers are 1-based and inclusive; zero means the range is unknown.
// A blank selection yields no fragment.
func FromSelection(selected, path string, startLine, endLine int) (CodeFragment, bool) {
	if strings.TrimSpace(selected) == "" {
		return CodeFragment{}, false
	}
	ext := extensionOf(path)
	if ext == "" {
		ext = GuessExtension(path, selected)
	}
	return NewCodeFragment(selected, ext, Title(path, startLine, endLine)), true
}

// FromFile builds a fragment from the whole file at path.
// Files larger than maxSize (DefaultMaxFileSize when <= 0) and binary files
// are rejected. An empty file yields ok == false.
func FromFile(path string, maxSize int64) (frag CodeFragment, ok bool, err error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	info, err := os.Stat(path)
	if err != nil {
		return CodeFragment{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return CodeFragment{}, false, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSize {
		return CodeFragment{}, false, fmt.Errorf("%s is too large (%d bytes, limit %d)", path, info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return CodeFragment{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return CodeFragment{}, false, fmt.Errorf("%s looks like a binary file", path)
	}

	frag, ok = FromSelection(string(data), path, 0, 0)
	return frag, ok, nil
}

// Title names a fragment after its file and, when known, its line range.
func Title(path string, startLine, endLine int) string {
	name := filepath.Base(path)
	if path == "" {
		name = "selection"
	}
	switch {
	case startLine <= 0:
		return name
	case endLine <= startLine:
		return fmt.Sprintf("%s:%d", name, startLine)
	default:
		return fmt.Sprintf("%s:%d-%d", name, startLine, endLine)
	}
}

// GuessExtension picks a fence tag for text whose file has no extension.
// The filename is matched first, then the content is analysed.
func GuessExtension(filename, content string) string {
	lexer := lexers.Match(filepath.Base(filename))
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		return ""
	}

	cfg := lexer.Config()
	for _, pattern := range cfg.Filenames {
		if ext := strings.TrimPrefix(pattern, "*."); ext != pattern && !strings.ContainsAny(ext, "*?[") {
			return strings.ToLower(ext)
		}
	}
	if len(cfg.Aliases) > 0 {
		return strings.ToLower(cfg.Aliases[0])
	}
	return strings.ToLower(cfg.Name)
}

func extensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
