// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package selection

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// MENTION
// =============================================================================

// Mention is a parsed @file: reference in user input.
type Mention struct {
	// Raw is the original text (e.g., "@file:src/main.go#L3-9")
	Raw string

	// Path as written, unquoted
	Path string

	// Line range, 0 when absent
	StartLine int
	EndLine   int

	// Start and End byte positions in the original input
	Start int
	End   int
}

// Source returns a File source for the mention. Relative paths are resolved
// against baseDir.
func (m Mention) Source(baseDir string, maxSize int64) File {
	path := m.Path
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return File{Path: path, Start: m.StartLine, End: m.EndLine, MaxSize: maxSize}
}

// @file:path, @file:"quoted path" or @file:'quoted path', each with an
// optional #L10 or #L10-20 suffix.
var filePattern = regexp.MustCompile(`@file:(?:"([^"]+)"|'([^']+)'|([^\s#]+))(?:#L(\d+)(?:-L?(\d+))?)?`)

// ParseMentions extracts @file: mentions from input. It returns the mentions
// in order of appearance and the input with them removed.
func ParseMentions(input string) ([]Mention, string) {
	matches := filePattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return nil, input
	}

	mentions := make([]Mention, 0, len(matches))
	for _, match := range matches {
		m := Mention{
			Raw:   input[match[0]:match[1]],
			Start: match[0],
			End:   match[1],
		}
		for i := 2; i <= 6; i += 2 {
			if match[i] != -1 {
				m.Path = input[match[i]:match[i+1]]
				break
			}
		}
		if match[8] != -1 {
			m.StartLine, _ = strconv.Atoi(input[match[8]:match[9]])
		}
		if match[10] != -1 {
			m.EndLine, _ = strconv.Atoi(input[match[10]:match[11]])
		}
		mentions = append(mentions, m)
	}

	return mentions, removeMentions(input, mentions)
}

// removeMentions drops the mention ranges and collapses the leftover spacing.
func removeMentions(input string, mentions []Mention) string {
	var b strings.Builder
	prev := 0
	for _, m := range mentions {
		b.WriteString(input[prev:m.Start])
		b.WriteByte(' ')
		prev = m.End
	}
	b.WriteString(input[prev:])

	// Collapse spacing per line so multi-line prompts keep their shape.
	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// HasMentions returns true if the input contains an @file: mention.
func HasMentions(input string) bool {
	return filePattern.MatchString(input)
}

// SourcesFromPrompt parses the mentions in prompt into File sources and
// returns them with the prompt text that remains.
func SourcesFromPrompt(prompt, baseDir string, maxSize int64) ([]Source, string) {
	mentions, remaining := ParseMentions(prompt)
	sources := make([]Source, 0, len(mentions))
	for _, m := range mentions {
		sources = append(sources, m.Source(baseDir, maxSize))
	}
	return sources, remaining
}
