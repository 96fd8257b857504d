// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package text

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// BlockKind distinguishes prose from fenced code.
type BlockKind int

const (
	BlockProse BlockKind = iota
	BlockCode
)

// String returns a short name for the kind.
func (k BlockKind) String() string {
	if k == BlockCode {
		return "code"
	}
	return "prose"
}

// Block is a top-level section of a Markdown document.
type Block struct {
	Kind     BlockKind
	Language string
	Text     string
}

// Fragment converts a code block into a code fragment titled by its language.
func (b Block) Fragment() CodeFragment {
	return NewCodeFragment(b.Text, b.Language, b.Language)
}

var markdown = goldmark.New()

// ParseMarkdown splits src into prose and top-level fenced code blocks in
// document order. Prose between code blocks is kept verbatim (trimmed);
// whitespace-only prose is dropped. Unterminated fences run to the end.
func ParseMarkdown(src string) []Block {
	source := []byte(Normalize(src))
	doc := markdown.Parser().Parse(gmtext.NewReader(source))

	var blocks []Block
	cursor := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			continue
		}
		start, end, ok := fenceRange(fenced, source)
		if !ok || start < cursor {
			continue
		}
		blocks = appendProse(blocks, source[cursor:start])
		blocks = append(blocks, Block{
			Kind:     BlockCode,
			Language: string(fenced.Language(source)),
			Text:     strings.TrimSuffix(string(linesOf(fenced, source)), "\n"),
		})
		cursor = end
	}
	return appendProse(blocks, source[cursor:])
}

func appendProse(blocks []Block, raw []byte) []Block {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return blocks
	}
	return append(blocks, Block{Kind: BlockProse, Text: s})
}

func linesOf(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.Bytes()
}

// fenceRange locates the byte range of a fenced block including both fences.
func fenceRange(n *ast.FencedCodeBlock, source []byte) (start, end int, ok bool) {
	lines := n.Lines()
	var contentEnd int
	switch {
	case lines.Len() > 0:
		first := lines.At(0)
		start = lineStart(source, first.Start-1)
		contentEnd = lines.At(lines.Len() - 1).Stop
	case n.Info != nil:
		start = lineStart(source, n.Info.Segment.Start)
		contentEnd = lineEnd(source, n.Info.Segment.Start)
	default:
		return 0, 0, false
	}

	end = contentEnd
	if end < len(source) {
		closing := strings.TrimSpace(string(source[end:lineEnd(source, end)]))
		if strings.HasPrefix(closing, "```") || strings.HasPrefix(closing, "~~~") {
			end = lineEnd(source, end)
		}
	}
	return start, end, true
}

// lineStart returns the offset of the first byte of the line holding pos.
func lineStart(source []byte, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos > len(source) {
		pos = len(source)
	}
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line at pos.
func lineEnd(source []byte, pos int) int {
	if pos >= len(source) {
		return len(source)
	}
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}
