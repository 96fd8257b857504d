// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package text

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	a := NewCodeFragment("int x=1;", "java", "A.java")
	same := NewCodeFragment("int x=1;", ".JAVA", "A.java")
	otherTitle := NewCodeFragment("int x=1;", "java", "B.java")

	tests := []struct {
		name string
		a, b TextContent
		want bool
	}{
		{"identical values", a, same, true},
		{"pointer and value", a, &same, true},
		{"different title", a, otherTitle, false},
		{"code vs text", a, NewTextFragment("int x=1;"), false},
		{"text vs text", NewTextFragment("hi"), NewTextFragment("hi"), true},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, a, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestContains(t *testing.T) {
	list := []TextContent{NewTextFragment("a"), NewCodeFragment("b", "go", "")}
	assert.True(t, Contains(list, NewCodeFragment("b", "go", "")))
	assert.False(t, Contains(list, NewCodeFragment("b", "py", "")))
}

func TestNormalize(t *testing.T) {
	// "é" as e + combining acute composes to a single rune.
	assert.Equal(t, "caf\u00e9\nx\n", Normalize("cafe\u0301\r\nx\r"))
}

func TestFromSelection(t *testing.T) {
	frag, ok := FromSelection("  \n\t", "Main.java", 1, 2)
	assert.False(t, ok, "blank selection yields no fragment")
	assert.Equal(t, CodeFragment{}, frag)

	frag, ok = FromSelection("int x=1;", "src/Main.java", 10, 20)
	require.True(t, ok)
	assert.Equal(t, "java", frag.Extension)
	assert.Equal(t, "Main.java:10-20", frag.Title)
	assert.Equal(t, "Main.java:10-20", frag.String())
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "a.go", Title("/x/a.go", 0, 0))
	assert.Equal(t, "a.go:7", Title("/x/a.go", 7, 7))
	assert.Equal(t, "a.go:7-9", Title("/x/a.go", 7, 9))
	assert.Equal(t, "selection", Title("", 0, 0))
}

func TestGuessExtension(t *testing.T) {
	assert.Equal(t, "go", GuessExtension("main.go", ""))
	assert.Equal(t, "py", GuessExtension("script.py", "print(1)"))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	src := filepath.Join(dir, "hello.py")
	require.NoError(t, os.WriteFile(src, []byte("print('hi')\r\n"), 0600))
	frag, ok, err := FromFile(src, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "print('hi')\n", frag.Text)
	assert.Equal(t, "py", frag.Extension)
	assert.Equal(t, "hello.py", frag.Title)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	_, ok, err = FromFile(empty, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	bin := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(bin, []byte{0x7f, 0x00, 0x01}, 0600))
	_, _, err = FromFile(bin, 0)
	assert.Error(t, err)

	_, _, err = FromFile(src, 4)
	assert.ErrorContains(t, err, "too large")

	_, _, err = FromFile(filepath.Join(dir, "missing.go"), 0)
	assert.Error(t, err)
}

func TestParseMarkdown(t *testing.T) {
	src := "Here is the fix:\n\n```java\nint x = 1;\nint y = 2;\n```\n\nAnd a shell line:\n\n```\nls -la\n```\n"

	blocks := ParseMarkdown(src)
	require.Len(t, blocks, 4)

	assert.Equal(t, Block{Kind: BlockProse, Text: "Here is the fix:"}, blocks[0])
	assert.Equal(t, Block{Kind: BlockCode, Language: "java", Text: "int x = 1;\nint y = 2;"}, blocks[1])
	assert.Equal(t, Block{Kind: BlockProse, Text: "And a shell line:"}, blocks[2])
	assert.Equal(t, Block{Kind: BlockCode, Text: "ls -la"}, blocks[3])
}

func TestParseMarkdownProseOnly(t *testing.T) {
	blocks := ParseMarkdown("# Title\n\nJust words.")
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockProse, blocks[0].Kind)
	assert.Equal(t, "# Title\n\nJust words.", blocks[0].Text)

	assert.Empty(t, ParseMarkdown("   \n"))
}

func TestTextFragmentCodeBlocks(t *testing.T) {
	f := NewTextFragment("text\n```go\nfunc main() {}\n```\n")
	code := f.CodeBlocks()
	require.Len(t, code, 1)
	assert.Equal(t, "go", code[0].Extension)
	assert.Equal(t, "func main() {}", code[0].Text)
}
