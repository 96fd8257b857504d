// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package selection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// MENTION TESTS
// =============================================================================

func TestParseMentions(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		paths     []string
		ranges    [][2]int
		remaining string
	}{
		{
			name:      "plain",
			input:     "explain @file:main.go please",
			paths:     []string{"main.go"},
			ranges:    [][2]int{{0, 0}},
			remaining: "explain please",
		},
		{
			name:      "line range",
			input:     "@file:src/a.go#L10-20 what does this do",
			paths:     []string{"src/a.go"},
			ranges:    [][2]int{{10, 20}},
			remaining: "what does this do",
		},
		{
			name:      "single line and quoted",
			input:     `compare @file:x.go#L3 with @file:"my file.py"`,
			paths:     []string{"x.go", "my file.py"},
			ranges:    [][2]int{{3, 0}, {0, 0}},
			remaining: "compare with",
		},
		{
			name:      "L on both ends",
			input:     "@file:b.rs#L1-L4",
			paths:     []string{"b.rs"},
			ranges:    [][2]int{{1, 4}},
			remaining: "",
		},
		{
			name:      "no mentions",
			input:     "email me at dev@example.com",
			remaining: "email me at dev@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mentions, remaining := ParseMentions(tt.input)
			require.Len(t, mentions, len(tt.paths))
			for i, m := range mentions {
				assert.Equal(t, tt.paths[i], m.Path)
				assert.Equal(t, tt.ranges[i][0], m.StartLine)
				assert.Equal(t, tt.ranges[i][1], m.EndLine)
				assert.Equal(t, m.Raw, tt.input[m.Start:m.End])
			}
			assert.Equal(t, tt.remaining, remaining)
		})
	}
}

func TestParseMentionsKeepsLineBreaks(t *testing.T) {
	_, remaining := ParseMentions("first  line @file:a.go\nsecond line")
	assert.Equal(t, "first line\nsecond line", remaining)
}

func TestHasMentions(t *testing.T) {
	assert.True(t, HasMentions("see @file:a.go"))
	assert.False(t, HasMentions("see @a.go"))
}

func TestMentionSourceResolvesRelative(t *testing.T) {
	mentions, _ := ParseMentions("@file:pkg/a.go#L2")
	require.Len(t, mentions, 1)

	src := mentions[0].Source("/work", 0)
	assert.Equal(t, filepath.Join("/work", "pkg", "a.go"), src.Path)
	assert.Equal(t, 2, src.Start)
}

// =============================================================================
// SOURCE TESTS
// =============================================================================

func TestTextSource(t *testing.T) {
	ctx := context.Background()

	frag, ok, err := Text{Selected: "int x = 1;", Path: "/src/Main.java", Start: 4, End: 4}.Resolve(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	cf := frag.(text.CodeFragment)
	assert.Equal(t, "java", cf.Extension)
	assert.Equal(t, "Main.java:4", cf.Title)

	_, ok, err = Text{Selected: "   \n", Path: "/src/Main.java"}.Resolve(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "blank selection yields no fragment")
}

func TestTextSourceWholeFileFallback(t *testing.T) {
	path := writeFile(t, t.TempDir(), "util.go", "package util\n")

	frag, ok, err := Text{Path: path, WholeFile: true}.Resolve(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "package util\n", frag.Content())
	assert.Equal(t, "go", frag.Language())
}

func TestFileSourceRange(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.py", "one\ntwo\nthree\nfour\n")
	ctx := context.Background()

	frag, ok, err := File{Path: path, Start: 2, End: 3}.Resolve(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two\nthree", frag.Content())
	assert.Equal(t, "a.py:2-3", frag.(text.CodeFragment).Title)

	frag, ok, err = File{Path: path, Start: 4}.Resolve(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "four", frag.Content())

	_, _, err = File{Path: path, Start: 9}.Resolve(ctx)
	assert.Error(t, err)

	frag, ok, err = File{Path: path}.Resolve(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one\ntwo\nthree\nfour\n", frag.Content())
}

func TestFileSourceMissing(t *testing.T) {
	_, ok, err := File{Path: filepath.Join(t.TempDir(), "nope.go")}.Resolve(context.Background())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStaticSource(t *testing.T) {
	_, ok, _ := Static{}.Resolve(context.Background())
	assert.False(t, ok)

	frag := text.NewCodeFragment("x", "go", "x.go")
	got, ok, err := Static{Fragment: frag}.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, text.Equal(frag, got))
	assert.Equal(t, "x.go", Static{Fragment: frag}.Describe())
}

// =============================================================================
// SNIPPETIZER TESTS
// =============================================================================

type slowSource struct {
	frag  text.TextContent
	delay time.Duration
	calls *atomic.Int32
}

func (s slowSource) Resolve(ctx context.Context) (text.TextContent, bool, error) {
	if s.calls != nil {
		s.calls.Add(1)
	}
	select {
	case <-time.After(s.delay):
		return s.frag, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (s slowSource) Describe() string { return "slow" }

func TestFetchSnippetsPreservesOrder(t *testing.T) {
	a := text.NewCodeFragment("a", "go", "a")
	b := text.NewCodeFragment("b", "go", "b")
	c := text.NewCodeFragment("c", "go", "c")

	sources := []Source{
		slowSource{frag: a, delay: 30 * time.Millisecond},
		Text{Selected: "  "},
		slowSource{frag: b, delay: 10 * time.Millisecond},
		Static{Fragment: c},
	}

	got, err := NewSnippetizer(WithConcurrency(4)).FetchSnippets(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Content())
	assert.Equal(t, "b", got[1].Content())
	assert.Equal(t, "c", got[2].Content())
}

func TestFetchSnippetsJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.go", "package good\n")

	sources := []Source{
		File{Path: good},
		File{Path: filepath.Join(dir, "missing.go")},
	}

	got, err := NewSnippetizer().FetchSnippets(context.Background(), sources)
	require.Len(t, got, 1)
	assert.Equal(t, "package good\n", got[0].Content())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.go")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFetchSnippetsCancelled(t *testing.T) {
	var calls atomic.Int32
	sources := make([]Source, 10)
	for i := range sources {
		sources[i] = slowSource{frag: text.NewTextFragment("x"), delay: time.Minute, calls: &calls}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewSnippetizer(WithConcurrency(2)).FetchSnippets(ctx, sources)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestSourcesFromPrompt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc A() {}\n")

	sources, remaining := SourcesFromPrompt("review @file:a.go#L3", dir, 0)
	require.Len(t, sources, 1)
	assert.Equal(t, "review", remaining)

	got, err := NewSnippetizer().FetchSnippets(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "func A() {}", got[0].Content())
}
