// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
)

func TestCompose(t *testing.T) {
	java := text.NewCodeFragment("int x=1;", "java", "A.java")

	tests := []struct {
		name      string
		prompt    string
		fragments []text.TextContent
		want      string
	}{
		{
			name:      "prompt with fragment",
			prompt:    "Explain this",
			fragments: []text.TextContent{java},
			want:      "Explain this\n\n```java\nint x=1;\n```",
		},
		{
			name:   "blank prompt no fragments",
			prompt: "   \n",
			want:   "",
		},
		{
			name:      "blank prompt with fragment",
			prompt:    "",
			fragments: []text.TextContent{java},
			want:      "```java\nint x=1;\n```",
		},
		{
			name:      "blank fragments are skipped",
			prompt:    "",
			fragments: []text.TextContent{text.NewTextFragment("  ")},
			want:      "",
		},
		{
			name:   "prompt only",
			prompt: "  hello  ",
			want:   "hello",
		},
		{
			name:      "untagged text fragment",
			prompt:    "Look",
			fragments: []text.TextContent{text.NewTextFragment("plain\n")},
			want:      "Look\n\n```\nplain\n```",
		},
		{
			name:      "fence inside fragment",
			prompt:    "Fix",
			fragments: []text.TextContent{text.NewCodeFragment("a\n```\nb", "md", "")},
			want:      "Fix\n\n````md\na\n```\nb\n````",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Compose(NewConversation(), tt.prompt, tt.fragments)
			assert.Equal(t, transport.RoleUser, msg.Role)
			assert.Equal(t, tt.want, msg.Content)
		})
	}
}

func TestComposeNonBlankPromptNeverEmpty(t *testing.T) {
	for _, p := range []string{"a", " b ", "\tc\n", "${unknown}"} {
		msg := Compose(NewConversation(), p, nil)
		assert.False(t, msg.IsEmpty(), "prompt %q", p)
	}
}

func TestComposeAppliesSubstitution(t *testing.T) {
	p := NewPlaceholders()
	p.SetValue("lang", "Go")
	conv := NewConversation(WithSubstitutor(p))

	msg := Compose(conv, "Write ${lang} for ${os}, costs $5, keep ${missing}", nil)
	assert.Equal(t, "Write Go for "+runtime.GOOS+", costs $5, keep ${missing}", msg.Content)
}

func TestComposeKeepsPromptEmptiedBySubstitution(t *testing.T) {
	p := NewPlaceholders()
	p.SetValue("note", "")
	conv := NewConversation(WithSubstitutor(p))

	msg := Compose(conv, " ${note} ", nil)
	assert.Equal(t, "${note}", msg.Content)

	blank := NewConversation(WithSubstitutor(SubstitutorFunc(func(string) string { return "" })))
	assert.Equal(t, "hi", Compose(blank, "hi", nil).Content)
	assert.True(t, Compose(blank, "  ", nil).IsEmpty())
}

func TestSubstitutorFunc(t *testing.T) {
	conv := NewConversation(WithSubstitutor(SubstitutorFunc(strings.ToUpper)))
	assert.Equal(t, "HI", Compose(conv, "hi", nil).Content)
}

func TestMessageTokens(t *testing.T) {
	assert.Equal(t, 2, MessageTokens(transport.NewUserMessage("12345678")))
}
