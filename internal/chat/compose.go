// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/transport"
	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// =============================================================================
// TEXT SUBSTITUTION
// =============================================================================

// TextSubstitutor rewrites a prompt before it is composed.
type TextSubstitutor interface {
	Substitute(prompt string) string
}

// SubstitutorFunc adapts a function to a TextSubstitutor.
type SubstitutorFunc func(string) string

// Substitute calls f.
func (f SubstitutorFunc) Substitute(prompt string) string { return f(prompt) }

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Placeholders expands ${name} references. Unknown names are left verbatim,
// and a bare $ is never touched.
type Placeholders struct {
	mu   sync.RWMutex
	vars map[string]func() string
}

// NewPlaceholders creates a substitutor with the built-in variables
// date, time, os and cwd.
func NewPlaceholders() *Placeholders {
	p := &Placeholders{vars: make(map[string]func() string)}
	p.Set("date", func() string { return time.Now().Format("2006-01-02") })
	p.Set("time", func() string { return time.Now().Format("15:04") })
	p.Set("os", func() string { return runtime.GOOS })
	p.Set("cwd", func() string {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		return wd
	})
	return p
}

// Set defines or replaces a variable.
func (p *Placeholders) Set(name string, value func() string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vars[name] = value
}

// SetValue defines a variable with a fixed value.
func (p *Placeholders) SetValue(name, value string) {
	p.Set(name, func() string { return value })
}

// Substitute expands every known placeholder in prompt.
func (p *Placeholders) Substitute(prompt string) string {
	if !strings.Contains(prompt, "${") {
		return prompt
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return placeholderPattern.ReplaceAllStringFunc(prompt, func(m string) string {
		name := m[2 : len(m)-1]
		if fn, ok := p.vars[name]; ok {
			return fn()
		}
		return m
	})
}

// =============================================================================
// COMPOSER
// =============================================================================

// Compose builds the user message for prompt and fragments.
//
// The prompt goes through the conversation's substitution policy, then each
// non-blank fragment is appended as a fenced block tagged with its language.
// A blank prompt with no fragments gives a message with empty content, which
// callers treat as nothing to send. Blankness is judged on the prompt as
// typed: when substitution leaves nothing of a non-blank prompt, the prompt
// is sent unexpanded.
func Compose(conv *Conversation, prompt string, fragments []text.TextContent) transport.Message {
	head := strings.TrimSpace(prompt)
	if conv != nil && head != "" {
		if expanded := strings.TrimSpace(conv.Substitute(prompt)); expanded != "" {
			head = expanded
		}
	}

	var sb strings.Builder
	sb.WriteString(head)
	for _, frag := range fragments {
		if text.IsBlank(frag) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		writeFenced(&sb, frag.Content(), frag.Language())
	}
	return transport.NewUserMessage(sb.String())
}

// MessageTokens estimates the token count of a composed message.
func MessageTokens(msg transport.Message) int {
	return util.EstimateTokens(msg.Content)
}

func writeFenced(sb *strings.Builder, body, lang string) {
	fence := fenceFor(body)
	sb.WriteString(fence)
	sb.WriteString(lang)
	sb.WriteByte('\n')
	sb.WriteString(strings.TrimRight(body, "\n"))
	sb.WriteByte('\n')
	sb.WriteString(fence)
}

// fenceFor returns a backtick fence longer than any backtick run in body.
func fenceFor(body string) string {
	longest, run := 0, 0
	for _, r := range body {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}
