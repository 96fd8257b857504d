// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"reflect"
	"strings"
)

// MaxErrorChainDepth bounds how deep ErrorChain follows causes.
const MaxErrorChainDepth = 32

// ErrorChain returns the message each error in err's cause chain adds on its
// own, outermost first. Wrapped messages are stripped of the cause text they
// already repeat, empty messages are skipped, and cycles or chains deeper
// than MaxErrorChainDepth are cut off.
func ErrorChain(err error) []string {
	var (
		out  []string
		seen []error
	)

	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil || depth >= MaxErrorChainDepth || visited(seen, e) {
			return
		}
		seen = append(seen, e)

		causes := unwrapAll(e)
		if msg := ownMessage(e, causes); msg != "" {
			out = append(out, msg)
		}
		for _, c := range causes {
			walk(c, depth+1)
		}
	}
	walk(err, 0)
	return out
}

// Diagnostic renders ErrorChain one message per line.
func Diagnostic(err error) string {
	return strings.Join(ErrorChain(err), "\n")
}

func unwrapAll(e error) []error {
	switch u := e.(type) {
	case interface{ Unwrap() []error }:
		return u.Unwrap()
	case interface{ Unwrap() error }:
		if c := u.Unwrap(); c != nil {
			return []error{c}
		}
	}
	return nil
}

func ownMessage(e error, causes []error) string {
	msg := strings.TrimSpace(e.Error())
	if len(causes) == 0 {
		return msg
	}

	if len(causes) > 1 {
		parts := make([]string, 0, len(causes))
		for _, c := range causes {
			parts = append(parts, c.Error())
		}
		if msg == strings.Join(parts, "\n") {
			return ""
		}
		return msg
	}

	cause := strings.TrimSpace(causes[0].Error())
	if cause == "" || !strings.HasSuffix(msg, cause) {
		return msg
	}
	own := strings.TrimSuffix(msg, cause)
	return strings.TrimRight(strings.TrimSpace(own), ":;- ")
}

func visited(seen []error, e error) bool {
	if !reflect.TypeOf(e).Comparable() {
		return false
	}
	for _, s := range seen {
		if s == e {
			return true
		}
	}
	return false
}
