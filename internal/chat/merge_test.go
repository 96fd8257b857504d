// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-chatlink/internal/inputctx"
	"github.com/jeranaias/rigrun-chatlink/internal/text"
)

func frag(s string) text.TextContent {
	return text.NewCodeFragment(s, "txt", "")
}

func pinned(payloads ...text.TextContent) []*inputctx.Entry {
	s := inputctx.NewStore()
	for _, p := range payloads {
		s.Add("entry", p)
	}
	return s.Entries()
}

func TestMergeContextNoPinnedIsIdentity(t *testing.T) {
	adHoc := []text.TextContent{frag("A"), frag("A")}
	merged := MergeContext(adHoc, []*inputctx.Entry(nil))
	require.Len(t, merged, 2)
	assert.Same(t, &adHoc[0], &merged[0], "returned unchanged without copying")

	assert.Nil(t, MergeContext(nil, []*inputctx.Entry{}))
}

func TestMergeContext(t *testing.T) {
	tests := []struct {
		name   string
		adHoc  []text.TextContent
		pinned []text.TextContent
		want   []text.TextContent
	}{
		{
			name:   "pinned first then new ad-hoc",
			adHoc:  []text.TextContent{frag("B"), frag("C")},
			pinned: []text.TextContent{frag("A"), frag("B")},
			want:   []text.TextContent{frag("A"), frag("B"), frag("C")},
		},
		{
			name:   "no ad-hoc",
			pinned: []text.TextContent{frag("A")},
			want:   []text.TextContent{frag("A")},
		},
		{
			name:   "duplicate ad-hoc collapses",
			adHoc:  []text.TextContent{frag("C"), frag("C")},
			pinned: []text.TextContent{frag("A")},
			want:   []text.TextContent{frag("A"), frag("C")},
		},
		{
			name:   "different language is a different fragment",
			adHoc:  []text.TextContent{text.NewCodeFragment("A", "go", "")},
			pinned: []text.TextContent{frag("A")},
			want:   []text.TextContent{frag("A"), text.NewCodeFragment("A", "go", "")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeContext(tt.adHoc, pinned(tt.pinned...))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeContextSkipsUnresolvedEntries(t *testing.T) {
	got := MergeContext([]text.TextContent{frag("B")}, pinned(nil, frag("A")))
	assert.Equal(t, []text.TextContent{frag("A"), frag("B")}, got)
}
