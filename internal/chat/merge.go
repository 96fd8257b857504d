// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/rigrun-chatlink/internal/text"

// PinnedEntry is a pinned context item that may or may not have resolved text.
type PinnedEntry interface {
	Payload() (text.TextContent, bool)
}

// MergeContext combines ad-hoc fragments with pinned context.
//
// With nothing pinned, adHoc is returned as is and must be treated as read
// only. Otherwise the result lists the pinned payloads in pin order followed
// by each ad-hoc fragment that is not already present by value.
func MergeContext[E PinnedEntry](adHoc []text.TextContent, pinned []E) []text.TextContent {
	if len(pinned) == 0 {
		return adHoc
	}

	merged := make([]text.TextContent, 0, len(pinned)+len(adHoc))
	for _, e := range pinned {
		if payload, ok := e.Payload(); ok {
			merged = append(merged, payload)
		}
	}
	for _, frag := range adHoc {
		if !text.Contains(merged, frag) {
			merged = append(merged, frag)
		}
	}
	return merged
}
