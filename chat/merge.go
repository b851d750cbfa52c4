// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "strings"

// mergeMessage folds next into the ordered log and returns the
// updated slice. The rules run in order; the first that applies wins:
//
//  1. An existing entry shares next's ID: replace it, unless next's
//     content is strictly shorter; a message never shrinks in place.
//     This makes re-delivery of the same remote message idempotent.
//  2. The last entry has the same role, exactly equal content, and a
//     local-echo ID (absent or "web-"/"local-" prefixed): replace it
//     with next, adopting the remote identity. This reconciles an
//     optimistic echo with the authoritative copy.
//  3. Streaming mode, last entry has the same role: delta fusion.
//     next starting with the last content is a fuller snapshot and
//     replaces; last content already ending with next is a stale
//     fragment and is dropped; anything else appends onto the last
//     entry's content, keeping its identity but refreshing metadata.
//  4. Both next and the last entry are anonymous (no ID), same role,
//     and next's content starts with the last's: a restart/growth of
//     the same message; replace in place.
//  5. Otherwise next is genuinely new: append.
//
// Rule 2 is a heuristic: two distinct real messages with identical
// role and content back-to-back will collapse into one. The ID prefix
// check is the only guard; this matches what existing gateway UIs
// depend on, so it stays.
func mergeMessage(log []Message, next Message, streaming bool) []Message {
	if next.ID != "" {
		for i := range log {
			if log[i].ID != next.ID {
				continue
			}
			if len(next.Content) < len(log[i].Content) {
				return log
			}
			log[i] = next
			return log
		}
	}

	if len(log) == 0 {
		return append(log, next)
	}
	last := &log[len(log)-1]

	if last.Role == next.Role && last.Content == next.Content && localEchoID(last.ID) {
		*last = next
		return log
	}

	if streaming && last.Role == next.Role {
		switch {
		case strings.HasPrefix(next.Content, last.Content):
			*last = next
		case strings.HasSuffix(last.Content, next.Content):
			// Stale fragment already folded in; drop it.
		default:
			merged := next
			merged.Content = last.Content + next.Content
			if last.ID != "" {
				merged.ID = last.ID
			}
			*last = merged
		}
		return log
	}

	if next.ID == "" && last.ID == "" && last.Role == next.Role &&
		strings.HasPrefix(next.Content, last.Content) {
		*last = next
		return log
	}

	return append(log, next)
}

// mergeAll folds a batch of candidates in order.
func mergeAll(log []Message, batch []Message, streaming bool) []Message {
	for _, next := range batch {
		log = mergeMessage(log, next, streaming)
	}
	return log
}
