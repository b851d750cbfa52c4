// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat reconciles the gateway's realtime event stream into a
// single ordered, deduplicated conversation log and a small derived
// agent status.
//
// The gateway pushes loosely-structured payloads: atomic messages,
// streaming deltas, history snapshots, and a zoo of lifecycle/tool
// notifications whose shapes evolve between gateway versions. This
// package absorbs all of them without ever erroring: extraction
// failures degrade to no-ops so old clients stay forward-compatible.
//
// [Session] owns the per-conversation state: the message log, the
// [Status] value, and the pending stream buffer. It routes each
// decoded event through two independent consumers:
//
//   - the merge engine (merge.go), which folds candidate messages
//     extracted from the payload (extract.go) into the log:
//     replacing by ID, adopting optimistic local echoes, fusing
//     streaming deltas, and appending genuinely new messages;
//   - the status reducer (status.go), which collapses the many event
//     shapes into one [Phase] for display, dropping events for
//     superseded runs and foreign conversation keys.
//
// Streaming fragments are coalesced: they queue in a pending buffer
// and merge as one batch on the next scheduler tick, bounding UI
// churn no matter how fast the gateway streams. Switching the active
// conversation key synchronously drops the buffer and cancels every
// pending timer, so stale fragments never leak into the new
// conversation.
//
// Session.Send implements the optimistic send pipeline: a local echo
// with a "web-" idempotency key appears immediately, the RPC send
// carries the same key, the status adopts it as the run identifier,
// and a failure rolls the echo back. Debounced
// history refreshes (after realtime merges) and slow fallback
// refreshes (after sends) reconcile the log against the gateway's
// authoritative history, so lost events heal within seconds.
package chat
