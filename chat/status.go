// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"strings"
	"time"
)

// Phase is the small display summary of what the agent is doing.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSending  Phase = "sending"
	PhaseWaiting  Phase = "waiting"
	PhaseThinking Phase = "thinking"
	PhaseTool     Phase = "tool"
	PhaseReplying Phase = "replying"
	PhaseDone     Phase = "done"
	PhaseAborted  Phase = "aborted"
	PhaseError    Phase = "error"
)

// Status summarizes the agent's current activity for one conversation.
//
// RunID correlates the status to the send that initiated it: Send
// seeds it with the send's idempotency key, and events carrying a
// different run are stale and ignored (termination events excepted;
// they may clear a superseded run). Since advances only when Phase
// actually changes, so duration displays don't reset on detail-only
// updates.
type Status struct {
	Phase     Phase
	RunID     string
	Detail    string
	UpdatedAt time.Time
	Since     time.Time
}

// idleStatus is the reset value used at conversation-key assignment.
func idleStatus(now time.Time) Status {
	return Status{Phase: PhaseIdle, UpdatedAt: now, Since: now}
}

// compactingDetail is the fixed detail shown while the gateway
// compacts conversation context. The compaction end event clears the
// detail only while it is still exactly this value, so a newer state
// is never clobbered.
const compactingDetail = "compacting context"

// errorDetailFields are searched for a displayable error description.
var errorDetailFields = []string{"errorMessage", "error", "message", "detail"}

// toolNameFields are searched for the active tool's name.
var toolNameFields = []string{"tool", "toolName", "name"}

// reduceStatus folds one gateway event into the current status. It is
// pure: it returns the next status and whether anything changed. The
// caller holds the state and the active conversation key.
//
// Events are dropped wholesale when no key is active, when the
// payload's embedded key mismatches the active one, or when the
// payload's run mismatches the current run. Termination events are
// the exception: they are allowed through to clear a superseded run.
func reduceStatus(current Status, activeKey, event string, payload map[string]any, now time.Time) (Status, bool) {
	if activeKey == "" {
		return current, false
	}
	if key := conversationKeyOf(payload); key != "" && key != activeKey {
		return current, false
	}

	name := strings.ToLower(strings.TrimSpace(event))

	runID := runIDOf(payload)
	if runID != "" && current.RunID != "" && runID != current.RunID {
		if !isTermination(name, payload) {
			return current, false
		}
	}

	switch {
	case name == "chat" || strings.HasPrefix(name, "chat."):
		return reduceChat(current, payload, now)

	case name == "agent":
		return reduceAgent(current, payload, now)

	case name == "agent.started" || name == "agent.thinking":
		return advance(current, PhaseThinking, "", false, now)

	case name == "agent.done":
		return advance(current, PhaseDone, "", true, now)

	case name == "tool.call":
		return advance(current, PhaseTool, firstString(payload, toolNameFields), false, now)

	case name == "tool.result":
		return advance(current, PhaseThinking, "", false, now)

	case name == "model.streaming":
		if current.Phase == PhaseReplying {
			return current, false
		}
		return advance(current, PhaseReplying, "", false, now)
	}
	return current, false
}

// reduceChat handles "chat"/"chat.*" events: the state field drives
// the transition.
func reduceChat(current Status, payload map[string]any, now time.Time) (Status, bool) {
	switch firstString(payload, []string{"state"}) {
	case "delta":
		if current.Phase == PhaseReplying {
			return current, false
		}
		return advance(current, PhaseReplying, "", false, now)
	case "final":
		return advance(current, PhaseDone, "", true, now)
	case "aborted":
		return advance(current, PhaseAborted, "", true, now)
	case "error":
		return advance(current, PhaseError, errorDetail(payload), true, now)
	}
	return current, false
}

// reduceAgent handles the unified "agent" event: the stream field
// selects the sub-shape.
func reduceAgent(current Status, payload map[string]any, now time.Time) (Status, bool) {
	phase := firstString(payload, []string{"phase", "state"})

	switch firstString(payload, []string{"stream"}) {
	case "lifecycle":
		switch phase {
		case "start":
			return advance(current, PhaseThinking, "", false, now)
		case "end":
			return advance(current, PhaseDone, "", true, now)
		case "error":
			return advance(current, PhaseError, errorDetail(payload), true, now)
		}

	case "tool":
		switch phase {
		case "start", "update":
			detail := firstString(payload, toolNameFields)
			if current.Phase == PhaseTool && current.Detail == detail {
				return current, false
			}
			return advance(current, PhaseTool, detail, false, now)
		case "result":
			if current.Phase != PhaseTool {
				return current, false
			}
			detail := firstString(payload, toolNameFields)
			if detail != "" {
				detail += " finished"
			}
			return advance(current, PhaseThinking, detail, false, now)
		}

	case "compaction":
		switch phase {
		case "start":
			return advance(current, PhaseThinking, compactingDetail, false, now)
		case "end":
			if current.Phase == PhaseThinking && current.Detail == compactingDetail {
				return advance(current, PhaseThinking, "", false, now)
			}
			return current, false
		}

	case "assistant":
		if current.Phase == PhaseReplying || current.Phase == PhaseTool {
			return current, false
		}
		return advance(current, PhaseReplying, "", false, now)
	}
	return current, false
}

// isTermination reports whether the event ends a run. Termination
// events bypass the stale-run filter so a superseded run can still be
// cleared.
func isTermination(name string, payload map[string]any) bool {
	switch {
	case name == "chat" || strings.HasPrefix(name, "chat."):
		switch firstString(payload, []string{"state"}) {
		case "final", "aborted", "error":
			return true
		}
	case name == "agent":
		if firstString(payload, []string{"stream"}) != "lifecycle" {
			return false
		}
		switch firstString(payload, []string{"phase", "state"}) {
		case "end", "error":
			return true
		}
	case name == "agent.done":
		return true
	}
	return false
}

// advance produces the next status. UpdatedAt always refreshes on a
// transition; Since refreshes only when the phase actually differs.
func advance(current Status, phase Phase, detail string, clearRun bool, now time.Time) (Status, bool) {
	next := current
	next.Phase = phase
	next.Detail = detail
	if clearRun {
		next.RunID = ""
	}
	next.UpdatedAt = now
	if phase != current.Phase {
		next.Since = now
	}
	return next, true
}

// errorDetail extracts a displayable error description from a payload.
func errorDetail(payload map[string]any) string {
	for _, field := range errorDetailFields {
		value, present := payload[field]
		if !present {
			continue
		}
		if text := strings.TrimSpace(extractText(value)); text != "" {
			return text
		}
	}
	return ""
}
