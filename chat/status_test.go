// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func statusPayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	if raw == "" {
		return nil
	}
	var object map[string]any
	if err := json.Unmarshal([]byte(raw), &object); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	return object
}

func TestReduceStatusTransitions(t *testing.T) {
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		current    Status
		event      string
		payload    string
		wantPhase  Phase
		wantDetail string
		wantRun    string
	}{
		{
			name:      "chat delta starts replying",
			current:   Status{Phase: PhaseWaiting},
			event:     "chat",
			payload:   `{"state":"delta"}`,
			wantPhase: PhaseReplying,
		},
		{
			name:      "chat final ends the run",
			current:   Status{Phase: PhaseReplying, RunID: "r1"},
			event:     "chat",
			payload:   `{"state":"final"}`,
			wantPhase: PhaseDone,
		},
		{
			name:      "chat aborted",
			current:   Status{Phase: PhaseReplying, RunID: "r1"},
			event:     "chat.message",
			payload:   `{"state":"aborted"}`,
			wantPhase: PhaseAborted,
		},
		{
			name:       "chat error carries detail",
			current:    Status{Phase: PhaseWaiting, RunID: "r1"},
			event:      "chat",
			payload:    `{"state":"error","errorMessage":"model overloaded"}`,
			wantPhase:  PhaseError,
			wantDetail: "model overloaded",
		},
		{
			name:      "lifecycle start begins thinking",
			current:   Status{Phase: PhaseWaiting, RunID: "r1"},
			event:     "agent",
			payload:   `{"stream":"lifecycle","phase":"start","runId":"r1"}`,
			wantPhase: PhaseThinking,
			wantRun:   "r1",
		},
		{
			name:      "lifecycle end finishes",
			current:   Status{Phase: PhaseReplying, RunID: "r1"},
			event:     "agent",
			payload:   `{"stream":"lifecycle","phase":"end","runId":"r1"}`,
			wantPhase: PhaseDone,
		},
		{
			name:       "lifecycle error",
			current:    Status{Phase: PhaseThinking, RunID: "r1"},
			event:      "agent",
			payload:    `{"stream":"lifecycle","phase":"error","error":"tool crashed","runId":"r1"}`,
			wantPhase:  PhaseError,
			wantDetail: "tool crashed",
		},
		{
			name:       "tool start names the tool",
			current:    Status{Phase: PhaseThinking, RunID: "r1"},
			event:      "agent",
			payload:    `{"stream":"tool","phase":"start","tool":"bash","runId":"r1"}`,
			wantPhase:  PhaseTool,
			wantDetail: "bash",
			wantRun:    "r1",
		},
		{
			name:       "tool result returns to thinking",
			current:    Status{Phase: PhaseTool, Detail: "bash", RunID: "r1"},
			event:      "agent",
			payload:    `{"stream":"tool","phase":"result","tool":"bash","runId":"r1"}`,
			wantPhase:  PhaseThinking,
			wantDetail: "bash finished",
			wantRun:    "r1",
		},
		{
			name:       "compaction start",
			current:    Status{Phase: PhaseThinking, RunID: "r1"},
			event:      "agent",
			payload:    `{"stream":"compaction","phase":"start"}`,
			wantPhase:  PhaseThinking,
			wantDetail: compactingDetail,
			wantRun:    "r1",
		},
		{
			name:      "assistant stream starts replying",
			current:   Status{Phase: PhaseThinking, RunID: "r1"},
			event:     "agent",
			payload:   `{"stream":"assistant","runId":"r1"}`,
			wantPhase: PhaseReplying,
			wantRun:   "r1",
		},
		{
			name:      "agent.started alias",
			current:   Status{Phase: PhaseWaiting},
			event:     "agent.started",
			payload:   `{}`,
			wantPhase: PhaseThinking,
		},
		{
			name:      "agent.done alias clears the run",
			current:   Status{Phase: PhaseReplying, RunID: "r1"},
			event:     "agent.done",
			payload:   `{}`,
			wantPhase: PhaseDone,
		},
		{
			name:       "tool.call alias",
			current:    Status{Phase: PhaseThinking},
			event:      "tool.call",
			payload:    `{"name":"grep"}`,
			wantPhase:  PhaseTool,
			wantDetail: "grep",
		},
		{
			name:      "model.streaming alias",
			current:   Status{Phase: PhaseThinking},
			event:     "model.streaming",
			payload:   `{}`,
			wantPhase: PhaseReplying,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, changed := reduceStatus(test.current, "chan:u1", test.event, statusPayload(t, test.payload), base)
			if !changed {
				t.Fatalf("reduceStatus did not transition")
			}
			if got.Phase != test.wantPhase {
				t.Errorf("Phase = %q, want %q", got.Phase, test.wantPhase)
			}
			if got.Detail != test.wantDetail {
				t.Errorf("Detail = %q, want %q", got.Detail, test.wantDetail)
			}
			if got.RunID != test.wantRun {
				t.Errorf("RunID = %q, want %q", got.RunID, test.wantRun)
			}
			if !got.UpdatedAt.Equal(base) {
				t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, base)
			}
		})
	}
}

func TestReduceStatusNoOps(t *testing.T) {
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current Status
		key     string
		event   string
		payload string
	}{
		{
			name:    "no active conversation",
			current: Status{Phase: PhaseIdle},
			key:     "",
			event:   "chat",
			payload: `{"state":"delta"}`,
		},
		{
			name:    "foreign conversation key",
			current: Status{Phase: PhaseIdle},
			key:     "chan:u1",
			event:   "chat",
			payload: `{"state":"delta","sessionKey":"chan:other"}`,
		},
		{
			name:    "superseded run dropped",
			current: Status{Phase: PhaseReplying, RunID: "r2"},
			key:     "chan:u1",
			event:   "agent",
			payload: `{"stream":"tool","phase":"start","tool":"bash","runId":"r1"}`,
		},
		{
			name:    "delta while already replying",
			current: Status{Phase: PhaseReplying},
			key:     "chan:u1",
			event:   "chat",
			payload: `{"state":"delta"}`,
		},
		{
			name:    "duplicate tool start",
			current: Status{Phase: PhaseTool, Detail: "bash"},
			key:     "chan:u1",
			event:   "agent",
			payload: `{"stream":"tool","phase":"start","tool":"bash"}`,
		},
		{
			name:    "tool result outside tool phase",
			current: Status{Phase: PhaseReplying},
			key:     "chan:u1",
			event:   "agent",
			payload: `{"stream":"tool","phase":"result","tool":"bash"}`,
		},
		{
			name:    "compaction end after newer detail",
			current: Status{Phase: PhaseThinking, Detail: "bash finished"},
			key:     "chan:u1",
			event:   "agent",
			payload: `{"stream":"compaction","phase":"end"}`,
		},
		{
			name:    "assistant stream while in tool",
			current: Status{Phase: PhaseTool, Detail: "bash"},
			key:     "chan:u1",
			event:   "agent",
			payload: `{"stream":"assistant"}`,
		},
		{
			name:    "unknown event",
			current: Status{Phase: PhaseThinking},
			key:     "chan:u1",
			event:   "presence.update",
			payload: `{}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, changed := reduceStatus(test.current, test.key, test.event, statusPayload(t, test.payload), base)
			if changed {
				t.Fatalf("reduceStatus transitioned to %+v, want no-op", got)
			}
		})
	}
}

func TestReduceStatusTerminationClearsSupersededRun(t *testing.T) {
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	current := Status{Phase: PhaseReplying, RunID: "r2"}

	got, changed := reduceStatus(current, "chan:u1", "agent",
		statusPayload(t, `{"stream":"lifecycle","phase":"end","runId":"r1"}`), base)
	if !changed {
		t.Fatal("termination for a superseded run was dropped")
	}
	if got.Phase != PhaseDone {
		t.Errorf("Phase = %q, want done", got.Phase)
	}
	if got.RunID != "" {
		t.Errorf("RunID = %q, want cleared", got.RunID)
	}
}

func TestReduceStatusSinceAdvancesOnlyOnPhaseChange(t *testing.T) {
	start := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	later := start.Add(5 * time.Second)

	first, changed := reduceStatus(Status{Phase: PhaseThinking, Since: start, UpdatedAt: start},
		"chan:u1", "agent", statusPayload(t, `{"stream":"tool","phase":"start","tool":"bash"}`), start)
	if !changed || first.Phase != PhaseTool {
		t.Fatalf("expected tool transition, got %+v", first)
	}
	if !first.Since.Equal(start) {
		t.Fatalf("Since = %v, want %v", first.Since, start)
	}

	// Same phase, new detail: UpdatedAt moves, Since holds.
	second, changed := reduceStatus(first, "chan:u1", "agent",
		statusPayload(t, `{"stream":"tool","phase":"update","tool":"grep"}`), later)
	if !changed {
		t.Fatal("detail change did not transition")
	}
	if second.Phase != PhaseTool || second.Detail != "grep" {
		t.Fatalf("got %+v, want tool/grep", second)
	}
	if !second.Since.Equal(start) {
		t.Errorf("Since moved to %v on a detail-only change", second.Since)
	}
	if !second.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", second.UpdatedAt, later)
	}
}

func TestReduceStatusRunFilter(t *testing.T) {
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	current := Status{Phase: PhaseWaiting, RunID: "web-1787479200000-a1b2c3d4"}

	// The current run's events pass and keep the run.
	got, changed := reduceStatus(current, "chan:u1", "agent",
		statusPayload(t, `{"stream":"lifecycle","phase":"start","runId":"web-1787479200000-a1b2c3d4"}`), base)
	if !changed || got.Phase != PhaseThinking {
		t.Fatalf("current-run event: got %+v, want thinking", got)
	}
	if got.RunID != current.RunID {
		t.Fatalf("RunID = %q, want %q", got.RunID, current.RunID)
	}

	// Any other run is stale.
	if _, changed := reduceStatus(got, "chan:u1", "agent",
		statusPayload(t, `{"stream":"assistant","runId":"r8"}`), base); changed {
		t.Fatal("event for a different run was not dropped")
	}

	// With no run set, events pass without the status taking theirs on;
	// only Send seeds the run.
	open, changed := reduceStatus(Status{Phase: PhaseWaiting}, "chan:u1", "agent",
		statusPayload(t, `{"stream":"lifecycle","phase":"start","runId":"r7"}`), base)
	if !changed || open.Phase != PhaseThinking {
		t.Fatalf("runless status: got %+v, want thinking", open)
	}
	if open.RunID != "" {
		t.Errorf("RunID = %q, want empty", open.RunID)
	}
}
