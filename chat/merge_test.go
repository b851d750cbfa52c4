// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "testing"

func messageContents(t *testing.T, log []Message) []string {
	t.Helper()
	contents := make([]string, len(log))
	for i, message := range log {
		contents[i] = message.Content
	}
	return contents
}

func requireLog(t *testing.T, log []Message, want ...string) {
	t.Helper()
	got := messageContents(t, log)
	if len(got) != len(want) {
		t.Fatalf("log has %d entries %q, want %d %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("log[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMergeByIDIsIdempotent(t *testing.T) {
	remote := Message{ID: "m1", Role: RoleAssistant, Content: "hello there"}

	var log []Message
	log = mergeMessage(log, remote, false)
	log = mergeMessage(log, remote, false)

	requireLog(t, log, "hello there")
}

func TestMergeByIDNeverShrinks(t *testing.T) {
	var log []Message
	log = mergeMessage(log, Message{ID: "m1", Role: RoleAssistant, Content: "Hello"}, false)
	log = mergeMessage(log, Message{ID: "m1", Role: RoleAssistant, Content: "Hel"}, false)

	requireLog(t, log, "Hello")

	// Equal-or-longer content still replaces, picking up metadata.
	log = mergeMessage(log, Message{ID: "m1", Role: RoleAssistant, Content: "Hello!", Name: "claude"}, false)
	requireLog(t, log, "Hello!")
	if log[0].Name != "claude" {
		t.Fatalf("replacement did not carry metadata: name = %q", log[0].Name)
	}
}

func TestMergeAdoptsLocalEcho(t *testing.T) {
	tests := []struct {
		name   string
		echoID string
	}{
		{"web prefix", "web-1700000000000-abcd1234"},
		{"local prefix", "local-7"},
		{"anonymous", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			echo := Message{ID: test.echoID, Role: RoleUser, Content: "run the tests"}
			remote := Message{ID: "srv-42", Role: RoleUser, Content: "run the tests", Timestamp: "2026-08-23T10:00:00Z"}

			log := mergeMessage(nil, echo, false)
			log = mergeMessage(log, remote, false)

			requireLog(t, log, "run the tests")
			if log[0].ID != "srv-42" {
				t.Fatalf("echo did not adopt remote identity: id = %q", log[0].ID)
			}
		})
	}
}

func TestMergeDoesNotAdoptRemoteDuplicates(t *testing.T) {
	// A remote-identified entry with equal content is a distinct
	// message, not an echo to adopt.
	first := Message{ID: "srv-1", Role: RoleUser, Content: "again"}
	second := Message{ID: "srv-2", Role: RoleUser, Content: "again"}

	log := mergeMessage(nil, first, false)
	log = mergeMessage(log, second, false)

	requireLog(t, log, "again", "again")
}

func TestMergeStreamingDeltas(t *testing.T) {
	t.Run("snapshot replaces prefix", func(t *testing.T) {
		log := mergeMessage(nil, Message{Role: RoleAssistant, Content: "Hel"}, true)
		log = mergeMessage(log, Message{Role: RoleAssistant, Content: "Hello"}, true)
		requireLog(t, log, "Hello")
	})

	t.Run("stale suffix dropped", func(t *testing.T) {
		log := mergeMessage(nil, Message{Role: RoleAssistant, Content: "Hello"}, true)
		log = mergeMessage(log, Message{Role: RoleAssistant, Content: "lo"}, true)
		requireLog(t, log, "Hello")
	})

	t.Run("fresh fragment appends", func(t *testing.T) {
		log := mergeMessage(nil, Message{ID: "m1", Role: RoleAssistant, Content: "Hel"}, true)
		log = mergeMessage(log, Message{Role: RoleAssistant, Content: "lo"}, true)
		requireLog(t, log, "Hello")
		if log[0].ID != "m1" {
			t.Fatalf("fusion lost the entry identity: id = %q", log[0].ID)
		}
	})

	t.Run("role change starts a new entry", func(t *testing.T) {
		log := mergeMessage(nil, Message{Role: RoleUser, Content: "hi"}, true)
		log = mergeMessage(log, Message{Role: RoleAssistant, Content: "Hel"}, true)
		requireLog(t, log, "hi", "Hel")
	})
}

func TestMergeAnonymousGrowth(t *testing.T) {
	log := mergeMessage(nil, Message{Role: RoleAssistant, Content: "Working"}, false)
	log = mergeMessage(log, Message{Role: RoleAssistant, Content: "Working on it"}, false)
	requireLog(t, log, "Working on it")

	// Unrelated anonymous content appends instead.
	log = mergeMessage(log, Message{Role: RoleAssistant, Content: "Done"}, false)
	requireLog(t, log, "Working on it", "Done")
}

func TestMergeAllFoldsInOrder(t *testing.T) {
	batch := []Message{
		{Role: RoleAssistant, Content: "Hel"},
		{Role: RoleAssistant, Content: "lo"},
		{Role: RoleAssistant, Content: "Hello, world"},
	}
	log := mergeAll(nil, batch, true)
	requireLog(t, log, "Hello, world")
}
