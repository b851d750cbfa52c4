// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"strings"
)

// Role classifies a message's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// normalizeRole maps loose role strings onto the four canonical
// roles. The four canonical names pass through verbatim, "toolResult"
// collapses to tool, and anything else (including empty) defaults
// to assistant, since unattributed gateway output is assistant
// output in practice.
func normalizeRole(raw string) Role {
	switch strings.TrimSpace(raw) {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	case "tool":
		return RoleTool
	case "system":
		return RoleSystem
	case "toolResult":
		return RoleTool
	default:
		return RoleAssistant
	}
}

// Message is one entry in a conversation log.
//
// Two provenances exist. Local messages are synthesized by this
// client as optimistic echoes; their IDs carry a "web-" or "local-"
// prefix. Remote messages come from history fetches or server pushes
// and are authoritative: once a remote message with a given ID is in
// the log, it is canonical and later copies only ever replace it with
// equal-or-longer content.
type Message struct {
	// ID identifies the message. Empty for anonymous streaming
	// fragments; "web-"/"local-" prefixed for optimistic echoes.
	ID string `json:"id,omitempty"`

	// Role is the author classification.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is the origin time as reported by the producer.
	// Opaque; the log is ordered by merge order, not timestamp.
	Timestamp string `json:"timestamp,omitempty"`

	// Name optionally names the producer (a tool name, usually).
	Name string `json:"name,omitempty"`
}

// localEchoID reports whether id marks a client-synthesized message
// (or is absent entirely). Such entries may be replaced by the
// authoritative server copy during merge.
func localEchoID(id string) bool {
	return id == "" || strings.HasPrefix(id, "web-") || strings.HasPrefix(id, "local-")
}

// SendRequest is the RPC payload for one outgoing message.
type SendRequest struct {
	// SessionKey is the target conversation key.
	SessionKey string

	// Message is the user's text.
	Message string

	// Model optionally pins the model; empty lets the gateway choose.
	Model string

	// IdempotencyKey deduplicates the send on the gateway and ties
	// the optimistic local echo to the authoritative copy.
	IdempotencyKey string
}

// Service is the RPC surface the Session consumes. gateway.ChatAPI
// implements it.
type Service interface {
	// ListChatHistory fetches the authoritative message list for one
	// conversation key.
	ListChatHistory(ctx context.Context, conversationKey string) ([]Message, error)

	// SendChatMessage submits one user message.
	SendChatMessage(ctx context.Context, request SendRequest) error
}
