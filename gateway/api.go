// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"

	"github.com/skiff-systems/skiff/chat"
)

// RPC method names for the chat surface.
const (
	MethodChatHistory = "chat.history"
	MethodChatSend    = "chat.send"
)

// ChatAPI is the typed chat call surface. It implements chat.Service:
// the chat session issues its history fetches and sends through it
// without knowing about frames or capabilities.
//
// Both calls are capability-gated: when the gateway advertised a
// method list that lacks the method, the call short-circuits with
// ErrNotSupported instead of being attempted. While capabilities are
// unknown the call proceeds optimistically.
type ChatAPI struct {
	caller     *Caller
	supervisor *Supervisor
}

// NewChatAPI creates the chat call surface.
func NewChatAPI(caller *Caller, supervisor *Supervisor) *ChatAPI {
	return &ChatAPI{caller: caller, supervisor: supervisor}
}

// gate returns ErrNotSupported when the method is advertised absent.
func (a *ChatAPI) gate(method string) error {
	if a.supervisor.CapabilitiesKnown() && !a.supervisor.SupportsAnyMethod([]string{method}) {
		return ErrNotSupported
	}
	return nil
}

type chatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
}

type chatHistoryResult struct {
	Messages []chat.Message `json:"messages"`
}

// ListChatHistory fetches the authoritative message history for one
// conversation key.
func (a *ChatAPI) ListChatHistory(ctx context.Context, conversationKey string) ([]chat.Message, error) {
	if err := a.gate(MethodChatHistory); err != nil {
		return nil, err
	}
	var result chatHistoryResult
	err := a.caller.Call(ctx, MethodChatHistory, chatHistoryParams{SessionKey: conversationKey}, &result)
	if err != nil {
		return nil, fmt.Errorf("listing chat history: %w", err)
	}
	return result.Messages, nil
}

type chatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// SendChatMessage submits one user message. The idempotency key lets
// the gateway deduplicate retried sends and lets the client reconcile
// its optimistic echo against the authoritative copy.
func (a *ChatAPI) SendChatMessage(ctx context.Context, request chat.SendRequest) error {
	if err := a.gate(MethodChatSend); err != nil {
		return err
	}
	params := chatSendParams{
		SessionKey:     request.SessionKey,
		Message:        request.Message,
		Model:          request.Model,
		IdempotencyKey: request.IdempotencyKey,
	}
	if err := a.caller.Call(ctx, MethodChatSend, params, nil); err != nil {
		return fmt.Errorf("sending chat message: %w", err)
	}
	return nil
}
