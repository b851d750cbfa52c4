// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "strings"

// Gateway payload shapes are deliberately loose and evolve between
// versions. Extraction is best-effort and table-driven: ordered
// field-name fallbacks, no errors, unknown shapes yield nothing.

// collectionFields are the object fields that may hold an array of
// message-like values, in preference order.
var collectionFields = []string{"messages", "items", "transcript", "history"}

// singularFields are the object fields that may hold one message-like
// value.
var singularFields = []string{"message", "item"}

// messageMarkerFields make an object message-like when any is present.
var messageMarkerFields = []string{"role", "type", "content", "text", "message", "output", "delta"}

// textFields are searched in order when extracting content from a
// message-like object. "content" is preferred; the rest are fallbacks
// seen across gateway versions.
var textFields = []string{"content", "text", "message", "output", "delta", "payload", "input"}

// keyFields are the payload fields that may carry the conversation
// key, in preference order.
var keyFields = []string{"sessionKey", "session_key", "sessionId", "session_id", "conversationId", "conversation_id", "channel", "key"}

// runIDFields are the payload fields that may carry the run
// identifier correlating events to a send.
var runIDFields = []string{"runId", "run_id"}

// conversationKeyOf returns the conversation key embedded in a
// payload, or "" when none is present.
func conversationKeyOf(payload any) string {
	object, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	return firstString(object, keyFields)
}

// runIDOf returns the run identifier embedded in a payload, or "".
func runIDOf(payload any) string {
	object, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	return firstString(object, runIDFields)
}

// firstString returns the first non-empty string value among the
// named fields.
func firstString(object map[string]any, fields []string) string {
	for _, field := range fields {
		if value, ok := object[field].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// candidateMessages extracts zero or more messages from an arbitrary
// payload. Tolerated shapes: a bare array of message-like objects, an
// object with a collection field, an object with a singular message
// field, or an object that is itself message-like. Candidates with
// empty trimmed content are discarded; they must never reach the
// merge engine.
func candidateMessages(payload any) []Message {
	switch value := payload.(type) {
	case []any:
		var candidates []Message
		for _, element := range value {
			if message, ok := toMessage(element); ok {
				candidates = append(candidates, message)
			}
		}
		return candidates

	case map[string]any:
		for _, field := range collectionFields {
			array, ok := value[field].([]any)
			if !ok {
				continue
			}
			var candidates []Message
			for _, element := range array {
				if message, ok := toMessage(element); ok {
					candidates = append(candidates, message)
				}
			}
			return candidates
		}
		for _, field := range singularFields {
			embedded, ok := value[field].(map[string]any)
			if !ok {
				continue
			}
			if message, ok := toMessage(embedded); ok {
				return []Message{message}
			}
			return nil
		}
		if message, ok := toMessage(value); ok {
			return []Message{message}
		}
	}
	return nil
}

// toMessage converts one message-like value into a Message. Returns
// false for non-objects, objects without any message marker field,
// and objects whose extracted content trims to empty.
func toMessage(value any) (Message, bool) {
	object, ok := value.(map[string]any)
	if !ok {
		return Message{}, false
	}

	marked := false
	for _, field := range messageMarkerFields {
		if _, present := object[field]; present {
			marked = true
			break
		}
	}
	if !marked {
		return Message{}, false
	}

	content := extractText(object)
	if strings.TrimSpace(content) == "" {
		return Message{}, false
	}

	role, _ := object["role"].(string)
	return Message{
		ID:        firstString(object, []string{"id"}),
		Role:      normalizeRole(role),
		Content:   content,
		Timestamp: firstString(object, []string{"timestamp"}),
		Name:      firstString(object, []string{"name"}),
	}, true
}

// extractText pulls display text out of an arbitrary value. Strings
// pass through. Objects are searched along textFields, recursing into
// whatever the first present field holds. Arrays join the non-empty
// text of their elements with newlines. Anything else yields "".
func extractText(value any) string {
	switch typed := value.(type) {
	case string:
		return typed

	case map[string]any:
		for _, field := range textFields {
			embedded, present := typed[field]
			if !present || embedded == nil {
				continue
			}
			if text := extractText(embedded); text != "" {
				return text
			}
		}
		return ""

	case []any:
		var parts []string
		for _, element := range typed {
			if text := extractText(element); strings.TrimSpace(text) != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
