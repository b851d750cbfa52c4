// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import "encoding/json"

// frame is one wire message. Every WebSocket text message is exactly
// one frame; the Type field selects which of the remaining fields are
// meaningful.
type frame struct {
	Type    string          `json:"type"`              // "req", "res", "event"
	ID      string          `json:"id,omitempty"`      // request/response correlation
	Method  string          `json:"method,omitempty"`  // request method
	Params  json.RawMessage `json:"params,omitempty"`  // request params
	OK      *bool           `json:"ok,omitempty"`      // response success
	Payload json.RawMessage `json:"payload,omitempty"` // response/event payload
	Event   string          `json:"event,omitempty"`   // event name
	Error   *GatewayError   `json:"error,omitempty"`   // response error
}

// connectParams is the params object of the "connect" handshake request.
type connectParams struct {
	MinProtocol int           `json:"minProtocol"`
	MaxProtocol int           `json:"maxProtocol"`
	Client      connectClient `json:"client"`
	Auth        *connectAuth  `json:"auth,omitempty"`
}

type connectClient struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

type connectAuth struct {
	Token string `json:"token,omitempty"`
}

// Features is the capability block of the connect response.
type Features struct {
	// Methods lists the RPC methods this gateway serves. An absent or
	// empty list means the gateway did not advertise capabilities;
	// callers must treat that as unknown, not as "nothing supported".
	Methods []string `json:"methods,omitempty"`
}

// ConnectedInfo is the decoded payload of a successful connect
// response, delivered to Hooks.Connected.
type ConnectedInfo struct {
	Protocol int       `json:"protocol,omitempty"`
	Features *Features `json:"features,omitempty"`
}

// Event is a server-pushed notification delivered to subscribers
// registered with Transport.On.
type Event struct {
	// Name is the event name from the wire frame (e.g. "chat",
	// "agent", "tick").
	Name string

	// Payload is the raw event payload. May be nil.
	Payload json.RawMessage
}
