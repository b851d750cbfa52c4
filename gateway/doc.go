// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the client side of the gateway WebSocket
// protocol: one persistent socket carrying correlated request/response
// frames and server-pushed events.
//
// The package provides three layers. [Transport] owns the socket: it
// dials, performs the connect handshake (protocol range, client
// identity, opaque auth token), runs the read pump, serializes writes,
// and redials with capped exponential backoff when the connection
// drops. Lifecycle is reported through [Hooks]; server events reach
// subscribers registered with Transport.On.
//
// [Caller] multiplexes RPC calls over a Transport: each call gets a
// fresh frame ID, a pending channel, and a typed decode of the
// response payload. Gateway-reported failures are returned as
// [*GatewayError] with the gateway's error code; [IsGatewayError]
// tests for a specific code.
//
// [Supervisor] tracks the derived connection state machine
// (disconnected, connecting, connected, reconnecting, failed), records
// the method capabilities advertised in the connect response, and
// synthesizes a human-readable last-error string from close
// codes. Capability checks distinguish "unknown" (nothing advertised
// yet, so callers stay optimistic) from "denied" (a non-empty list that
// lacks the method); see Supervisor.CapabilitiesKnown and
// Supervisor.SupportsAnyMethod.
//
// [ChatAPI] is the typed call surface the chat package consumes:
// history listing and message sending, capability-gated with
// [ErrNotSupported].
package gateway
