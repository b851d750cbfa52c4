// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Caller issues correlated RPC calls over a Transport. Each call gets
// a fresh frame ID and waits for the matching response; concurrent
// calls multiplex freely over the one socket.
//
// Calls in flight when the connection drops fail with a
// *GatewayError carrying ErrCodeDisconnected. They are never
// replayed, since the gateway may or may not have processed them.
type Caller struct {
	transport *Transport
}

// NewCaller creates a Caller bound to the given transport.
func NewCaller(transport *Transport) *Caller {
	return &Caller{transport: transport}
}

// Call invokes method with params and decodes the response payload
// into result. A nil params sends no params field; a nil result
// discards the payload. Cancellation of ctx abandons the call (the
// response, if it ever arrives, is dropped).
func (c *Caller) Call(ctx context.Context, method string, params any, result any) error {
	var encoded json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("gateway: marshaling %s params: %w", method, err)
		}
		encoded = data
	}

	payload, err := c.transport.roundTrip(ctx, method, encoded)
	if err != nil {
		return err
	}

	if result == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, result); err != nil {
		return fmt.Errorf("gateway: decoding %s response: %w", method, err)
	}
	return nil
}
