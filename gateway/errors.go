// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"
)

// GatewayError represents a structured error response from the gateway.
// Callers can use errors.As to extract the structured information:
//
//	var gatewayErr *GatewayError
//	if errors.As(err, &gatewayErr) {
//	    if gatewayErr.Code == ErrCodeAuth { ... }
//	}
type GatewayError struct {
	// Code is the gateway error code (e.g. "AUTH_FAILED").
	Code string `json:"code"`
	// Message is the human-readable description from the gateway.
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}

// Error codes the gateway reports in response frames, plus the codes
// this client synthesizes locally.
const (
	ErrCodeAuth           = "AUTH_FAILED"
	ErrCodeProtocol       = "PROTOCOL_MISMATCH"
	ErrCodeMethodNotFound = "METHOD_NOT_FOUND"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodeInternal       = "INTERNAL"

	// ErrCodeDisconnected is synthesized locally when the connection
	// drops while calls are pending. Those calls are not replayed.
	ErrCodeDisconnected = "DISCONNECTED"
)

// IsGatewayError checks whether err is a *GatewayError with the given code.
func IsGatewayError(err error, code string) bool {
	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Code == code
	}
	return false
}

// ErrNotSupported is returned by capability-gated calls when the
// gateway advertised a method list that lacks the required method.
// It is never returned while capabilities are unknown: an empty
// capability set means "not populated yet" and calls proceed
// optimistically.
var ErrNotSupported = errors.New("gateway: method not supported by this gateway")

// ErrNotConnected is returned when a call is attempted with no
// established connection.
var ErrNotConnected = errors.New("gateway: not connected")
