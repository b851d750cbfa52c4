// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"log/slog"
	"sync"
)

// Link is the transport surface the Supervisor consumes. *Transport
// implements it; tests substitute fakes.
type Link interface {
	Connect(url, authToken string)
	Disconnect()
	Bind(Hooks)
	On(event string, handler func(Event)) func()
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Transport is the underlying connection. Required.
	Transport Link

	// OnUpdate, when set, is called after every observable change
	// (state, capabilities, last error, attempt count) so UIs can
	// repaint. Called from transport goroutines; must not block.
	OnUpdate func()

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Supervisor owns the connection lifecycle view: the derived state
// machine, the capability set advertised by the gateway, the
// reconnect attempt counter, and a human-readable last error.
//
// It is the only component that mutates these values; everything else
// reads them. Safe for concurrent use.
type Supervisor struct {
	transport Link
	onUpdate  func()
	logger    *slog.Logger

	mu                sync.Mutex
	bound             bool
	state             State
	lastError         string
	reconnectAttempts int
	capabilities      map[string]struct{}
}

// NewSupervisor creates a Supervisor around the given transport.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		transport:    cfg.Transport,
		onUpdate:     cfg.OnUpdate,
		logger:       logger,
		state:        StateDisconnected,
		capabilities: make(map[string]struct{}),
	}
}

// Connect clears the last error, binds the transport hooks (exactly
// once; repeated Connects never double-bind), and starts the
// transport toward url.
func (s *Supervisor) Connect(url, authToken string) {
	s.mu.Lock()
	s.lastError = ""
	s.reconnectAttempts = 0
	if !s.bound {
		s.bound = true
		s.transport.Bind(Hooks{
			StateChange:  s.handleStateChange,
			Connected:    s.handleConnected,
			Reconnecting: s.handleReconnecting,
			Disconnected: s.handleDisconnected,
			Error:        s.handleError,
			Failed:       s.handleFailed,
		})
	}
	s.mu.Unlock()

	s.transport.Connect(url, authToken)
}

// Disconnect stops the transport and clears the capability set.
func (s *Supervisor) Disconnect() {
	s.transport.Disconnect()
	s.mu.Lock()
	s.capabilities = make(map[string]struct{})
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers a handler for server-pushed events, passing
// through to the transport's generic event channel. An empty event
// name matches every event. The returned function unsubscribes.
func (s *Supervisor) Subscribe(event string, handler func(Event)) func() {
	return s.transport.On(event, handler)
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent human-readable connection error,
// or "" when none has occurred since the last Connect.
func (s *Supervisor) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// ReconnectAttempts returns the redial attempts since the connection
// was last up. Reset by a fresh Connect and by a successful connect.
func (s *Supervisor) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempts
}

// CapabilitiesKnown reports whether the gateway has advertised a
// non-empty method list. While false, capability checks must stay
// optimistic: an empty set means "not populated yet", not
// "nothing supported".
func (s *Supervisor) CapabilitiesKnown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.capabilities) > 0
}

// SupportsAnyMethod reports whether the gateway supports at least one
// of the given methods. It returns false only when capabilities are
// known (non-empty) and none of the methods is present; with
// capabilities unknown it returns true. Callers needing to
// distinguish "unknown" from "supported" branch on CapabilitiesKnown.
func (s *Supervisor) SupportsAnyMethod(methods []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.capabilities) == 0 {
		return true
	}
	for _, method := range methods {
		if _, ok := s.capabilities[method]; ok {
			return true
		}
	}
	return false
}

func (s *Supervisor) handleStateChange(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify()
}

func (s *Supervisor) handleConnected(info ConnectedInfo) {
	s.mu.Lock()
	s.capabilities = make(map[string]struct{})
	if info.Features != nil {
		for _, method := range info.Features.Methods {
			s.capabilities[method] = struct{}{}
		}
	}
	s.reconnectAttempts = 0
	s.mu.Unlock()

	methodCount := 0
	if info.Features != nil {
		methodCount = len(info.Features.Methods)
	}
	s.logger.Info("gateway session established", "protocol", info.Protocol, "methods", methodCount)
	s.notify()
}

func (s *Supervisor) handleReconnecting(attempt int) {
	s.mu.Lock()
	s.reconnectAttempts = attempt
	s.mu.Unlock()
	s.notify()
}

func (s *Supervisor) handleDisconnected(code int, reason string) {
	s.mu.Lock()
	if s.state != StateDisconnected && s.state != StateFailed {
		s.lastError = describeClose(code, reason)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Supervisor) handleError(message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()
	s.notify()
}

func (s *Supervisor) handleFailed(reason string) {
	s.mu.Lock()
	s.lastError = reason
	s.mu.Unlock()
	s.notify()
}

func (s *Supervisor) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// describeClose renders a WebSocket close code and reason as a
// human-readable message for display.
func describeClose(code int, reason string) string {
	description := ""
	switch code {
	case 1000:
		description = "normal closure"
	case 1001:
		description = "gateway going away"
	case 1006:
		description = "connection lost"
	case 1008:
		description = "policy violation"
	case 1011:
		description = "gateway internal error"
	case 1012:
		description = "gateway restarting"
	default:
		description = fmt.Sprintf("closed with code %d", code)
	}
	if reason != "" {
		return fmt.Sprintf("%s: %s", description, reason)
	}
	return description
}
