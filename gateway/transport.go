// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/skiff-systems/skiff/lib/clock"
	"github.com/skiff-systems/skiff/lib/version"
)

// State is the transport-level connection state. The Supervisor
// mirrors these values into its own state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Hooks receives transport lifecycle notifications. All callbacks are
// optional and are invoked from the transport's goroutines; they must
// not block.
type Hooks struct {
	// StateChange fires on every state transition.
	StateChange func(State)

	// Connected fires after a successful handshake with the decoded
	// connect response (negotiated protocol, advertised features).
	Connected func(ConnectedInfo)

	// Reconnecting fires before each redial attempt with the attempt
	// count since the connection was last up.
	Reconnecting func(attempt int)

	// Disconnected fires when an established connection drops, with
	// the WebSocket close code and reason when known.
	Disconnected func(code int, reason string)

	// Error fires on transient failures (dial errors, malformed
	// frames) that the transport will recover from on its own.
	Error func(message string)

	// Failed fires when the transport gives up permanently (auth
	// rejection, protocol mismatch). No further redials happen until
	// the next Connect.
	Failed func(reason string)
}

// TransportConfig configures a Transport. The zero value is usable;
// all fields have defaults.
type TransportConfig struct {
	// ClientID identifies this client to the gateway during the
	// connect handshake. Default: "skiff".
	ClientID string

	// ClientMode is the client kind reported in the handshake.
	// Default: "cli".
	ClientMode string

	// HandshakeTimeout bounds the dial plus connect exchange.
	// Default: 10s.
	HandshakeTimeout time.Duration

	// ReconnectInterval is the initial redial backoff, doubled per
	// failed attempt. Default: 1s.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the backoff. Default: 30s.
	MaxReconnectInterval time.Duration

	// PongWait is how long a connection may go without a pong before
	// the read pump declares it dead. Pings go out at 9/10 of this
	// interval. Default: 60s.
	PongWait time.Duration

	// MaxMessageSize limits inbound frames. Default: 512KB.
	MaxMessageSize int64

	// Clock drives the backoff and ping timers. Default: clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

func (c *TransportConfig) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "skiff"
	}
	if c.ClientMode == "" {
		c.ClientMode = "cli"
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = time.Second
	}
	if c.MaxReconnectInterval == 0 {
		c.MaxReconnectInterval = 30 * time.Second
	}
	if c.PongWait == 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 512 * 1024
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
}

// minProtocol and maxProtocol bound the gateway protocol versions this
// client speaks.
const (
	minProtocol = 1
	maxProtocol = 3
)

// Transport owns one persistent WebSocket connection to the gateway.
// It dials, handshakes, pumps frames, and redials with capped
// exponential backoff. Responses are routed to pending RPC calls;
// events are fanned out to subscribers.
//
// A Transport is safe for concurrent use. Connect and Disconnect may
// be called repeatedly; each Connect supersedes any prior connection.
type Transport struct {
	cfg   TransportConfig
	hooks Hooks

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	generation  int
	pending     map[string]chan frame
	subscribers map[int]subscription
	nextSubID   int
}

type subscription struct {
	event   string // "" matches all events
	handler func(Event)
}

// NewTransport creates a Transport. Bind hooks with Bind before
// calling Connect.
func NewTransport(cfg TransportConfig) *Transport {
	cfg.applyDefaults()
	return &Transport{
		cfg:         cfg,
		state:       StateDisconnected,
		pending:     make(map[string]chan frame),
		subscribers: make(map[int]subscription),
	}
}

func (t *Transport) logger() *slog.Logger {
	if t.cfg.Logger != nil {
		return t.cfg.Logger
	}
	return slog.Default()
}

// Bind installs the lifecycle hooks. Must be called before Connect;
// later calls replace the previous hooks.
func (t *Transport) Bind(hooks Hooks) {
	t.mu.Lock()
	t.hooks = hooks
	t.mu.Unlock()
}

// State returns the current transport state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// On registers a handler for server-pushed events. An empty event name
// matches every event. The returned function cancels the registration.
func (t *Transport) On(event string, handler func(Event)) func() {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = subscription{event: event, handler: handler}
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

// Connect starts the connection loop toward url, authenticating with
// authToken (empty means no auth). It returns immediately; progress is
// reported through the bound Hooks. A Connect while a previous loop is
// running supersedes it.
func (t *Transport) Connect(url, authToken string) {
	t.mu.Lock()
	t.generation++
	generation := t.generation
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.state = StateConnecting
	hook := t.hooks.StateChange
	t.mu.Unlock()

	if hook != nil {
		hook(StateConnecting)
	}
	go t.run(generation, url, authToken)
}

// Disconnect tears down the connection and stops the reconnect loop.
// Pending RPC calls fail with ErrCodeDisconnected.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.generation++
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	alreadyDown := t.state == StateDisconnected
	t.state = StateDisconnected
	hook := t.hooks.StateChange
	t.mu.Unlock()

	t.failPending("client disconnect")
	if hook != nil && !alreadyDown {
		hook(StateDisconnected)
	}
}

// stale reports whether generation has been superseded by a newer
// Connect or a Disconnect.
func (t *Transport) stale(generation int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation != generation
}

// run is the connection loop: dial, handshake, pump, redial. It exits
// when superseded or on an unrecoverable handshake rejection.
func (t *Transport) run(generation int, url, authToken string) {
	backoff := t.cfg.ReconnectInterval
	attempt := 0

	for {
		conn, info, err := t.dial(url, authToken)
		if t.stale(generation) {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			if unrecoverable(err) {
				t.logger().Error("gateway handshake rejected", "error", err)
				t.setState(generation, StateFailed)
				t.emitFailed(err.Error())
				return
			}
			t.logger().Warn("gateway connection attempt failed", "error", err, "backoff", backoff)
			t.emitError(err.Error())
			attempt++
			t.setState(generation, StateReconnecting)
			t.emitReconnecting(attempt)
			if !t.wait(generation, backoff) {
				return
			}
			backoff = nextBackoff(backoff, t.cfg.MaxReconnectInterval)
			continue
		}

		t.mu.Lock()
		if t.generation != generation {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.conn = conn
		t.mu.Unlock()

		t.logger().Info("gateway connected", "url", url, "protocol", info.Protocol)
		t.setState(generation, StateConnected)
		t.emitConnected(info)
		backoff = t.cfg.ReconnectInterval
		attempt = 0

		code, reason := t.readPump(generation, conn)
		t.failPending(reason)
		if t.stale(generation) {
			return
		}

		t.logger().Warn("gateway connection lost", "code", code, "reason", reason)
		t.emitDisconnected(code, reason)
		attempt++
		t.setState(generation, StateReconnecting)
		t.emitReconnecting(attempt)
		if !t.wait(generation, backoff) {
			return
		}
		backoff = nextBackoff(backoff, t.cfg.MaxReconnectInterval)
	}
}

// wait sleeps for the backoff duration, returning false if the
// generation was superseded while waiting.
func (t *Transport) wait(generation int, backoff time.Duration) bool {
	<-t.cfg.Clock.After(backoff)
	return !t.stale(generation)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// unrecoverable reports whether a handshake error should stop the
// reconnect loop: the gateway understood us and said no.
func unrecoverable(err error) bool {
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		return false
	}
	return gatewayErr.Code == ErrCodeAuth || gatewayErr.Code == ErrCodeProtocol
}

// dial establishes the socket and performs the connect handshake.
func (t *Transport) dial(url, authToken string) (*websocket.Conn, ConnectedInfo, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, ConnectedInfo{}, fmt.Errorf("dialing %s: %w", url, err)
	}

	info, err := t.handshake(conn, authToken)
	if err != nil {
		conn.Close()
		return nil, ConnectedInfo{}, err
	}
	return conn, info, nil
}

// handshake sends the connect request and waits for its response.
// Events arriving before the response (connect.challenge and friends)
// are skipped; the gateway treats the connect request itself as the
// challenge answer.
func (t *Transport) handshake(conn *websocket.Conn, authToken string) (ConnectedInfo, error) {
	params := connectParams{
		MinProtocol: minProtocol,
		MaxProtocol: maxProtocol,
		Client: connectClient{
			ID:       t.cfg.ClientID,
			Version:  "skiff/" + version.Version,
			Platform: runtime.GOOS,
			Mode:     t.cfg.ClientMode,
		},
	}
	if authToken != "" {
		params.Auth = &connectAuth{Token: authToken}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return ConnectedInfo{}, fmt.Errorf("marshaling connect params: %w", err)
	}

	requestID := uuid.NewString()
	request := frame{Type: "req", ID: requestID, Method: "connect", Params: paramsJSON}

	deadline := time.Now().Add(t.cfg.HandshakeTimeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	defer conn.SetWriteDeadline(time.Time{})

	if err := conn.WriteJSON(request); err != nil {
		return ConnectedInfo{}, fmt.Errorf("sending connect request: %w", err)
	}

	for {
		var response frame
		if err := conn.ReadJSON(&response); err != nil {
			return ConnectedInfo{}, fmt.Errorf("reading connect response: %w", err)
		}
		if response.Type != "res" || response.ID != requestID {
			continue
		}
		if response.Error != nil {
			return ConnectedInfo{}, response.Error
		}
		if response.OK != nil && !*response.OK {
			return ConnectedInfo{}, &GatewayError{Code: ErrCodeInternal, Message: "connect rejected"}
		}
		var info ConnectedInfo
		if len(response.Payload) > 0 {
			if err := json.Unmarshal(response.Payload, &info); err != nil {
				return ConnectedInfo{}, fmt.Errorf("decoding connect payload: %w", err)
			}
		}
		return info, nil
	}
}

// readPump reads frames until the connection dies, keeping the
// liveness deadline fresh via ping/pong. Returns the close code and
// reason for the terminating error.
func (t *Transport) readPump(generation int, conn *websocket.Conn) (int, string) {
	conn.SetReadLimit(t.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go t.pingLoop(conn, pingDone)

	for {
		var received frame
		if err := conn.ReadJSON(&received); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return closeErr.Code, closeErr.Text
			}
			var jsonErr *json.SyntaxError
			if errors.As(err, &jsonErr) {
				// A malformed frame is not fatal on its own, but
				// ReadJSON has consumed an unknown amount of the
				// stream; treat the connection as dead.
				return websocket.CloseInvalidFramePayloadData, "malformed frame"
			}
			return websocket.CloseAbnormalClosure, err.Error()
		}
		t.dispatch(received)
	}
}

// pingLoop sends pings at 9/10 of the pong window until done closes.
// WriteControl is safe concurrently with WriteJSON.
func (t *Transport) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := t.cfg.Clock.NewTicker(t.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame: responses to their pending call,
// events to subscribers.
func (t *Transport) dispatch(received frame) {
	switch received.Type {
	case "res":
		t.mu.Lock()
		waiter, ok := t.pending[received.ID]
		if ok {
			delete(t.pending, received.ID)
		}
		t.mu.Unlock()
		if ok {
			waiter <- received
		}
	case "event":
		t.mu.Lock()
		handlers := make([]func(Event), 0, len(t.subscribers))
		for _, sub := range t.subscribers {
			if sub.event == "" || sub.event == received.Event {
				handlers = append(handlers, sub.handler)
			}
		}
		t.mu.Unlock()
		event := Event{Name: received.Event, Payload: received.Payload}
		for _, handler := range handlers {
			handler(event)
		}
	}
}

// roundTrip sends one request frame and waits for its response.
func (t *Transport) roundTrip(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	t.mu.Lock()
	if t.conn == nil || t.state != StateConnected {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	requestID := uuid.NewString()
	waiter := make(chan frame, 1)
	t.pending[requestID] = waiter
	err := t.conn.WriteJSON(frame{Type: "req", ID: requestID, Method: method, Params: params})
	t.mu.Unlock()

	if err != nil {
		t.mu.Lock()
		delete(t.pending, requestID)
		t.mu.Unlock()
		return nil, fmt.Errorf("sending %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, requestID)
		t.mu.Unlock()
		return nil, ctx.Err()
	case response := <-waiter:
		if response.Error != nil {
			return nil, response.Error
		}
		if response.OK != nil && !*response.OK {
			return nil, &GatewayError{Code: ErrCodeInternal, Message: method + " failed"}
		}
		return response.Payload, nil
	}
}

// failPending fails every in-flight call with a synthesized
// disconnect error. Calls are not replayed across reconnects.
func (t *Transport) failPending(reason string) {
	if reason == "" {
		reason = "connection lost"
	}
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]chan frame)
	t.mu.Unlock()
	for id, waiter := range pending {
		waiter <- frame{
			Type:  "res",
			ID:    id,
			Error: &GatewayError{Code: ErrCodeDisconnected, Message: reason},
		}
	}
}

// setState transitions the transport state and fires the StateChange
// hook, unless the generation has been superseded.
func (t *Transport) setState(generation int, state State) {
	t.mu.Lock()
	if t.generation != generation || t.state == state {
		t.mu.Unlock()
		return
	}
	t.state = state
	hook := t.hooks.StateChange
	t.mu.Unlock()
	if hook != nil {
		hook(state)
	}
}

func (t *Transport) emitConnected(info ConnectedInfo) {
	t.mu.Lock()
	hook := t.hooks.Connected
	t.mu.Unlock()
	if hook != nil {
		hook(info)
	}
}

func (t *Transport) emitReconnecting(attempt int) {
	t.mu.Lock()
	hook := t.hooks.Reconnecting
	t.mu.Unlock()
	if hook != nil {
		hook(attempt)
	}
}

func (t *Transport) emitDisconnected(code int, reason string) {
	t.mu.Lock()
	hook := t.hooks.Disconnected
	t.mu.Unlock()
	if hook != nil {
		hook(code, reason)
	}
}

func (t *Transport) emitError(message string) {
	t.mu.Lock()
	hook := t.hooks.Error
	t.mu.Unlock()
	if hook != nil {
		hook(message)
	}
}

func (t *Transport) emitFailed(reason string) {
	t.mu.Lock()
	hook := t.hooks.Failed
	t.mu.Unlock()
	if hook != nil {
		hook(reason)
	}
}
