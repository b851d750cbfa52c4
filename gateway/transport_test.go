// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testGateway runs a WebSocket server that hands each accepted
// connection to script. Connections are closed when the test ends.
type testGateway struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	connections int
}

func newTestGateway(t *testing.T, script func(conn *websocket.Conn, connection int)) *testGateway {
	t.Helper()
	gateway := &testGateway{t: t}
	upgrader := websocket.Upgrader{}
	gateway.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gateway.mu.Lock()
		gateway.connections++
		connection := gateway.connections
		gateway.mu.Unlock()
		defer conn.Close()
		script(conn, connection)
	}))
	t.Cleanup(gateway.server.Close)
	return gateway
}

func (g *testGateway) url() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func (g *testGateway) connectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connections
}

// acceptConnect consumes frames until the connect request arrives and
// answers it with the given method list. Returns the connect request.
func acceptConnect(t *testing.T, conn *websocket.Conn, methods ...string) frame {
	t.Helper()
	for {
		var request frame
		if err := conn.ReadJSON(&request); err != nil {
			t.Errorf("reading connect request: %v", err)
			return frame{}
		}
		if request.Type != "req" || request.Method != "connect" {
			continue
		}
		ok := true
		payload, err := json.Marshal(ConnectedInfo{
			Protocol: maxProtocol,
			Features: &Features{Methods: methods},
		})
		if err != nil {
			t.Errorf("marshaling connected payload: %v", err)
			return frame{}
		}
		response := frame{Type: "res", ID: request.ID, OK: &ok, Payload: payload}
		if err := conn.WriteJSON(response); err != nil {
			t.Errorf("writing connect response: %v", err)
		}
		return request
	}
}

func waitSignal[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case value := <-ch:
		return value
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func newTestTransport(hooks Hooks) *Transport {
	transport := NewTransport(TransportConfig{
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectInterval: 50 * time.Millisecond,
	})
	transport.Bind(hooks)
	return transport
}

func TestTransportHandshake(t *testing.T) {
	gateway := newTestGateway(t, func(conn *websocket.Conn, _ int) {
		request := acceptConnect(t, conn, "chat.send", "chat.history")

		var params connectParams
		if err := json.Unmarshal(request.Params, &params); err != nil {
			t.Errorf("decoding connect params: %v", err)
			return
		}
		if params.MinProtocol != minProtocol || params.MaxProtocol != maxProtocol {
			t.Errorf("protocol range = %d..%d, want %d..%d",
				params.MinProtocol, params.MaxProtocol, minProtocol, maxProtocol)
		}
		if params.Auth == nil || params.Auth.Token != "secret" {
			t.Errorf("auth not forwarded: %+v", params.Auth)
		}

		// Hold the connection open until the test finishes.
		conn.ReadMessage()
	})

	connected := make(chan ConnectedInfo, 1)
	transport := newTestTransport(Hooks{
		Connected: func(info ConnectedInfo) { connected <- info },
	})
	defer transport.Disconnect()

	transport.Connect(gateway.url(), "secret")

	info := waitSignal(t, connected, "connected hook")
	if info.Protocol != maxProtocol {
		t.Errorf("negotiated protocol = %d, want %d", info.Protocol, maxProtocol)
	}
	if info.Features == nil || len(info.Features.Methods) != 2 {
		t.Errorf("features = %+v, want two methods", info.Features)
	}
	if got := transport.State(); got != StateConnected {
		t.Errorf("State = %q, want connected", got)
	}
}

func TestTransportHandshakeSkipsEarlyEvents(t *testing.T) {
	gateway := newTestGateway(t, func(conn *websocket.Conn, _ int) {
		// The gateway may push events before answering connect.
		conn.WriteJSON(frame{Type: "event", Event: "connect.challenge"})
		acceptConnect(t, conn)
		conn.ReadMessage()
	})

	connected := make(chan ConnectedInfo, 1)
	transport := newTestTransport(Hooks{
		Connected: func(info ConnectedInfo) { connected <- info },
	})
	defer transport.Disconnect()

	transport.Connect(gateway.url(), "")
	waitSignal(t, connected, "connected hook")
}

func TestTransportAuthRejectionIsFatal(t *testing.T) {
	gateway := newTestGateway(t, func(conn *websocket.Conn, _ int) {
		var request frame
		if err := conn.ReadJSON(&request); err != nil {
			return
		}
		conn.WriteJSON(frame{
			Type:  "res",
			ID:    request.ID,
			Error: &GatewayError{Code: ErrCodeAuth, Message: "bad token"},
		})
	})

	failed := make(chan string, 1)
	transport := newTestTransport(Hooks{
		Failed: func(reason string) { failed <- reason },
	})
	defer transport.Disconnect()

	transport.Connect(gateway.url(), "wrong")

	reason := waitSignal(t, failed, "failed hook")
	if !strings.Contains(reason, "bad token") {
		t.Errorf("failure reason = %q, want the gateway message", reason)
	}
	if got := transport.State(); got != StateFailed {
		t.Errorf("State = %q, want failed", got)
	}

	// A fatal rejection must not trigger redials.
	time.Sleep(50 * time.Millisecond)
	if got := gateway.connectionCount(); got != 1 {
		t.Errorf("connection count = %d, want 1", got)
	}
}

func TestTransportReconnectsAfterDrop(t *testing.T) {
	gateway := newTestGateway(t, func(conn *websocket.Conn, connection int) {
		acceptConnect(t, conn)
		if connection == 1 {
			// Drop the first connection right after the handshake.
			return
		}
		conn.ReadMessage()
	})

	connected := make(chan ConnectedInfo, 2)
	reconnecting := make(chan int, 4)
	transport := newTestTransport(Hooks{
		Connected:    func(info ConnectedInfo) { connected <- info },
		Reconnecting: func(attempt int) { reconnecting <- attempt },
	})
	defer transport.Disconnect()

	transport.Connect(gateway.url(), "")

	waitSignal(t, connected, "first connect")
	if attempt := waitSignal(t, reconnecting, "reconnecting hook"); attempt != 1 {
		t.Errorf("attempt = %d, want 1", attempt)
	}
	waitSignal(t, connected, "reconnect")
	if got := transport.State(); got != StateConnected {
		t.Errorf("State = %q, want connected after redial", got)
	}
}

func TestTransportEventDispatch(t *testing.T) {
	sendEvents := make(chan struct{})
	gateway := newTestGateway(t, func(conn *websocket.Conn, _ int) {
		acceptConnect(t, conn)
		<-sendEvents
		conn.WriteJSON(frame{Type: "event", Event: "chat", Payload: json.RawMessage(`{"state":"delta"}`)})
		conn.WriteJSON(frame{Type: "event", Event: "presence", Payload: json.RawMessage(`{}`)})
		conn.ReadMessage()
	})

	connected := make(chan ConnectedInfo, 1)
	transport := newTestTransport(Hooks{
		Connected: func(info ConnectedInfo) { connected <- info },
	})
	defer transport.Disconnect()

	chatEvents := make(chan Event, 2)
	allEvents := make(chan Event, 4)
	cancelChat := transport.On("chat", func(event Event) { chatEvents <- event })
	transport.On("", func(event Event) { allEvents <- event })

	transport.Connect(gateway.url(), "")
	waitSignal(t, connected, "connected hook")
	close(sendEvents)

	event := waitSignal(t, chatEvents, "chat event")
	if event.Name != "chat" || !strings.Contains(string(event.Payload), "delta") {
		t.Errorf("unexpected chat event: %+v", event)
	}

	// The wildcard subscriber sees both events.
	first := waitSignal(t, allEvents, "first wildcard event")
	second := waitSignal(t, allEvents, "second wildcard event")
	if first.Name != "chat" || second.Name != "presence" {
		t.Errorf("wildcard events = %q, %q; want chat, presence", first.Name, second.Name)
	}

	// A cancelled subscription receives nothing further.
	cancelChat()
	select {
	case event := <-chatEvents:
		t.Errorf("cancelled subscription received %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTransportPendingCallsFailOnDrop(t *testing.T) {
	dropNow := make(chan struct{})
	gateway := newTestGateway(t, func(conn *websocket.Conn, connection int) {
		acceptConnect(t, conn)
		if connection == 1 {
			// Swallow the request, then drop the connection.
			conn.ReadMessage()
			close(dropNow)
			return
		}
		conn.ReadMessage()
	})

	connected := make(chan ConnectedInfo, 2)
	transport := newTestTransport(Hooks{
		Connected: func(info ConnectedInfo) { connected <- info },
	})
	defer transport.Disconnect()

	transport.Connect(gateway.url(), "")
	waitSignal(t, connected, "connected hook")

	_, err := transport.roundTrip(t.Context(), "chat.send", nil)
	<-dropNow
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) || gatewayErr.Code != ErrCodeDisconnected {
		t.Fatalf("err = %v, want DISCONNECTED gateway error", err)
	}
}

func TestTransportRoundTripRequiresConnection(t *testing.T) {
	transport := newTestTransport(Hooks{})
	if _, err := transport.roundTrip(t.Context(), "chat.send", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{time.Second, 30 * time.Second, 2 * time.Second},
		{16 * time.Second, 30 * time.Second, 30 * time.Second},
		{30 * time.Second, 30 * time.Second, 30 * time.Second},
	}
	for _, test := range tests {
		if got := nextBackoff(test.current, test.max); got != test.want {
			t.Errorf("nextBackoff(%v, %v) = %v, want %v", test.current, test.max, got, test.want)
		}
	}
}

func TestUnrecoverable(t *testing.T) {
	if !unrecoverable(&GatewayError{Code: ErrCodeAuth}) {
		t.Error("auth rejection should be unrecoverable")
	}
	if !unrecoverable(&GatewayError{Code: ErrCodeProtocol}) {
		t.Error("protocol mismatch should be unrecoverable")
	}
	if unrecoverable(&GatewayError{Code: ErrCodeInternal}) {
		t.Error("internal errors should be retried")
	}
	if unrecoverable(errors.New("dial tcp: connection refused")) {
		t.Error("plain dial errors should be retried")
	}
}
