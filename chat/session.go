// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skiff-systems/skiff/lib/clock"
)

var (
	// ErrNoConversation is returned by Send when no conversation key
	// is active.
	ErrNoConversation = errors.New("chat: no active conversation")

	// ErrEmptyMessage is returned by Send when the message trims to
	// nothing.
	ErrEmptyMessage = errors.New("chat: empty message")
)

const (
	// defaultFlushInterval bounds how often buffered streaming
	// fragments merge into the log. One batch per interval no matter
	// how fast the gateway streams.
	defaultFlushInterval = 16 * time.Millisecond

	// defaultRefreshDebounce delays the history refresh that follows
	// a realtime merge, collapsing bursts into one fetch.
	defaultRefreshDebounce = 200 * time.Millisecond
)

// defaultFallbackDelays schedules the slow history refreshes that
// follow a send. They heal the log when the gateway's realtime events
// for the reply are lost.
var defaultFallbackDelays = []time.Duration{1400 * time.Millisecond, 4200 * time.Millisecond}

// SessionConfig configures a Session. Service is required; everything
// else has a usable default.
type SessionConfig struct {
	// Service issues the history and send RPCs. Required.
	Service Service

	// Clock drives the flush, debounce, and fallback timers.
	// Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives merge and refresh diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// OnChange is invoked, never under the session lock, after any
	// observable change to the log or status. Optional.
	OnChange func()

	// FlushInterval overrides the streaming coalescing interval.
	FlushInterval time.Duration

	// RefreshDebounce overrides the post-merge refresh debounce.
	RefreshDebounce time.Duration

	// FallbackRefreshDelays overrides the post-send refresh schedule.
	FallbackRefreshDelays []time.Duration
}

// Session owns the state of one active conversation: the ordered
// message log, the derived status, and the pending stream buffer.
// All methods are safe for concurrent use.
//
// Exactly one conversation key is active at a time. SetConversation
// switches it, synchronously dropping buffered fragments and pending
// timers so nothing from the old key leaks into the new one.
type Session struct {
	service        Service
	clock          clock.Clock
	logger         *slog.Logger
	onChange       func()
	flushInterval  time.Duration
	debounce       time.Duration
	fallbackDelays []time.Duration

	mu sync.Mutex

	// epoch increments on every conversation switch. Timer callbacks
	// and in-flight fetches capture it and discard their result when
	// it moved on.
	epoch int

	key      string
	messages []Message
	status   Status

	// pendingStream holds streaming fragments awaiting the next
	// flush tick.
	pendingStream []Message

	flushTimer     *clock.Timer
	refreshTimer   *clock.Timer
	fallbackTimers []*clock.Timer
}

// NewSession creates a session with no active conversation.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.RefreshDebounce <= 0 {
		cfg.RefreshDebounce = defaultRefreshDebounce
	}
	if cfg.FallbackRefreshDelays == nil {
		cfg.FallbackRefreshDelays = defaultFallbackDelays
	}
	return &Session{
		service:        cfg.Service,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		onChange:       cfg.OnChange,
		flushInterval:  cfg.FlushInterval,
		debounce:       cfg.RefreshDebounce,
		fallbackDelays: cfg.FallbackRefreshDelays,
		status:         idleStatus(cfg.Clock.Now()),
	}
}

// SetConversation switches the active conversation key. The log,
// status, and stream buffer reset; every pending timer is cancelled.
// Setting the already-active key is a no-op.
func (s *Session) SetConversation(key string) {
	s.mu.Lock()
	if key == s.key {
		s.mu.Unlock()
		return
	}
	s.epoch++
	s.key = key
	s.messages = nil
	s.pendingStream = nil
	s.status = idleStatus(s.clock.Now())
	s.cancelTimersLocked()
	s.mu.Unlock()

	s.notify()
}

// ConversationKey returns the active conversation key, or "".
func (s *Session) ConversationKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Messages returns a copy of the current conversation log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Status returns the current derived agent status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HandleEvent feeds one gateway event into the session. The payload
// is decoded tolerantly; undecodable or irrelevant events degrade to
// no-ops. Safe to call from the transport's read goroutine.
func (s *Session) HandleEvent(name string, payload json.RawMessage) {
	var decoded any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			s.logger.Debug("discarding undecodable event payload", "event", name, "error", err)
			return
		}
	}
	object, _ := decoded.(map[string]any)

	s.mu.Lock()
	changed := false

	next, moved := reduceStatus(s.status, s.key, name, object, s.clock.Now())
	if moved {
		s.status = next
		changed = true
	}

	if s.key != "" && isChatEvent(name) {
		if key := conversationKeyOf(object); key == "" || key == s.key {
			if candidates := candidateMessages(decoded); len(candidates) > 0 {
				if object != nil && firstString(object, []string{"state"}) == "delta" {
					s.pendingStream = append(s.pendingStream, candidates...)
					s.scheduleFlushLocked()
				} else {
					s.messages = mergeAll(s.messages, candidates, false)
					s.scheduleRefreshLocked()
					changed = true
				}
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// isChatEvent reports whether the event may carry conversation
// messages.
func isChatEvent(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	return name == "chat" || strings.HasPrefix(name, "chat.")
}

// scheduleFlushLocked arms the flush timer if it is not already
// pending. Fragments queue until it fires; arming is schedule-once,
// not reset, so a fast stream cannot starve the flush.
func (s *Session) scheduleFlushLocked() {
	if s.flushTimer != nil {
		return
	}
	epoch := s.epoch
	s.flushTimer = s.clock.AfterFunc(s.flushInterval, func() {
		s.flushPending(epoch)
	})
}

// flushPending merges the buffered streaming fragments as one batch.
func (s *Session) flushPending(epoch int) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.flushTimer = nil
	batch := s.pendingStream
	s.pendingStream = nil
	if len(batch) == 0 {
		s.mu.Unlock()
		return
	}
	s.messages = mergeAll(s.messages, batch, true)
	s.scheduleRefreshLocked()
	s.mu.Unlock()

	s.notify()
}

// scheduleRefreshLocked arms the debounced history refresh if one is
// not already pending.
func (s *Session) scheduleRefreshLocked() {
	if s.refreshTimer != nil {
		return
	}
	epoch := s.epoch
	s.refreshTimer = s.clock.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if epoch == s.epoch {
			s.refreshTimer = nil
		}
		s.mu.Unlock()
		s.refresh(context.Background(), epoch)
	})
}

// ApplyHistory merges an authoritative history snapshot for
// conversationKey into the log. A snapshot for a key that is not the
// active one is discarded, so a fetch racing a conversation switch
// cannot pollute the new log. Entries already present by ID are
// updated in place; optimistic echoes are adopted; nothing is removed.
func (s *Session) ApplyHistory(conversationKey string, messages []Message) {
	s.mu.Lock()
	if conversationKey != s.key {
		s.mu.Unlock()
		return
	}
	s.messages = mergeAll(s.messages, messages, false)
	s.mu.Unlock()

	s.notify()
}

// RefreshHistory fetches the authoritative history for the active
// conversation and merges it in. The result is discarded when the
// conversation switched while the fetch was in flight.
func (s *Session) RefreshHistory(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.refresh(ctx, epoch)
}

func (s *Session) refresh(ctx context.Context, epoch int) error {
	s.mu.Lock()
	key := s.key
	if key == "" || epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	history, err := s.service.ListChatHistory(ctx, key)
	if err != nil {
		s.logger.Warn("history refresh failed", "conversation", key, "error", err)
		return fmt.Errorf("chat: refreshing history: %w", err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	s.messages = mergeAll(s.messages, history, false)
	s.cancelFallbacksLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// Send submits one user message through the optimistic pipeline: a
// local echo appears in the log immediately, the RPC carries a "web-"
// idempotency key matching the echo's ID, and a failed send rolls the
// echo back and surfaces the error through the status.
//
// The idempotency key also becomes the status RunID, correlating the
// run's events to this send. Completion handling is gated on it: a
// newer send, a termination event, or a conversation switch moves the
// run on, and this send's outcome then leaves the status alone.
func (s *Session) Send(ctx context.Context, content, model string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	key := s.key
	if key == "" {
		s.mu.Unlock()
		return ErrNoConversation
	}

	now := s.clock.Now()
	idempotencyKey := fmt.Sprintf("web-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
	echo := Message{
		ID:        idempotencyKey,
		Role:      RoleUser,
		Content:   content,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
	s.messages = append(s.messages, echo)
	s.status, _ = advance(s.status, PhaseSending, "", true, now)
	s.status.RunID = idempotencyKey

	s.scheduleFallbacksLocked(s.epoch)
	s.mu.Unlock()

	s.notify()

	err := s.service.SendChatMessage(ctx, SendRequest{
		SessionKey:     key,
		Message:        content,
		Model:          model,
		IdempotencyKey: idempotencyKey,
	})

	s.mu.Lock()
	changed := false
	if err != nil {
		// The echo's ID is unique to this send, so removal is safe even
		// after a newer send or a key switch (it simply finds nothing).
		if removed := removeMessage(s.messages, idempotencyKey); removed != nil {
			s.messages = removed
			changed = true
		}
		if s.status.RunID == idempotencyKey {
			s.status, _ = advance(s.status, PhaseError, err.Error(), true, s.clock.Now())
			changed = true
		}
	} else if s.status.Phase == PhaseSending && s.status.RunID == idempotencyKey {
		// Events for the reply may have already advanced the status;
		// only a still-pending send moves to waiting.
		s.status, _ = advance(s.status, PhaseWaiting, "", false, s.clock.Now())
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	if err != nil {
		return fmt.Errorf("chat: sending message: %w", err)
	}
	return nil
}

// removeMessage returns the log without the entry carrying id, or nil
// when no entry matched.
func removeMessage(log []Message, id string) []Message {
	for i := range log {
		if log[i].ID == id {
			return append(log[:i:i], log[i+1:]...)
		}
	}
	return nil
}

// scheduleFallbacksLocked arms the post-send fallback refreshes,
// replacing any previous schedule. Each fires a full history refresh;
// the first successful refresh cancels the rest.
func (s *Session) scheduleFallbacksLocked(epoch int) {
	s.cancelFallbacksLocked()
	for _, delay := range s.fallbackDelays {
		timer := s.clock.AfterFunc(delay, func() {
			s.refresh(context.Background(), epoch)
		})
		s.fallbackTimers = append(s.fallbackTimers, timer)
	}
}

func (s *Session) cancelFallbacksLocked() {
	for _, timer := range s.fallbackTimers {
		timer.Stop()
	}
	s.fallbackTimers = nil
}

func (s *Session) cancelTimersLocked() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.cancelFallbacksLocked()
}

// notify invokes the change callback outside the session lock.
func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
