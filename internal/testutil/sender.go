package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/roach88/deckd/internal/profile"
)

// Target kinds recorded by RecordingSender.
const (
	TargetPlugin    = "plugin"
	TargetInspector = "inspector"
)

// ErrSendFailed is returned by RecordingSender for peers listed in Fail.
var ErrSendFailed = errors.New("send failed")

// Sent is one message captured by RecordingSender.
type Sent struct {
	Target string          `json:"target" yaml:"target"`
	To     string          `json:"to" yaml:"to"`
	Event  string          `json:"event" yaml:"event"`
	Body   json.RawMessage `json:"body" yaml:"-"`
}

// RecordingSender captures outbound messages instead of writing them to a
// websocket. Bodies are stored as canonical JSON.
//
// Implements engine.Sender.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Sent

	// Fail lists plugin UUIDs (or inspector contexts) whose sends fail.
	Fail map[string]bool
}

// NewRecordingSender creates an empty RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{Fail: map[string]bool{}}
}

// Send records a message for a plugin.
func (s *RecordingSender) Send(_ context.Context, plugin string, v any) error {
	return s.record(TargetPlugin, plugin, v)
}

// SendToInspector records a message for a property inspector.
func (s *RecordingSender) SendToInspector(_ context.Context, actionContext string, v any) error {
	return s.record(TargetInspector, actionContext, v)
}

func (s *RecordingSender) record(target, to string, v any) error {
	body, err := profile.MarshalCanonical(v)
	if err != nil {
		return err
	}
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail[to] {
		return ErrSendFailed
	}
	s.sent = append(s.sent, Sent{Target: target, To: to, Event: head.Event, Body: body})
	return nil
}

// Sent returns every recorded message in send order.
func (s *RecordingSender) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, len(s.sent))
	copy(out, s.sent)
	return out
}

// Events returns the event names of the recorded messages in order.
func (s *RecordingSender) Events() []string {
	sent := s.Sent()
	out := make([]string, len(sent))
	for i, m := range sent {
		out[i] = m.Event
	}
	return out
}

// Reset forgets every recorded message.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
