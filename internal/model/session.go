package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type TurnSource string

const (
	TurnSourceUser TurnSource = "user"
	TurnSourceBot  TurnSource = "bot"
)

// Turn is one exchanged message in a session's conversation log.
type Turn struct {
	Source  TurnSource      `json:"source"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one in-progress conversation with one user. At most one session
// exists per user id; it lives from the inbound event that starts a skill
// until the skill finishes (or the session is abandoned).
//
// Confirmed holds parsed parameter values keyed by parameter name;
// ConfirmedOrder preserves collection order. Pending is the queue of
// parameter names still to collect — its head is the active parameter.
type Session struct {
	UserID         string             `json:"user_id"`
	Skill          string             `json:"skill"`
	Intent         Intent             `json:"intent"`
	Thread         []Turn             `json:"thread"`
	Confirmed      map[string]any     `json:"confirmed"`
	ConfirmedOrder []string           `json:"confirmed_order"`
	Pending        []string           `json:"pending"`
	Prompts        map[string]Message `json:"prompts,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func NewSession(userID, skill string, intent Intent) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:    userID,
		Skill:     skill,
		Intent:    intent,
		Confirmed: make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Confirm records a parsed parameter value, preserving first-confirmation
// order. Re-confirming an existing name overwrites the value in place.
func (s *Session) Confirm(name string, value any) {
	if s.Confirmed == nil {
		s.Confirmed = make(map[string]any)
	}
	if _, exists := s.Confirmed[name]; !exists {
		s.ConfirmedOrder = append(s.ConfirmedOrder, name)
	}
	s.Confirmed[name] = value
}

func (s *Session) IsConfirmed(name string) bool {
	_, ok := s.Confirmed[name]
	return ok
}

// PushPending appends parameter names to the collection queue, skipping names
// already pending or already confirmed.
func (s *Session) PushPending(names ...string) {
	for _, name := range names {
		if s.IsConfirmed(name) || slices.Contains(s.Pending, name) {
			continue
		}
		s.Pending = append(s.Pending, name)
	}
}

// RemovePending drops a name from the queue wherever it sits.
func (s *Session) RemovePending(name string) {
	s.Pending = slices.DeleteFunc(s.Pending, func(n string) bool { return n == name })
}

// ActiveParameter returns the head of the pending queue.
func (s *Session) ActiveParameter() (string, bool) {
	if len(s.Pending) == 0 {
		return "", false
	}
	return s.Pending[0], true
}

// SetPrompt overrides the confirmation prompt for a parameter at runtime.
func (s *Session) SetPrompt(name string, msg Message) {
	if s.Prompts == nil {
		s.Prompts = make(map[string]Message)
	}
	s.Prompts[name] = msg
}

// AppendTurn records an exchanged message in the conversation log. Payloads
// that fail to serialize are recorded without a payload.
func (s *Session) AppendTurn(source TurnSource, msgType string, payload any) {
	turn := Turn{Source: source, Type: msgType}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			turn.Payload = data
		}
	}
	s.Thread = append(s.Thread, turn)
}

// ConfirmedAs decodes a confirmed value into T. Values round-trip through
// JSON in the session store, so a stored struct may come back as a generic
// map; re-marshalling recovers the typed form either way.
func ConfirmedAs[T any](s *Session, name string) (T, error) {
	var out T
	value, ok := s.Confirmed[name]
	if !ok {
		return out, fmt.Errorf("parameter %q not confirmed", name)
	}
	if typed, ok := value.(T); ok {
		return typed, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return out, fmt.Errorf("encoding confirmed %q: %w", name, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding confirmed %q: %w", name, err)
	}
	return out, nil
}
