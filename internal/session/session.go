// Package session owns per-call IVR navigation state and the decision engine
// that advances it.
package session

import (
	"sync"
	"time"
)

// Action is the next step the caller should take.
type Action string

const (
	ActionSuccess    Action = "success"
	ActionPressDigit Action = "press_digit"
	ActionRetryDigit Action = "retry_digit"
	ActionWait       Action = "wait"
	ActionFail       Action = "fail"
)

// IsTerminal reports whether the action ends automated navigation.
func (a Action) IsTerminal() bool {
	return a == ActionSuccess || a == ActionFail
}

// History entry actions.
const (
	HistoryHumanDetected      = "human_detected"
	HistoryHoldDetected       = "hold_detected"
	HistoryRetryRequired      = "retry_required"
	HistoryMaxRetriesExceeded = "max_retries_exceeded"
	HistoryMaxLevelsExceeded  = "max_levels_exceeded"
	HistoryDigitPressed       = "digit_pressed"
)

// HistoryEntry is one diagnostic record. Decision logic never reads history.
type HistoryEntry struct {
	Level     int       `json:"level"`
	Action    string    `json:"action"`
	Digit     string    `json:"digit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the mutable state of one call. Fields are only touched while mu
// is held; the Store hands sessions out through Do.
type Session struct {
	mu sync.Mutex

	CallID           string
	StateID          string
	DigitSent        bool
	LastPressedDigit string
	RetryCount       int
	NavLevel         int
	History          []HistoryEntry
	LastActivity     time.Time
	CreatedAt        time.Time

	// FailureReason is set once a terminal fail was decided.
	FailureReason string

	// evicted is set by the sweep under mu; holders of a stale pointer must
	// look the call up again.
	evicted bool
}

func (s *Session) record(action, digit string, now time.Time) {
	s.History = append(s.History, HistoryEntry{
		Level:     s.NavLevel,
		Action:    action,
		Digit:     digit,
		Timestamp: now,
	})
}

// Snapshot is a read-only copy of a session for diagnostics.
type Snapshot struct {
	CallID           string         `json:"call_id"`
	StateID          string         `json:"state_id"`
	DigitSent        bool           `json:"digit_sent"`
	LastPressedDigit string         `json:"last_pressed_digit"`
	RetryCount       int            `json:"retry_count"`
	NavLevel         int            `json:"nav_level"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	History          []HistoryEntry `json:"history"`
	LastActivity     time.Time      `json:"last_activity"`
	CreatedAt        time.Time      `json:"created_at"`
}

// snapshot must be called with s.mu held.
func (s *Session) snapshot() Snapshot {
	history := make([]HistoryEntry, len(s.History))
	copy(history, s.History)
	return Snapshot{
		CallID:           s.CallID,
		StateID:          s.StateID,
		DigitSent:        s.DigitSent,
		LastPressedDigit: s.LastPressedDigit,
		RetryCount:       s.RetryCount,
		NavLevel:         s.NavLevel,
		FailureReason:    s.FailureReason,
		History:          history,
		LastActivity:     s.LastActivity,
		CreatedAt:        s.CreatedAt,
	}
}
