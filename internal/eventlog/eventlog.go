package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of IVR event
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventSessionExpired EventType = "session_expired"
	EventDecision       EventType = "decision"
	EventHumanReached   EventType = "human_reached"
	EventNavigationFail EventType = "navigation_failed"
)

// Logger provides async event logging to the database
type Logger struct {
	db      *pgxpool.Pool
	onError func(error)
}

// New creates a new event logger. A nil pool turns every call into a no-op.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// OnError registers a callback for failed async writes.
func (l *Logger) OnError(fn func(error)) {
	l.onError = fn
}

// Enabled reports whether events reach a database.
func (l *Logger) Enabled() bool {
	return l != nil && l.db != nil
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, callID string, eventType EventType, data map[string]any) error {
	if !l.Enabled() || callID == "" {
		return nil // Silently skip if no DB or call ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO ivr_events (call_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, callID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(callID string, eventType EventType, data map[string]any) {
	if !l.Enabled() || callID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.Log(ctx, callID, eventType, data); err != nil && l.onError != nil {
			l.onError(err)
		}
	}()
}
