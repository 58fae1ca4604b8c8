package session

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewSweeper_DefaultInterval(t *testing.T) {
	w := NewSweeper(NewStore(StoreConfig{}), 0, zerolog.Nop())
	if w.interval != DefaultSweepInterval {
		t.Errorf("interval = %v, want %v", w.interval, DefaultSweepInterval)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	w := NewSweeper(NewStore(StoreConfig{}), time.Hour, zerolog.Nop())

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.IsRunning() {
		t.Error("IsRunning() should be true after Start()")
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() should fail")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Error("IsRunning() should be false after Stop()")
	}
	if err := w.Stop(); err == nil {
		t.Error("second Stop() should fail")
	}
}

func TestSweeper_RunOnce(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := NewStore(StoreConfig{IdleTimeout: time.Minute, Now: clock.Now})
	st.Do("a", func(*Session, bool) {})
	st.Do("b", func(*Session, bool) {})

	clock.Advance(2 * time.Minute)
	NewSweeper(st, time.Minute, zerolog.Nop()).RunOnce()

	if st.Len() != 0 {
		t.Errorf("Len() = %d, want 0", st.Len())
	}
}

func TestSweeper_ScheduledSweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := NewStore(StoreConfig{IdleTimeout: time.Minute, Now: clock.Now})
	st.Do("a", func(*Session, bool) {})
	clock.Advance(2 * time.Minute)

	w := NewSweeper(st, time.Second, zerolog.Nop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for st.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduled sweep did not evict idle session")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSweeper_LogsWithComponent(t *testing.T) {
	var buf bytes.Buffer
	w := NewSweeper(NewStore(StoreConfig{}), time.Hour, zerolog.New(&buf))

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if !strings.Contains(buf.String(), `"component":"session_sweeper"`) {
		t.Errorf("log output missing component field: %s", buf.String())
	}
}
