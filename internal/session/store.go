package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCallID keys the shared session used when a request carries no
	// call identifier.
	DefaultCallID = "default"

	DefaultIdleTimeout = 5 * time.Minute
)

// StoreConfig configures a Store. Zero values fall back to defaults.
type StoreConfig struct {
	IdleTimeout time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time

	// OnCreate and OnEvict are called outside any lock.
	OnCreate func(Snapshot)
	OnEvict  func(Snapshot)
}

// Store maps call identifiers to sessions.
//
// The map lock only guards get-or-create and deletion; each session carries
// its own lock held for the whole read-modify-write of a decision. The sweep
// never waits on a session lock: a session busy with a request is, by
// definition, active.
type Store struct {
	cfg StoreConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// IdleTimeout returns the configured idle timeout.
func (st *Store) IdleTimeout() time.Duration {
	return st.cfg.IdleTimeout
}

func (st *Store) now() time.Time {
	return st.cfg.Now().UTC()
}

// Do runs fn with exclusive access to the session for callID, creating it if
// needed. created reports whether this call created the session. LastActivity
// is touched before fn runs.
func (st *Store) Do(callID string, fn func(s *Session, created bool)) {
	if callID == "" {
		callID = DefaultCallID
	}

	for {
		s, created := st.getOrCreate(callID)
		s.mu.Lock()
		if s.evicted {
			// Lost a race with the sweep; the map no longer holds s.
			s.mu.Unlock()
			continue
		}
		s.LastActivity = st.now()
		fn(s, created)
		snap := Snapshot{}
		if created && st.cfg.OnCreate != nil {
			snap = s.snapshot()
		}
		s.mu.Unlock()

		if created && st.cfg.OnCreate != nil {
			st.cfg.OnCreate(snap)
		}
		return
	}
}

func (st *Store) getOrCreate(callID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[callID]; ok {
		return s, false
	}
	now := st.now()
	s := &Session{
		CallID:       callID,
		StateID:      uuid.NewString(),
		NavLevel:     1,
		History:      make([]HistoryEntry, 0, 8),
		LastActivity: now,
		CreatedAt:    now,
	}
	st.sessions[callID] = s
	return s, true
}

// Snapshot returns a copy of the session for callID, if it exists. It does
// not count as activity.
func (st *Store) Snapshot(callID string) (Snapshot, bool) {
	if callID == "" {
		callID = DefaultCallID
	}
	st.mu.Lock()
	s, ok := st.sessions[callID]
	st.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Snapshots returns copies of all live sessions ordered by call identifier.
func (st *Store) Snapshots() []Snapshot {
	st.mu.Lock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.Unlock()

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		if !s.evicted {
			out = append(out, s.snapshot())
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than the idle timeout and returns
// how many were removed.
func (st *Store) Sweep() int {
	cutoff := st.now().Add(-st.cfg.IdleTimeout)
	var evicted []Snapshot
	removed := 0

	st.mu.Lock()
	for id, s := range st.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.LastActivity.Before(cutoff) {
			s.evicted = true
			delete(st.sessions, id)
			removed++
			if st.cfg.OnEvict != nil {
				evicted = append(evicted, s.snapshot())
			}
		}
		s.mu.Unlock()
	}
	st.mu.Unlock()

	for _, snap := range evicted {
		st.cfg.OnEvict(snap)
	}
	return removed
}
