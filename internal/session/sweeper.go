package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/ivrnav/internal/logging"
)

const DefaultSweepInterval = time.Minute

// Sweeper periodically evicts idle sessions from a Store.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper. A non-positive interval uses
// DefaultSweepInterval.
func NewSweeper(store *Store, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logging.WithComponent(logger, "session_sweeper"),
	}
}

// Start schedules the sweep.
func (w *Sweeper) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.interval), w.RunOnce); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()

	w.cron = c
	w.running = true

	w.logger.Info().
		Dur("interval", w.interval).
		Dur("idle_timeout", w.store.IdleTimeout()).
		Msg("session sweeper started")
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (w *Sweeper) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("sweeper is not running")
	}

	<-w.cron.Stop().Done()
	w.running = false

	w.logger.Info().Msg("session sweeper stopped")
	return nil
}

// IsRunning reports whether the sweep is scheduled.
func (w *Sweeper) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce sweeps immediately.
func (w *Sweeper) RunOnce() {
	if n := w.store.Sweep(); n > 0 {
		w.logger.Info().
			Int("expired", n).
			Int("remaining", w.store.Len()).
			Msg("expired idle sessions")
	}
}
