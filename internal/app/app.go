package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/ivrnav/internal/eventlog"
	"github.com/lukasbauer/ivrnav/internal/events"
	"github.com/lukasbauer/ivrnav/internal/httpapi"
	"github.com/lukasbauer/ivrnav/internal/metrics"
	"github.com/lukasbauer/ivrnav/internal/notifications"
	"github.com/lukasbauer/ivrnav/internal/session"
)

type App struct {
	cfg       Config
	logger    zerolog.Logger
	db        *pgxpool.Pool
	metrics   *metrics.Metrics
	eventLog  *eventlog.Logger
	publisher *events.Publisher
	discord   *notifications.Discord
	engine    *session.Engine
	sweeper   *session.Sweeper
}

// New wires the engine and its optional sinks. Only the database is dialed
// eagerly; Kafka connects on first write.
func New(cfg Config, logger zerolog.Logger) (*App, error) {
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		db = pool
		logger.Info().Msg("event log enabled")
	}

	// Migrations are applied externally (migrations/*.sql).
	// No automatic migration runner at startup.

	m := metrics.New()
	el := eventlog.New(db)

	store := session.NewStore(session.StoreConfig{
		IdleTimeout: cfg.SessionIdleTimeout,
		OnCreate: func(s session.Snapshot) {
			m.RecordSessionCreated()
			logger.Debug().Str("call_id", s.CallID).Str("state_id", s.StateID).Msg("session created")
			el.LogAsync(s.CallID, eventlog.EventSessionCreated, map[string]any{
				"state_id": s.StateID,
			})
		},
		OnEvict: func(s session.Snapshot) {
			m.RecordSessionExpired()
			logger.Debug().Str("call_id", s.CallID).Int("history", len(s.History)).Msg("session expired")
			el.LogAsync(s.CallID, eventlog.EventSessionExpired, map[string]any{
				"state_id":       s.StateID,
				"nav_level":      s.NavLevel,
				"retry_count":    s.RetryCount,
				"failure_reason": s.FailureReason,
				"history":        len(s.History),
				"idle_since":     s.LastActivity,
			})
		},
	})

	engine := session.NewEngine(session.EngineConfig{
		MaxRetries:  cfg.MaxRetries,
		MaxLevels:   cfg.MaxLevels,
		WelcomeNode: cfg.WelcomeNode,
	}, store)

	sweeper := session.NewSweeper(store, cfg.SessionSweepInterval, logger)
	if err := sweeper.Start(); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	publisher := events.New(events.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		metrics:   m,
		eventLog:  el,
		publisher: publisher,
		discord:   notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		engine:    engine,
		sweeper:   sweeper,
	}, nil
}

func (a *App) Router(calls *httpapi.CallRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		JWTSecret:    a.cfg.JWTSecret,
		MaxBodyBytes: a.cfg.MaxBodyBytes,
	}
	return httpapi.NewRouter(routerCfg, a.logger, httpapi.Deps{
		Engine:    a.engine,
		Metrics:   a.metrics,
		EventLog:  a.eventLog,
		Publisher: a.publisher,
		Discord:   a.discord,
		Calls:     calls,
	})
}

// Engine returns the decision engine.
func (a *App) Engine() *session.Engine {
	return a.engine
}

func (a *App) Close() error {
	if a.sweeper.IsRunning() {
		_ = a.sweeper.Stop()
	}
	err := a.publisher.Close()
	if a.db != nil {
		a.db.Close()
	}
	return err
}
