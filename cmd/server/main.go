package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/lukasbauer/ivrnav/internal/app"
	"github.com/lukasbauer/ivrnav/internal/httpapi"
	"github.com/lukasbauer/ivrnav/internal/logging"
)

const drainTimeout = 15 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg := app.LoadConfigFromEnv()

	logger := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	if envErr != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2, // 20% of requests for performance monitoring
			Environment:      cfg.Environment,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("sentry init failed")
		} else {
			logger.Info().Msg("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		logger.Fatal().Err(err).Msg("init app")
	}

	calls := httpapi.NewCallRegistry()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(calls),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Int("max_retries", cfg.MaxRetries).
			Int("max_levels", cfg.MaxLevels).
			Dur("idle_timeout", cfg.SessionIdleTimeout).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()

	// Reject new work, let in-flight requests finish and close open streams.
	calls.StartDraining()
	logger.Info().Int64("active", calls.ActiveCount()).Msg("draining")

	drained := make(chan struct{})
	go func() {
		calls.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.Warn().Int64("active", calls.ActiveCount()).Msg("drain timeout, shutting down anyway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := a.Close(); err != nil {
		logger.Warn().Err(err).Msg("close app")
	}
	logger.Info().Msg("stopped")
}
