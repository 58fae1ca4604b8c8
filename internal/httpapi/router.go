package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/ivrnav/internal/eventlog"
	"github.com/lukasbauer/ivrnav/internal/events"
	"github.com/lukasbauer/ivrnav/internal/logging"
	"github.com/lukasbauer/ivrnav/internal/metrics"
	"github.com/lukasbauer/ivrnav/internal/notifications"
	"github.com/lukasbauer/ivrnav/internal/session"
)

type RouterConfig struct {
	// JWT secret guarding the debug endpoints. Empty leaves them open.
	JWTSecret string

	// Maximum accepted request body in bytes.
	MaxBodyBytes int64
}

// Deps are the collaborators the router fans decisions out to. Only Engine
// and Metrics are required.
type Deps struct {
	Engine    *session.Engine
	Metrics   *metrics.Metrics
	EventLog  *eventlog.Logger
	Publisher *events.Publisher
	Discord   *notifications.Discord
	Calls     *CallRegistry
}

type Router struct {
	cfg       RouterConfig
	logger    zerolog.Logger
	engine    *session.Engine
	metrics   *metrics.Metrics
	eventLog  *eventlog.Logger
	publisher *events.Publisher
	discord   *notifications.Discord
	calls     *CallRegistry
	mux       *http.ServeMux
}

const defaultMaxBodyBytes = 64 << 10

func newRouter(cfg RouterConfig, logger zerolog.Logger, deps Deps) *Router {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.EventLog == nil {
		deps.EventLog = eventlog.New(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.New(events.Config{}, logger)
	}
	if deps.Discord == nil {
		deps.Discord = notifications.NewDiscord("", logger)
	}
	if deps.Calls == nil {
		deps.Calls = NewCallRegistry()
	}

	r := &Router{
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "httpapi"),
		engine:    deps.Engine,
		metrics:   deps.Metrics,
		eventLog:  deps.EventLog,
		publisher: deps.Publisher,
		discord:   deps.Discord,
		calls:     deps.Calls,
		mux:       http.NewServeMux(),
	}
	r.eventLog.OnError(r.sinkErrorHandler("eventlog"))
	r.publisher.OnError(r.sinkErrorHandler("kafka"))
	r.routes()
	return r
}

// sinkErrorHandler counts and reports a failed async write. Sink failures
// never reach the caller.
func (r *Router) sinkErrorHandler(sink string) func(error) {
	return func(err error) {
		r.metrics.RecordSinkError(sink)
		r.logger.Warn().Err(err).Str("sink", sink).Msg("sink write failed")
		captureError(err, sink, "")
	}
}

func NewRouter(cfg RouterConfig, logger zerolog.Logger, deps Deps) http.Handler {
	r := newRouter(cfg, logger, deps)
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	r.mux.Handle("GET /metrics", r.metrics.Handler())

	// IVR decisions
	r.mux.HandleFunc("POST /ivr", r.handleIVR)
	r.mux.HandleFunc("GET /ivr/stream", r.handleIVRStream)

	// Session diagnostics
	r.mux.HandleFunc("GET /debug/calls", r.withAuth(r.handleDebugListCalls))
	r.mux.HandleFunc("GET /debug/calls/{callID}", r.withAuth(r.handleDebugGetCall))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry tagged with the failing sink.
func captureError(err error, sink, callID string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("sink", sink)
		if callID != "" {
			scope.SetTag("call_id", callID)
		}
		sentry.CaptureException(err)
	})
}
