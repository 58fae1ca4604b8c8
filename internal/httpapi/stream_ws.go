package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukasbauer/ivrnav/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 45 * time.Second
	streamWriteWait  = 10 * time.Second

	// How long a draining stream waits for the client to echo the close.
	streamCloseGrace = 2 * time.Second
)

// handleIVRStream serves one call over a websocket. Every text frame is an
// /ivr request object; every reply is the decision. call_id falls back to the
// query parameter so clients can omit it per frame.
func (r *Router) handleIVRStream(w http.ResponseWriter, req *http.Request) {
	if !r.calls.Add() {
		http.Error(w, `{"error": "server is draining"}`, http.StatusServiceUnavailable)
		return
	}
	defer r.calls.Done()

	callID := req.URL.Query().Get("call_id")

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Str("call_id", callID).Msg("stream: websocket upgrade failed")
		return
	}
	defer conn.Close()

	r.metrics.StreamsActive.Inc()
	defer r.metrics.StreamsActive.Dec()

	logger := logging.WithCall(r.logger, callID)
	logger.Info().Msg("stream: opened")

	// Shutdown tells the client to go away and bounds the wait for its echo,
	// so an idle stream does not hold the drain open.
	stopDrainHook := r.calls.OnDrain(func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(streamWriteWait))
		_ = conn.SetReadDeadline(time.Now().Add(streamCloseGrace))
	})
	defer stopDrainHook()

	conn.SetReadLimit(r.cfg.MaxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// One goroutine owns data writes; gorilla allows a single concurrent writer.
	writes := make(chan any, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case v, ok := <-writes:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(streamWriteWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(v); err != nil {
					logger.Warn().Err(err).Msg("stream: write failed")
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	frames := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("stream: closed unexpectedly")
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		frames++

		decision := r.decide(parseIVRRequest(data, callID))
		select {
		case writes <- decision:
		case <-done:
		}
	}

	close(writes)
	<-done
	logger.Info().Int("frames", frames).Msg("stream: closed")
}
