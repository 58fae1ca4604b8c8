package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lukasbauer/ivrnav/internal/classifier"
	"github.com/lukasbauer/ivrnav/internal/eventlog"
	"github.com/lukasbauer/ivrnav/internal/events"
	"github.com/lukasbauer/ivrnav/internal/session"
)

// handleIVR decides the next action for one transcript chunk.
//
// Input is parsed permissively: missing fields, wrong types and even an
// unparseable body fall back to defaults instead of rejecting the request.
func (r *Router) handleIVR(w http.ResponseWriter, req *http.Request) {
	if !r.calls.Add() {
		http.Error(w, `{"error": "server is draining"}`, http.StatusServiceUnavailable)
		return
	}
	defer r.calls.Done()

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.cfg.MaxBodyBytes))
	if err != nil {
		// The call id may be in the unread part; never guess a session.
		r.logger.Warn().Err(err).Int64("limit", r.cfg.MaxBodyBytes).Msg("ivr: unreadable body")
		r.metrics.RecordDecision(string(session.ActionWait), string(classifier.SignalNone), 0)
		writeJSON(w, http.StatusOK, unreadableDecision())
		return
	}

	decision := r.decide(parseIVRRequest(body, ""))
	writeJSON(w, http.StatusOK, decision)
}

// ReasonUnreadableRequest answers a request whose body could not be read.
const ReasonUnreadableRequest = "request could not be read"

// unreadableDecision is a stateless wait. It reports starting values because
// no session was consulted.
func unreadableDecision() session.Decision {
	return session.Decision{
		Action:   session.ActionWait,
		Reason:   ReasonUnreadableRequest,
		NavLevel: 1,
	}
}

// decide runs the engine and fans the outcome out to metrics, logs and sinks.
func (r *Router) decide(in session.Request) session.Decision {
	start := time.Now()
	out := r.engine.Decide(in)
	elapsed := time.Since(start)

	d := out.Decision
	signal := string(out.Signals.Primary())
	r.metrics.RecordDecision(string(d.Action), signal, elapsed.Seconds())

	r.logger.Info().
		Str("call_id", out.CallID).
		Str("action", string(d.Action)).
		Str("digit", d.Digit).
		Str("reason", d.Reason).
		Str("signal", signal).
		Int("ivr_level", d.NavLevel).
		Int("ivr_retry_count", d.RetryCount).
		Dur("elapsed", elapsed).
		Msg("ivr decision")

	r.eventLog.LogAsync(out.CallID, eventlog.EventDecision, map[string]any{
		"state_id":         out.StateID,
		"action":           d.Action,
		"digit":            d.Digit,
		"available_digits": d.AvailableDigits,
		"reason":           d.Reason,
		"signal":           signal,
		"ivr_level":        d.NavLevel,
		"ivr_retry_count":  d.RetryCount,
		"transcript":       in.Transcript,
	})

	r.publisher.PublishAsync(events.DecisionEvent{
		CallID:          out.CallID,
		StateID:         out.StateID,
		Action:          string(d.Action),
		Digit:           d.Digit,
		AvailableDigits: d.AvailableDigits,
		Reason:          d.Reason,
		Signal:          signal,
		NavLevel:        d.NavLevel,
		RetryCount:      d.RetryCount,
		Timestamp:       start.UTC(),
	})

	if out.Final {
		switch d.Action {
		case session.ActionSuccess:
			r.eventLog.LogAsync(out.CallID, eventlog.EventHumanReached, map[string]any{
				"ivr_level":  d.NavLevel,
				"transition": d.Transition,
			})
			r.discord.NotifyHumanReached(out.CallID, d.NavLevel, d.LastDigitPressed)
		case session.ActionFail:
			r.eventLog.LogAsync(out.CallID, eventlog.EventNavigationFail, map[string]any{
				"reason":          d.Reason,
				"ivr_level":       d.NavLevel,
				"ivr_retry_count": d.RetryCount,
			})
			r.discord.NotifyNavigationFailed(out.CallID, d.Reason, d.NavLevel, d.RetryCount)
		}
	}

	return d
}

// parseIVRRequest extracts request fields from a JSON body. fallbackCallID
// is used when the body carries no call_id.
func parseIVRRequest(body []byte, fallbackCallID string) session.Request {
	if !gjson.ValidBytes(body) {
		body = nil
	}
	res := gjson.ParseBytes(body)

	req := session.Request{
		CallID:           stringField(res, "call_id"),
		Transcript:       stringField(res, "transcript"),
		LastDigitPressed: strings.TrimSpace(stringField(res, "last_digit_pressed")),
		NavLevel:         intField(res, "ivr_level", 1),
		RetryCount:       intField(res, "ivr_retry_count", 0),
	}
	if req.CallID == "" {
		req.CallID = fallbackCallID
	}
	if req.NavLevel < 1 {
		req.NavLevel = 1
	}
	if req.RetryCount < 0 {
		req.RetryCount = 0
	}
	return req
}

func stringField(res gjson.Result, key string) string {
	v := res.Get(key)
	switch v.Type {
	case gjson.String:
		return v.String()
	case gjson.Number:
		return v.Raw
	default:
		return ""
	}
}

func intField(res gjson.Result, key string, def int) int {
	v := res.Get(key)
	switch v.Type {
	case gjson.Number:
		return int(v.Int())
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.String()))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}
