package httpapi

import (
	"net/http"
)

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"sessions":        r.engine.Store().Len(),
		"active_requests": r.calls.ActiveCount(),
	})
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.calls.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleDebugGetCall returns one session with its full history. Reading does
// not count as call activity.
func (r *Router) handleDebugGetCall(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("callID")
	if callID == "" {
		http.Error(w, `{"error": "missing call id"}`, http.StatusBadRequest)
		return
	}

	snap, ok := r.engine.Store().Snapshot(callID)
	if !ok {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		return
	}

	r.logger.Debug().
		Str("operator", getOperator(req.Context())).
		Str("call_id", callID).
		Msg("debug: session inspected")
	writeJSON(w, http.StatusOK, snap)
}

func (r *Router) handleDebugListCalls(w http.ResponseWriter, _ *http.Request) {
	snaps := r.engine.Store().Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(snaps),
		"sessions": snaps,
	})
}
