package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestCallRegistry_AddAndDone(t *testing.T) {
	cr := NewCallRegistry()

	if cr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", cr.ActiveCount())
	}

	if !cr.Add() {
		t.Error("Add() should return true when not draining")
	}
	if cr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", cr.ActiveCount())
	}

	if !cr.Add() {
		t.Error("Add() should return true when not draining")
	}
	if cr.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", cr.ActiveCount())
	}

	cr.Done()
	if cr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1 after one Done()", cr.ActiveCount())
	}

	cr.Done()
	if cr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after all Done()", cr.ActiveCount())
	}
}

func TestCallRegistry_Draining(t *testing.T) {
	cr := NewCallRegistry()

	if cr.IsDraining() {
		t.Error("IsDraining() should be false initially")
	}

	// Add a call before draining
	if !cr.Add() {
		t.Error("Add() should succeed before draining")
	}

	cr.StartDraining()

	if !cr.IsDraining() {
		t.Error("IsDraining() should be true after StartDraining()")
	}

	// New calls should be rejected
	if cr.Add() {
		t.Error("Add() should return false when draining")
	}

	// Active count should still be 1 (the pre-drain call)
	if cr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", cr.ActiveCount())
	}

	// Complete the existing call
	cr.Done()
	if cr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", cr.ActiveCount())
	}
}

func TestCallRegistry_WaitBlocksUntilDone(t *testing.T) {
	cr := NewCallRegistry()

	cr.Add()
	cr.Add()

	done := make(chan struct{})
	go func() {
		cr.Wait()
		close(done)
	}()

	// Wait should not complete yet
	select {
	case <-done:
		t.Error("Wait() should block while calls are active")
	default:
	}

	cr.Done()

	// Still one active
	select {
	case <-done:
		t.Error("Wait() should block while calls are active")
	default:
	}

	cr.Done()

	// Now Wait should complete
	<-done
}

func TestCallRegistry_ConcurrentAddAndDone(t *testing.T) {
	cr := NewCallRegistry()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if cr.Add() {
				defer cr.Done()
			}
		}()
	}

	wg.Wait()

	if cr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after all goroutines done", cr.ActiveCount())
	}
}

func TestCallRegistry_DrainDuringConcurrentAdds(t *testing.T) {
	cr := NewCallRegistry()
	const n = 100

	var wg sync.WaitGroup
	var accepted, rejected int64
	var mu sync.Mutex

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if cr.Add() {
				mu.Lock()
				accepted++
				mu.Unlock()
				defer cr.Done()
			} else {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()

		// Start draining midway
		if i == n/2 {
			cr.StartDraining()
		}
	}

	wg.Wait()

	if accepted+rejected != n {
		t.Errorf("accepted(%d) + rejected(%d) != %d", accepted, rejected, n)
	}
	if rejected == 0 {
		t.Error("expected some calls to be rejected after draining started")
	}
	if cr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", cr.ActiveCount())
	}
}

func TestReadyzEndpoint(t *testing.T) {
	cr := NewCallRegistry()
	r := &Router{
		logger: zerolog.Nop(),
		calls:  cr,
	}

	t.Run("returns 200 when not draining", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		r.handleReadyz(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if body := rec.Body.String(); body != "ok" {
			t.Errorf("body = %q, want %q", body, "ok")
		}
	})

	t.Run("returns 503 when draining", func(t *testing.T) {
		cr.StartDraining()

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		r.handleReadyz(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		if body := rec.Body.String(); body != "draining" {
			t.Errorf("body = %q, want %q", body, "draining")
		}
	})
}

func TestIVRRejectsDuringDrain(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	r.calls.StartDraining()

	req := httptest.NewRequest(http.MethodPost, "/ivr", strings.NewReader(`{"call_id":"drain-1","transcript":"press 1 for sales"}`))
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if r.engine.Store().Len() != 0 {
		t.Errorf("sessions = %d, want 0: drained requests must not touch state", r.engine.Store().Len())
	}
}

func TestCallRegistry_OnDrain(t *testing.T) {
	t.Run("hook runs once when draining starts", func(t *testing.T) {
		cr := NewCallRegistry()
		calls := 0
		cr.OnDrain(func() { calls++ })

		if calls != 0 {
			t.Fatalf("hook ran before draining, calls = %d", calls)
		}
		cr.StartDraining()
		cr.StartDraining()
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("cancelled hook does not run", func(t *testing.T) {
		cr := NewCallRegistry()
		ran := false
		cancel := cr.OnDrain(func() { ran = true })
		cancel()

		cr.StartDraining()
		if ran {
			t.Error("cancelled hook should not run")
		}
	})

	t.Run("hook registered while draining runs immediately", func(t *testing.T) {
		cr := NewCallRegistry()
		cr.StartDraining()

		ran := false
		cancel := cr.OnDrain(func() { ran = true })
		defer cancel()
		if !ran {
			t.Error("hook should run immediately on a draining registry")
		}
	})

	t.Run("hook may call back into the registry", func(t *testing.T) {
		cr := NewCallRegistry()
		var draining bool
		cr.OnDrain(func() { draining = cr.IsDraining() })

		cr.StartDraining()
		if !draining {
			t.Error("IsDraining() inside hook = false, want true")
		}
	})
}
