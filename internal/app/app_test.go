package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lukasbauer/ivrnav/internal/httpapi"
)

func TestNewWithoutSinks(t *testing.T) {
	cfg := LoadConfigFromEnv()
	cfg.DatabaseURL = ""
	cfg.KafkaBrokers = nil
	cfg.DiscordWebhookURL = ""

	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.Close()

	if !a.sweeper.IsRunning() {
		t.Error("sweeper should be running after New")
	}

	srv := httptest.NewServer(a.Router(httpapi.NewCallRegistry()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ivr", "application/json",
		strings.NewReader(`{"call_id":"app-1","transcript":"Press 1 for sales, press 0 for an operator"}`))
	if err != nil {
		t.Fatalf("POST /ivr: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"action":"press_digit"`) || !strings.Contains(string(body), `"digit":"0"`) {
		t.Errorf("unexpected body: %s", body)
	}
	if a.Engine().Store().Len() != 1 {
		t.Errorf("sessions = %d, want 1", a.Engine().Store().Len())
	}
}

func TestCloseStopsSweeper(t *testing.T) {
	cfg := LoadConfigFromEnv()
	cfg.DatabaseURL = ""
	cfg.KafkaBrokers = nil

	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if a.sweeper.IsRunning() {
		t.Error("sweeper should be stopped after Close")
	}
}
