package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukasbauer/ivrnav/internal/logging"
)

// Discord is a simple Discord webhook notifier for terminal call outcomes.
type Discord struct {
	webhookURL string
	logger     zerolog.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger zerolog.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logging.WithComponent(logger, "discord"),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// post sends a message and reports transport or HTTP failures.
func (d *Discord) post(ctx context.Context, msg discordMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.post(ctx, msg); err != nil {
			d.logger.Error().Err(err).Msg("discord notification failed")
		}
	}()
}

// NotifyHumanReached reports that navigation reached a live person.
func (d *Discord) NotifyHumanReached(callID string, navLevel int, lastDigit string) {
	d.send(humanReachedMessage(callID, navLevel, lastDigit, time.Now()))
}

// NotifyNavigationFailed reports that the navigator gave up on a call.
func (d *Discord) NotifyNavigationFailed(callID, reason string, navLevel, retries int) {
	d.send(navigationFailedMessage(callID, reason, navLevel, retries, time.Now()))
}

func humanReachedMessage(callID string, navLevel int, lastDigit string, at time.Time) discordMessage {
	if lastDigit == "" {
		lastDigit = "-"
	}
	return discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Human reached",
			Description: fmt.Sprintf("Call `%s` is talking to a person", callID),
			Color:       0x00FF00, // Green
			Fields: []embedField{
				{Name: "Level", Value: fmt.Sprintf("%d", navLevel), Inline: true},
				{Name: "Last digit", Value: lastDigit, Inline: true},
			},
			Timestamp: at.UTC().Format(time.RFC3339),
		}},
	}
}

func navigationFailedMessage(callID, reason string, navLevel, retries int, at time.Time) discordMessage {
	return discordMessage{
		Embeds: []discordEmbed{{
			Title:       "IVR navigation failed",
			Description: fmt.Sprintf("Gave up on call `%s`: %s", callID, reason),
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Level", Value: fmt.Sprintf("%d", navLevel), Inline: true},
				{Name: "Retries", Value: fmt.Sprintf("%d", retries), Inline: true},
			},
			Timestamp: at.UTC().Format(time.RFC3339),
		}},
	}
}
