// Package discord provides Discord notification sending via channel webhooks.
package discord

import (
	"context"
	"net/http"
	"time"

	"github.com/opslink/statuswatch/internal/notifications"
)

const (
	channelName    = "discord"
	defaultTimeout = 10 * time.Second

	// Embed colors.
	colorOpened   = 0xdc2626
	colorResolved = 0x16a34a
	colorDefault  = 0xff7a18

	// Discord rejects embed titles longer than 256 and descriptions longer than 4096 characters.
	maxTitleLen       = 256
	maxDescriptionLen = 4096
)

// Config holds Discord sender configuration.
type Config struct {
	WebhookURL string
	Username   string // optional override of the webhook's name
	Timeout    time.Duration
}

// Sender implements Discord notification sender via webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

// NewSender creates a new Discord sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now: time.Now,
	}
}

// Channel returns the channel name.
func (s *Sender) Channel() string {
	return channelName
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

// Send posts a message as a single embed. Discord answers 204, or 200 with ?wait=true.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	payload := webhookPayload{
		Username: s.config.Username,
		Embeds: []embed{{
			Title:       truncate(msg.Subject, maxTitleLen),
			Description: truncate(msg.Body, maxDescriptionLen),
			URL:         msg.URL,
			Color:       embedColor(msg.Type),
			Timestamp:   s.now().UTC().Format(time.RFC3339),
		}},
	}

	return notifications.PostWebhook(ctx, s.httpClient, channelName, s.config.WebhookURL, payload)
}

func embedColor(t notifications.MessageType) int {
	switch t {
	case notifications.MessageTypeOpened:
		return colorOpened
	case notifications.MessageTypeResolved:
		return colorResolved
	default:
		return colorDefault
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
