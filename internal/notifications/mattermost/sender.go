// Package mattermost posts incident notifications to a Mattermost incoming webhook.
package mattermost

import (
	"context"
	"net/http"
	"time"

	"github.com/opslink/statuswatch/internal/notifications"
)

const (
	channelName     = "mattermost"
	defaultTimeout  = 10 * time.Second
	defaultUsername = "statuswatch"
)

type Config struct {
	WebhookURL string
	Username   string // display name override, "statuswatch" when empty
	IconURL    string
	Timeout    time.Duration
}

type Sender struct {
	config     Config
	httpClient *http.Client
}

func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Sender{config: config, httpClient: &http.Client{Timeout: config.Timeout}}
}

func (s *Sender) Channel() string { return channelName }

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// Send posts the message as markdown, the subject rendered as a heading.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	text := msg.Body
	if msg.Subject != "" {
		text = "### " + msg.Subject + "\n\n" + msg.Body
	}

	return notifications.PostWebhook(ctx, s.httpClient, channelName, s.config.WebhookURL, webhookPayload{
		Text:     text,
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
	})
}
