package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/opslink/statuswatch/internal/version"
)

// PostWebhook posts payload as JSON. Any 2xx answer is success. Other
// statuses come back as a *WebhookError for the given channel.
func PostWebhook(ctx context.Context, client *http.Client, channel, webhookURL string, payload any) error {
	if webhookURL == "" {
		return &WebhookError{Channel: channel, Message: "webhook URL is empty"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s webhook: %w", channel, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.Debug("webhook accepted", "channel", channel, "host", webhookHost(webhookURL), "status", resp.StatusCode)
		return nil
	}

	return &WebhookError{Channel: channel, Code: resp.StatusCode, Message: describeRejection(resp)}
}

func describeRejection(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "invalid or expired webhook"
	case http.StatusNotFound:
		return "webhook not found"
	case http.StatusTooManyRequests:
		return "rate limited"
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return string(b)
}

// webhookHost keeps the token-bearing path out of logs.
func webhookHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}
