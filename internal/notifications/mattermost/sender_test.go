package mattermost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opslink/statuswatch/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Defaults(t *testing.T) {
	sender := NewSender(Config{})

	assert.Equal(t, defaultUsername, sender.config.Username)
	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.NotNil(t, sender.httpClient)
	assert.Equal(t, "mattermost", sender.Channel())
}

func TestNewSender_CustomConfig(t *testing.T) {
	sender := NewSender(Config{
		Username: "CustomBot",
		IconURL:  "https://example.com/icon.png",
		Timeout:  30 * time.Second,
	})

	assert.Equal(t, "CustomBot", sender.config.Username)
	assert.Equal(t, "https://example.com/icon.png", sender.config.IconURL)
	assert.Equal(t, 30*time.Second, sender.config.Timeout)
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("User-Agent"), "statuswatch/")

		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "### [Incident] Survival is down\n\nServer is offline", payload.Text)
		assert.Equal(t, "statuswatch", payload.Username)
		assert.Equal(t, "https://example.com/icon.png", payload.IconURL)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(Config{WebhookURL: server.URL, IconURL: "https://example.com/icon.png"})
	err := sender.Send(context.Background(), notifications.Message{
		Type:    notifications.MessageTypeOpened,
		Subject: "[Incident] Survival is down",
		Body:    "Server is offline",
	})

	assert.NoError(t, err)
}

func TestSender_Send_WithoutSubject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Plain body", payload.Text)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewSender(Config{WebhookURL: server.URL}).Send(context.Background(), notifications.Message{Body: "Plain body"})
	assert.NoError(t, err)
}

func TestSender_Send_EmptyWebhook(t *testing.T) {
	err := NewSender(Config{}).Send(context.Background(), notifications.Message{Body: "x"})

	var webhookErr *notifications.WebhookError
	require.True(t, errors.As(err, &webhookErr))
	assert.Equal(t, "mattermost", webhookErr.Channel)
}

func TestSender_Send_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid or expired webhook"},
		{"forbidden", http.StatusForbidden, "invalid or expired webhook"},
		{"not found", http.StatusNotFound, "webhook not found"},
		{"rate limited", http.StatusTooManyRequests, "rate limited"},
		{"server error", http.StatusInternalServerError, "boom"},
		{"bad request", http.StatusBadRequest, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("boom"))
			}))
			defer server.Close()

			err := NewSender(Config{WebhookURL: server.URL}).Send(context.Background(), notifications.Message{Body: "x"})

			var webhookErr *notifications.WebhookError
			require.True(t, errors.As(err, &webhookErr))
			assert.Equal(t, tt.status, webhookErr.Code)
			assert.Equal(t, tt.message, webhookErr.Message)
		})
	}
}

func TestSender_Send_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewSender(Config{WebhookURL: server.URL}).Send(ctx, notifications.Message{Body: "x"})
	assert.Error(t, err)
}
