package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostWebhook(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{"ok", http.StatusOK, ""},
		{"no content", http.StatusNoContent, ""},
		{"unauthorized", http.StatusUnauthorized, "invalid or expired webhook"},
		{"forbidden", http.StatusForbidden, "invalid or expired webhook"},
		{"not found", http.StatusNotFound, "webhook not found"},
		{"rate limited", http.StatusTooManyRequests, "rate limited"},
		{"server error", http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Contains(t, r.Header.Get("User-Agent"), "statuswatch/")

				var got map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, "hello", got["text"])

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("boom"))
			}))
			defer server.Close()

			err := PostWebhook(context.Background(), server.Client(), "test", server.URL, map[string]string{"text": "hello"})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			var webhookErr *WebhookError
			require.True(t, errors.As(err, &webhookErr))
			assert.Equal(t, "test", webhookErr.Channel)
			assert.Equal(t, tt.status, webhookErr.Code)
			assert.Equal(t, tt.wantErr, webhookErr.Message)
		})
	}
}

func TestPostWebhook_EmptyURL(t *testing.T) {
	err := PostWebhook(context.Background(), http.DefaultClient, "test", "", nil)

	var webhookErr *WebhookError
	require.True(t, errors.As(err, &webhookErr))
	assert.Zero(t, webhookErr.Code)
}

func TestWebhookHost(t *testing.T) {
	assert.Equal(t, "chat.example.com", webhookHost("https://chat.example.com/hooks/secret-token"))
	assert.Equal(t, "invalid", webhookHost("not a url"))
}
