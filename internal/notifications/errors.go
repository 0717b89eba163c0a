package notifications

import (
	"errors"
	"fmt"
)

// ErrQueueFull is reported when an event is dropped because the queue is at capacity.
var ErrQueueFull = errors.New("notification queue full")

// ErrNotifierStopped is reported when an event arrives after Stop.
var ErrNotifierStopped = errors.New("notifier stopped")

// WebhookError is returned by senders when a webhook answers with a non-success status.
type WebhookError struct {
	Channel string
	Code    int
	Message string
}

func (e *WebhookError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error %d: %s", e.Channel, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Channel, e.Message)
}
