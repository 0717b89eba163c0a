package notifications

import "context"

// Message is a rendered notification ready to be delivered.
type Message struct {
	Type    MessageType
	Subject string
	Body    string
	URL     string
}

// Sender delivers messages to one outbound channel.
type Sender interface {
	// Channel names the sender and selects its templates.
	Channel() string
	Send(ctx context.Context, msg Message) error
}
