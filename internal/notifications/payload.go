package notifications

import (
	"time"

	"github.com/opslink/statuswatch/internal/domain"
)

// MessageType defines the type of notification.
type MessageType string

// Message types.
const (
	MessageTypeOpened   MessageType = "opened"
	MessageTypeResolved MessageType = "resolved"
)

// Payload contains data for rendering a notification.
type Payload struct {
	MessageType MessageType  `json:"message_type"`
	Incident    IncidentData `json:"incident"`
	IncidentURL string       `json:"incident_url,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// IncidentData contains incident information for notification.
type IncidentData struct {
	ID          string        `json:"id"`
	ServiceID   string        `json:"service_id"`
	ServiceName string        `json:"service_name"`
	Title       string        `json:"title"`
	Reason      string        `json:"reason"`
	Severity    string        `json:"severity"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// NewPayload builds a payload for an incident. serviceName falls back to the service id when empty.
func NewPayload(messageType MessageType, incident *domain.Incident, serviceName, incidentURL string, now time.Time) Payload {
	if serviceName == "" {
		serviceName = incident.ServiceID
	}

	return Payload{
		MessageType: messageType,
		Incident: IncidentData{
			ID:          incident.ID,
			ServiceID:   incident.ServiceID,
			ServiceName: serviceName,
			Title:       incident.Title,
			Reason:      incident.Reason,
			Severity:    string(incident.Severity),
			StartTime:   incident.StartTime,
			EndTime:     incident.EndTime,
			Duration:    incident.Duration(now),
		},
		IncidentURL: incidentURL,
		GeneratedAt: now,
	}
}
