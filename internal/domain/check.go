package domain

import "time"

// Check is a single status observation of a service.
// Checks are append-only and never updated once written.
type Check struct {
	ID         string    `json:"id"`
	ServiceID  string    `json:"service_id"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     *string   `json:"reason"`
	IncidentID *string   `json:"incident_id"`
}
