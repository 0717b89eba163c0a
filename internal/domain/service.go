package domain

// Status represents the observed health of a monitored service.
type Status string

// Service statuses.
const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// IsValid checks if the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusUp, StatusDegraded, StatusDown:
		return true
	}
	return false
}

// IsDown reports whether the status is a full outage.
// Degraded is NOT down: it never opens an incident on its own.
func (s Status) IsDown() bool {
	return s == StatusDown
}

// Service represents a monitored service from the static catalog.
type Service struct {
	ID   string `json:"id" koanf:"id"`
	Name string `json:"name" koanf:"name"`
}
