package domain

import "time"

// Severity represents the severity level of an incident.
type Severity string

// Severity levels.
const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	return s == SeverityMinor || s == SeverityMajor || s == SeverityCritical
}

// Incident is a bounded (or still open) excursion of a service into a non-nominal status.
// EndTime is nil while the incident is open.
type Incident struct {
	ID        string     `json:"id"`
	ServiceID string     `json:"service_id"`
	Title     string     `json:"title"`
	Reason    string     `json:"reason"`
	Severity  Severity   `json:"severity"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// IsOpen returns true if the incident has not been resolved.
func (i *Incident) IsOpen() bool {
	return i.EndTime == nil
}

// Duration returns how long the incident lasted, or has lasted so far at now.
func (i *Incident) Duration(now time.Time) time.Duration {
	if i.EndTime != nil {
		return i.EndTime.Sub(i.StartTime)
	}
	return now.Sub(i.StartTime)
}

// IncidentUpdate is a timestamped note on an incident's timeline.
type IncidentUpdate struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
