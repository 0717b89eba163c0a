package monitor

import "github.com/opslink/statuswatch/internal/domain"

// Lifecycle states reported by the panel.
const (
	StateRunning  = "running"
	StateStarting = "starting"
	StateStopping = "stopping"
	StateOffline  = "offline"
)

// Reasons attached to non-up checks.
const (
	ReasonUnreachable = "Monitoring system could not reach the server"
	ReasonStopping    = "Server is stopping"
	ReasonOffline     = "Server is offline"
	ReasonUnavailable = "Service became unavailable"
)

// Classify maps a poll outcome to a status and an optional reason ("" for none).
// Rules apply in order; the first match wins.
func Classify(outcome RawOutcome) (domain.Status, string) {
	if outcome.Failed {
		return domain.StatusDown, ReasonUnreachable
	}

	switch outcome.LifecycleState {
	case StateRunning, StateStarting:
		return domain.StatusUp, ""
	case StateStopping:
		return domain.StatusDegraded, ReasonStopping
	case StateOffline:
		return domain.StatusDown, ReasonOffline
	default:
		return domain.StatusDown, ReasonUnavailable
	}
}
