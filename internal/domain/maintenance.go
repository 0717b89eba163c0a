package domain

import "time"

// MaintenanceWindow is an admin-declared interval during which status changes are expected.
// An empty ServiceID means the window applies to every service.
type MaintenanceWindow struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// IsGlobal returns true if the window is not bound to a single service.
func (w *MaintenanceWindow) IsGlobal() bool {
	return w.ServiceID == ""
}

// ActiveAt reports whether now falls inside [StartTime, EndTime], both ends inclusive.
func (w *MaintenanceWindow) ActiveAt(now time.Time) bool {
	return !now.Before(w.StartTime) && !now.After(w.EndTime)
}

// AppliesTo reports whether the window covers the given service.
func (w *MaintenanceWindow) AppliesTo(serviceID string) bool {
	return w.IsGlobal() || w.ServiceID == serviceID
}
