package httputil

// ServiceRef names the service a write request targets. Dashboards send
// serviceId; older admin pages send service_id or server_id.
type ServiceRef struct {
	ServiceID string `json:"serviceId"`
	SnakeID   string `json:"service_id"`
	ServerID  string `json:"server_id"`
}

// Resolve returns the service id, or "" when none was sent. Aliases that
// disagree are a FieldError on serviceId.
func (s ServiceRef) Resolve() (string, error) {
	var id string
	for _, v := range []string{s.ServiceID, s.SnakeID, s.ServerID} {
		if v == "" {
			continue
		}
		if id != "" && v != id {
			return "", FieldError{Field: "serviceId", Message: "conflicting service ids"}
		}
		id = v
	}
	return id, nil
}
