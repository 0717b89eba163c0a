package incidents

import "errors"

// Domain errors.
var (
	ErrValidation          = errors.New("validation error")
	ErrIncidentNotFound    = errors.New("incident not found")
	ErrIncidentAlreadyOpen = errors.New("service already has an open incident")
)
