package maintenance

import "errors"

// ErrValidation marks an invalid maintenance window.
var ErrValidation = errors.New("validation error")
