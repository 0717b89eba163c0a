package checks

import "errors"

// ErrNoChecks is returned by repositories when a service has no recorded checks.
var ErrNoChecks = errors.New("no checks recorded")
