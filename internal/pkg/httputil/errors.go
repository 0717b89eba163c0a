package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/opslink/statuswatch/internal/pkg/ctxlog"
)

// ErrInvalidJSON marks a request body that could not be decoded.
var ErrInvalidJSON = errors.New("invalid json")

// ErrorMapping maps a sentinel error to a response status.
// An empty Message sends err.Error(), which includes any wrapped context.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the response for the first mapping that matches err.
// Unmapped errors become 500 and are logged; a request whose context ended
// (client gone or deadline hit) gets 503 and a warning instead.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	if m, ok := findMapping(err, mappings); ok {
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	logger := ctxlog.FromContext(ctx)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("request aborted", "error", err)
		Error(w, http.StatusServiceUnavailable, "request aborted")
		return
	}

	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}

func findMapping(err error, mappings []ErrorMapping) (ErrorMapping, bool) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			return m, true
		}
	}
	return ErrorMapping{}, false
}
