package checks

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
)

// DefaultHistoryWindow is how far back history goes when no since parameter is given.
const DefaultHistoryWindow = 90 * 24 * time.Hour

// ServiceLookup reports whether a service id is known.
type ServiceLookup interface {
	Exists(id string) bool
}

// Handler handles HTTP requests for check history.
type Handler struct {
	service  *Service
	services ServiceLookup
	window   time.Duration
}

// NewHandler creates a new checks handler. A non-positive window uses DefaultHistoryWindow.
func NewHandler(service *Service, services ServiceLookup, window time.Duration) *Handler {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &Handler{service: service, services: services, window: window}
}

// RegisterRoutes registers public history routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/services/{id}/history", h.GetHistory)
}

// GetHistory handles GET /services/{id}/history?since=<RFC3339>.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "id")
	if !h.services.Exists(serviceID) {
		httputil.Error(w, http.StatusNotFound, "service not found")
		return
	}

	since := h.service.Now().Add(-h.window)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid since: expected RFC3339 timestamp")
			return
		}
		since = parsed
	}

	history, err := h.service.History(r.Context(), serviceID, since)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.JSON(w, http.StatusOK, history)
}
