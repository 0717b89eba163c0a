package status

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
)

// Handler serves the public status snapshot.
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler creates a new status handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// RegisterRoutes registers public routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.GetStatus)
}

// GetStatus handles GET /status. The snapshot is returned without the data envelope.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetStatus(r.Context(), h.now().UTC())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.JSON(w, http.StatusOK, snapshot)
}
