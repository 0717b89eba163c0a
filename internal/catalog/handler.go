package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
)

// Handler serves the catalog over HTTP.
type Handler struct {
	catalog *Catalog
}

// NewHandler creates a new catalog handler.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// RegisterRoutes registers public catalog routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/services", h.ListServices)
	r.Get("/services/{id}", h.GetService)
}

// ListServices handles GET /services.
func (h *Handler) ListServices(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.catalog.List())
}

// GetService handles GET /services/{id}.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	service, err := h.catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, service)
}
