package incidents

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opslink/statuswatch/internal/catalog"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
)

// MaxListLimit caps the number of incidents returned by the admin list.
const MaxListLimit = 500

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers admin routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Post("/incidents", h.OpenIncident)
	r.Get("/incidents/{id}", h.GetIncident)
	r.Post("/incidents/{id}/comment", h.PostUpdate)
	r.Post("/incidents/{id}/resolve", h.ResolveIncident)
}

// RegisterPublicRoutes registers the dashboard timeline routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/incidents/{id}/updates", h.ListUpdates)
	r.Get("/incident/{id}/updates", h.ListUpdates)
}

// OpenIncidentRequest represents the request body for declaring an incident.
type OpenIncidentRequest struct {
	httputil.ServiceRef
	Title    string `json:"title" validate:"required,max=255"`
	Reason   string `json:"reason" validate:"required"`
	Severity string `json:"severity" validate:"omitempty,oneof=critical major minor"`
}

// PostUpdateRequest represents the request body for commenting on an incident.
type PostUpdateRequest struct {
	Message string `json:"message" validate:"required"`
}

// OpenIncident handles POST /incidents.
func (h *Handler) OpenIncident(w http.ResponseWriter, r *http.Request) {
	var req OpenIncidentRequest
	if err := httputil.DecodeAndValidate(r, h.validator, &req); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}

	serviceID, err := req.Resolve()
	if err == nil && serviceID == "" {
		err = httputil.FieldError{Field: "serviceId", Message: "required"}
	}
	if err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.OpenIncident(r.Context(), OpenIncidentInput{
		ServiceID: serviceID,
		Title:     req.Title,
		Reason:    req.Reason,
		Severity:  domain.Severity(req.Severity),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// PostUpdate handles POST /incidents/{id}/comment.
func (h *Handler) PostUpdate(w http.ResponseWriter, r *http.Request) {
	var req PostUpdateRequest
	if err := httputil.DecodeAndValidate(r, h.validator, &req); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}

	update, err := h.service.PostUpdate(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, update)
}

// ResolveIncident handles POST /incidents/{id}/resolve.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.ResolveIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents?since=&service_id=&open=&limit=.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := IncidentFilter{
		ServiceID: query.Get("service_id"),
		OpenOnly:  query.Get("open") == "true",
		Limit:     MaxListLimit,
	}

	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid since: expected RFC3339 timestamp")
			return
		}
		filter.Since = since
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = min(limit, MaxListLimit)
	}

	list, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// ListUpdates handles GET /incidents/{id}/updates. The timeline is returned as a bare array.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.ListUpdates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, updates)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrValidation, Status: http.StatusBadRequest},
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: catalog.ErrServiceNotFound, Status: http.StatusNotFound},
		{Error: ErrIncidentAlreadyOpen, Status: http.StatusConflict},
	})
}
