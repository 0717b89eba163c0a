package maintenance

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opslink/statuswatch/internal/catalog"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
)

// Handler handles HTTP requests for maintenance windows.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new maintenance handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers admin routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/maintenance", h.ListUpcoming)
	r.Post("/maintenance", h.Schedule)
}

// ScheduleRequest represents the request body for scheduling a window.
type ScheduleRequest struct {
	httputil.ServiceRef
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	Reason    string    `json:"reason" validate:"required"`
}

// Schedule handles POST /maintenance.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := httputil.DecodeAndValidate(r, h.validator, &req); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}

	// An empty service id schedules a global window.
	serviceID, err := req.Resolve()
	if err != nil {
		httputil.ValidationError(w, err)
		return
	}

	window, err := h.service.Schedule(r.Context(), ScheduleInput{
		ServiceID: serviceID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrValidation, Status: http.StatusBadRequest},
			{Error: catalog.ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}

	httputil.Success(w, http.StatusCreated, window)
}

// ListUpcoming handles GET /maintenance.
func (h *Handler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	windows, err := h.service.Upcoming(r.Context(), h.service.now())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, windows)
}
