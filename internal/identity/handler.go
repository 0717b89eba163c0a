package identity

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/pkg/ctxlog"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
	"golang.org/x/time/rate"
)

// Login attempts per client address: a burst of loginBurst, then one every loginRefill.
const (
	loginBurst  = 5
	loginRefill = 10 * time.Second
)

type Handler struct {
	service   *Service
	validator *validator.Validate

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// RegisterRoutes mounts POST /auth/login. It needs no credentials.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

// RegisterProtectedRoutes mounts GET /auth/me behind the auth middleware.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", h.Me)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeAndValidate(r, h.validator, &req); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}

	logger := ctxlog.FromContext(r.Context()).With("email", req.Email)

	limiter := h.limiterFor(clientAddr(r))
	if !limiter.Allow() {
		logger.Warn("admin login throttled", "remote", clientAddr(r))
		w.Header().Set("Retry-After", strconv.Itoa(int(loginRefill.Seconds())))
		httputil.Error(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.Warn("admin login failed", "error", err)
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
		})
		return
	}

	// A successful login clears the address's failure budget.
	h.mu.Lock()
	delete(h.limiters, clientAddr(r))
	h.mu.Unlock()

	logger.Info("admin logged in")
	httputil.Success(w, http.StatusOK, token)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject := httputil.GetSubject(r.Context())
	if subject == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	httputil.Success(w, http.StatusOK, domain.Admin{Email: subject, Role: httputil.GetRole(r.Context())})
}

func (h *Handler) limiterFor(addr string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Every(loginRefill), loginBurst)
		h.limiters[addr] = l
	}
	return l
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
