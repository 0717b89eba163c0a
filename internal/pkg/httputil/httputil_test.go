package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/pkg/ctxlog"
	"github.com/opslink/statuswatch/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	subject string
	role    domain.Role
	err     error
}

func (s stubValidator) ValidateToken(_ context.Context, _ string) (string, domain.Role, error) {
	return s.subject, s.role, s.err
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Message
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "admin@example.com", GetSubject(r.Context()))
		assert.Equal(t, domain.RoleAdmin, GetRole(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		header     string
		validator  stubValidator
		wantStatus int
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"empty token", "Bearer ", stubValidator{subject: "admin@example.com", role: domain.RoleAdmin}, http.StatusUnauthorized},
		{"lowercase scheme", "bearer abc", stubValidator{subject: "admin@example.com", role: domain.RoleAdmin}, http.StatusNoContent},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("bad")}, http.StatusUnauthorized},
		{"valid token", "Bearer abc", stubValidator{subject: "admin@example.com", role: domain.RoleAdmin}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(tt.validator)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if rec.Code == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("listed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.Header.Set("Origin", "https://status.example.com")
		rec := httptest.NewRecorder()
		CORSMiddleware([]string{"https://status.example.com"})(next).ServeHTTP(rec, req)

		assert.Equal(t, "https://status.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("unlisted origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		CORSMiddleware([]string{"https://status.example.com"})(next).ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wildcard preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/incidents", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		CORSMiddleware([]string{"*"})(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("no role in context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireRole(domain.RoleAdmin)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("insufficient role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), Principal{Subject: "viewer@example.com", Role: domain.RoleViewer}))
		rec := httptest.NewRecorder()
		RequireRole(domain.RoleAdmin)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "insufficient permissions", errorMessage(t, rec))
	})

	t.Run("admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), Principal{Subject: "admin@example.com", Role: domain.RoleAdmin}))
		rec := httptest.NewRecorder()
		RequireRole(domain.RoleAdmin)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestHandleError(t *testing.T) {
	errNotFound := errors.New("thing not found")
	mappings := []ErrorMapping{
		{Error: errNotFound, Status: http.StatusNotFound},
	}

	t.Run("mapped", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(context.Background(), rec, errors.Join(errNotFound), mappings)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "thing not found", errorMessage(t, rec))
	})

	t.Run("unmapped", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(context.Background(), rec, errors.New("boom"), mappings)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal error", errorMessage(t, rec))
	})

	t.Run("aborted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(context.Background(), rec, fmt.Errorf("list checks: %w", context.DeadlineExceeded), mappings)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRequestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLoggerMiddleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { Text(w, http.StatusOK, "OK") })
	r.Get("/incidents/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctxlog.FromContext(r.Context()).Info("handler log")
		Error(w, http.StatusNotFound, "incident not found")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, buf.String(), "successful probes are logged at debug")

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/incidents/42", nil))
	out := buf.String()
	assert.Contains(t, out, "handler log")
	assert.Contains(t, out, "request_id=")
	assert.Contains(t, out, "route=/incidents/{id}")
	assert.Contains(t, out, "status=404")
}

func TestMetricsMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Post("/incidents/{id}/resolve", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/incidents/abc/resolve", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	observed := metrics.HTTPRequestDuration.WithLabelValues(http.MethodPost, "/incidents/{id}/resolve", "204").(prometheus.Metric)
	var m dto.Metric
	require.NoError(t, observed.Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestDecodeAndValidate(t *testing.T) {
	type payload struct {
		Title string `json:"title" validate:"required"`
	}
	v := NewValidator()

	t.Run("invalid json", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
		err := DecodeAndValidate(req, v, &p)
		require.ErrorIs(t, err, ErrInvalidJSON)

		rec := httptest.NewRecorder()
		WriteDecodeError(rec, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid json", errorMessage(t, rec))
	})

	t.Run("unknown field", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x","extra":1}`))
		require.ErrorIs(t, DecodeAndValidate(req, v, &p), ErrInvalidJSON)
	})

	t.Run("validation failure", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":""}`))
		err := DecodeAndValidate(req, v, &p)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidJSON)

		rec := httptest.NewRecorder()
		WriteDecodeError(rec, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation error", errorMessage(t, rec))

		var body struct {
			Error struct {
				Details []FieldError `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []FieldError{{Field: "title", Message: "required"}}, body.Error.Details)
	})

	t.Run("trailing data", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"} {}`))
		require.ErrorIs(t, DecodeAndValidate(req, v, &p), ErrInvalidJSON)
	})

	t.Run("oversized body", func(t *testing.T) {
		var p payload
		big := `{"title":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		require.ErrorIs(t, DecodeAndValidate(req, v, &p), ErrInvalidJSON)
	})

	t.Run("valid", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`))
		require.NoError(t, DecodeAndValidate(req, v, &p))
		assert.Equal(t, "x", p.Title)
	})
}

func TestServiceRef_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		ref     ServiceRef
		want    string
		wantErr bool
	}{
		{"none", ServiceRef{}, "", false},
		{"camel case", ServiceRef{ServiceID: "a"}, "a", false},
		{"snake case", ServiceRef{SnakeID: "a"}, "a", false},
		{"server id", ServiceRef{ServerID: "a"}, "a", false},
		{"agreeing aliases", ServiceRef{ServiceID: "a", ServerID: "a"}, "a", false},
		{"conflicting aliases", ServiceRef{ServiceID: "a", SnakeID: "b"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ref.Resolve()
			if tt.wantErr {
				var fe FieldError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "serviceId", fe.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAndValidate_ServiceRefAliases(t *testing.T) {
	type body struct {
		ServiceRef
		Reason string `json:"reason"`
	}

	for _, raw := range []string{
		`{"serviceId":"c3934795","reason":"x"}`,
		`{"service_id":"c3934795","reason":"x"}`,
		`{"server_id":"c3934795","reason":"x"}`,
	} {
		var b body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		require.NoError(t, DecodeAndValidate(req, NewValidator(), &b), raw)

		id, err := b.Resolve()
		require.NoError(t, err)
		assert.Equal(t, "c3934795", id, raw)
	}
}
