package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "admin@opslink.example"
	testPassword = "correct horse battery staple"
	testSecret   = "test-secret-key-with-enough-entropy"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	return NewService(Config{
		AdminEmail:        testEmail,
		AdminPasswordHash: string(hash),
		SecretKey:         testSecret,
		TokenDuration:     time.Hour,
	})
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.Login(ctx, "  ADMIN@opslink.example ", testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 5*time.Second)

	subject, role, err := svc.ValidateToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, testEmail, subject)
	assert.Equal(t, domain.RoleAdmin, role)

	_, err = svc.Login(ctx, testEmail, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "someone@else.example", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_NotConfigured(t *testing.T) {
	svc := NewService(Config{})
	assert.False(t, svc.Enabled())

	_, err := svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.ValidateToken(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sign := func(method jwt.SigningMethod, key interface{}, c claims) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() claims {
		return claims{
			Role: domain.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   testEmail,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"

	viewer := valid()
	viewer.Role = domain.RoleViewer

	otherSubject := valid()
	otherSubject.Subject = "intruder@example.com"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong key", sign(jwt.SigningMethodHS256, []byte("other-secret"), valid())},
		{"wrong algorithm", sign(jwt.SigningMethodHS512, []byte(testSecret), valid())},
		{"unsigned", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())},
		{"expired", sign(jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte(testSecret), noExpiry)},
		{"wrong issuer", sign(jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer)},
		{"not admin", sign(jwt.SigningMethodHS256, []byte(testSecret), viewer)},
		{"other subject", sign(jwt.SigningMethodHS256, []byte(testSecret), otherSubject)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.ValidateToken(ctx, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, _, err := svc.ValidateToken(ctx, sign(jwt.SigningMethodHS256, []byte(testSecret), valid()))
	assert.NoError(t, err)
}

func TestHandler(t *testing.T) {
	svc := newTestService(t)
	h := NewHandler(svc)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(svc))
		h.RegisterProtectedRoutes(r)
	})

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, post(`{`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"email":"not-an-email","password":"x"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(`{"email":"`+testEmail+`","password":"nope"}`).Code)

	rec := post(`{"email":"` + testEmail + `","password":"` + testPassword + `"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login struct {
		Data Token `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Data.Token)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me struct {
		Data domain.Admin `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, testEmail, me.Data.Email)
	assert.Equal(t, domain.RoleAdmin, me.Data.Role)
}

func TestHandler_LoginThrottle(t *testing.T) {
	h := NewHandler(newTestService(t))
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	attempt := func(remote, password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"`+testEmail+`","password":"`+password+`"}`))
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < loginBurst; i++ {
		assert.Equal(t, http.StatusUnauthorized, attempt("198.51.100.7:4000", "wrong").Code)
	}

	rec := attempt("198.51.100.7:4001", testPassword)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other addresses keep their own budget.
	assert.Equal(t, http.StatusOK, attempt("198.51.100.8:4000", testPassword).Code)
}
