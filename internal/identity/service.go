// Package identity authenticates the configured administrator and issues access tokens.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opslink/statuswatch/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer               = "statuswatch"
	defaultTokenDuration = 12 * time.Hour
)

// Config describes the admin principal and token settings.
type Config struct {
	AdminEmail        string
	AdminPasswordHash string // bcrypt
	SecretKey         string
	TokenDuration     time.Duration
}

// Token is an issued access token.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service authenticates the admin and validates HS256 tokens.
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates a new identity service.
func NewService(config Config) *Service {
	if config.TokenDuration <= 0 {
		config.TokenDuration = defaultTokenDuration
	}
	config.AdminEmail = strings.TrimSpace(config.AdminEmail)
	return &Service{config: config, now: time.Now}
}

// Enabled reports whether an admin principal is configured.
func (s *Service) Enabled() bool {
	return s.config.AdminEmail != "" && s.config.AdminPasswordHash != "" && s.config.SecretKey != ""
}

// Login checks the admin credentials and issues a token.
func (s *Service) Login(_ context.Context, email, password string) (*Token, error) {
	if !s.Enabled() {
		return nil, ErrInvalidCredentials
	}

	emailOK := strings.EqualFold(strings.TrimSpace(email), s.config.AdminEmail)
	// The hash is always compared so a wrong email costs the same as a wrong password.
	passwordErr := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(password))
	if !emailOK || passwordErr != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.config.TokenDuration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.config.AdminEmail,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Token{Token: signed, ExpiresAt: expiresAt.UTC().Truncate(time.Second)}, nil
}

// ValidateToken implements httputil.TokenValidator.
func (s *Service) ValidateToken(_ context.Context, tokenString string) (string, domain.Role, error) {
	if s.config.SecretKey == "" {
		return "", "", ErrInvalidToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c,
		func(*jwt.Token) (interface{}, error) { return []byte(s.config.SecretKey), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if c.Subject != s.config.AdminEmail || c.Role != domain.RoleAdmin {
		return "", "", ErrInvalidToken
	}

	return c.Subject, c.Role, nil
}
