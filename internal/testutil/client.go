package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Client calls the statuswatch API over HTTP and checks every response
// against the OpenAPI document when a validator is set.
type Client struct {
	BaseURL   string
	Token     string
	Validator *OpenAPIValidator

	http *http.Client
	t    *testing.T
}

func NewClient(t *testing.T, baseURL string, validator *OpenAPIValidator) *Client {
	return &Client{
		BaseURL:   baseURL,
		Validator: validator,
		http:      &http.Client{Timeout: 30 * time.Second},
		t:         t,
	}
}

// WithoutValidation is for requests that are expected to break the contract.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.Validator = nil
	return &clone
}

// Login exchanges admin credentials for a bearer token used by later calls.
func (c *Client) Login(email, password string) {
	c.t.Helper()

	resp, err := c.POST("/api/v1/auth/login", map[string]string{"email": email, "password": password})
	require.NoError(c.t, err, "login request")
	require.Equal(c.t, http.StatusOK, resp.StatusCode, "login: %s", ReadBody(c.t, resp))

	var token struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	DecodeJSON(c.t, resp, &token)
	require.NotEmpty(c.t, token.Data.Token)
	c.Token = token.Data.Token
}

func (c *Client) GET(path string) (*http.Response, error) {
	return c.send(http.MethodGet, path, nil)
}

// POST sends body encoded as JSON. A nil body sends no payload.
func (c *Client) POST(path string, body interface{}) (*http.Response, error) {
	return c.send(http.MethodPost, path, body)
}

func (c *Client) send(method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if c.Validator != nil {
		// The transport consumed the first body.
		req.Body = io.NopCloser(bytes.NewReader(payload))
		c.Validator.ValidateResponse(c.t, req, resp)
	}
	return resp, nil
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v), "decode %s response", resp.Request.URL.Path)
}

// ReadBody returns and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
