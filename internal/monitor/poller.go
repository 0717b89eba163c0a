// Package monitor polls the control panel, classifies results and drives the incident pipeline.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/pkg/metrics"
	"github.com/opslink/statuswatch/internal/version"
	"golang.org/x/time/rate"
)

// RawOutcome is the uninterpreted result of one poll.
// Failed is set for every way the panel could not be asked or did not answer usefully;
// Err carries the cause for logging only.
type RawOutcome struct {
	LifecycleState string
	Failed         bool
	Err            error
}

// Poller fetches the lifecycle state of a service.
type Poller interface {
	Poll(ctx context.Context, service domain.Service) RawOutcome
}

// PanelConfig contains control panel client settings.
type PanelConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// PanelPoller queries the panel's client resources endpoint.
type PanelPoller struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewPanelPoller creates a panel poller. A zero RateLimit disables rate limiting.
func NewPanelPoller(cfg PanelConfig) *PanelPoller {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &PanelPoller{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
	}
}

type resourcesResponse struct {
	Attributes *struct {
		CurrentState string `json:"current_state"`
	} `json:"attributes"`
}

// Poll performs one request. It never returns an error: failures become Failed outcomes.
func (p *PanelPoller) Poll(ctx context.Context, service domain.Service) RawOutcome {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failed(fmt.Errorf("rate limit wait: %w", err))
	}

	start := time.Now()
	defer func() {
		metrics.PollDuration.WithLabelValues(service.ID).Observe(time.Since(start).Seconds())
	}()

	state, err := p.fetchState(ctx, service.ID)
	if err != nil {
		return failed(err)
	}
	return RawOutcome{LifecycleState: state}
}

func (p *PanelPoller) fetchState(ctx context.Context, serviceID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/client/servers/%s/resources", p.baseURL, url.PathEscape(serviceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("panel returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload resourcesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if payload.Attributes == nil {
		return "", errors.New("response has no attributes")
	}

	return payload.Attributes.CurrentState, nil
}

func failed(err error) RawOutcome {
	return RawOutcome{Failed: true, Err: err}
}
