//go:build integration

package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opslink/statuswatch/internal/app"
	"github.com/opslink/statuswatch/internal/config"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@opslink.example"
	adminPassword = "integration-password"
	serviceID     = "c3934795"
)

// fakePanel serves a settable lifecycle state for every server.
type fakePanel struct {
	state atomic.Value
}

func (p *fakePanel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/resources") || r.Header.Get("Authorization") != "Bearer panel-key" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"object":"stats","attributes":{"current_state":"`+p.state.Load().(string)+`"}}`)
}

// webhook records Mattermost payloads.
type webhook struct {
	mu    sync.Mutex
	texts []string
}

func (h *webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.mu.Lock()
	h.texts = append(h.texts, body.Text)
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (h *webhook) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

type testEnv struct {
	app    *app.App
	client *testutil.Client
	panel  *fakePanel
	hook   *webhook
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pg, err := testutil.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	rd, err := testutil.NewRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Terminate(context.Background()) })

	panel := &fakePanel{}
	panel.state.Store("running")
	panelServer := httptest.NewServer(panel)
	t.Cleanup(panelServer.Close)

	hook := &webhook{}
	hookServer := httptest.NewServer(hook)
	t.Cleanup(hookServer.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0", MetricsPort: "0"},
		Database: config.DatabaseConfig{
			Driver:          config.DriverPostgres,
			URL:             pg.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
			AutoMigrate:     true,
		},
		Log:   config.LogConfig{Level: "debug", Format: "text"},
		JWT:   config.JWTConfig{SecretKey: "integration-secret", AccessTokenDuration: time.Hour},
		Admin: config.AdminConfig{Email: adminEmail, PasswordHash: string(hash)},
		Monitor: config.MonitorConfig{
			PanelURL:          panelServer.URL,
			APIKey:            "panel-key",
			Interval:          time.Minute,
			PollTimeout:       5 * time.Second,
			Concurrency:       2,
			MaintenancePolicy: config.MaintenancePolicyRecord,
			Services: []domain.Service{
				{ID: serviceID, Name: "Survival"},
			},
		},
		Status: config.StatusConfig{HistoryWindow: 24 * time.Hour, IncidentWindow: 24 * time.Hour},
		Cache:  config.CacheConfig{RedisURL: rd.URL, StatusTTL: time.Minute},
		Notifications: config.NotificationsConfig{
			Enabled:     true,
			QueueSize:   10,
			NumWorkers:  1,
			SendTimeout: 5 * time.Second,
			BaseURL:     "https://status.opslink.example",
			Mattermost:  config.MattermostConfig{WebhookURL: hookServer.URL, Username: "Status"},
		},
	}
	require.NoError(t, cfg.Validate())

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})

	server := httptest.NewServer(application.Router())
	t.Cleanup(server.Close)

	validator, err := testutil.LoadOpenAPIValidator("../../api/openapi/openapi.yaml")
	require.NoError(t, err)

	return &testEnv{
		app:    application,
		client: testutil.NewClient(t, server.URL, validator),
		panel:  panel,
		hook:   hook,
	}
}

func (e *testEnv) tick(t *testing.T, state string) {
	t.Helper()
	e.panel.state.Store(state)
	e.app.Scheduler().Tick(context.Background())
}

func (e *testEnv) snapshot(t *testing.T) map[string]interface{} {
	t.Helper()
	resp, err := e.client.GET("/api/v1/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap map[string]interface{}
	testutil.DecodeJSON(t, resp, &snap)
	return snap
}

func TestOutageLifecycle(t *testing.T) {
	env := setup(t)
	c := env.client

	env.tick(t, "running")

	snap := env.snapshot(t)
	services := snap["services"].([]interface{})
	require.Len(t, services, 1)
	first := services[0].(map[string]interface{})
	assert.Equal(t, "up", first["status"])
	assert.Nil(t, first["incident"])
	assert.Nil(t, snap["maintenance"])

	env.tick(t, "offline")

	snap = env.snapshot(t)
	first = snap["services"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "down", first["status"])
	require.NotNil(t, first["incident"])
	incidentID := first["incident"].(map[string]interface{})["id"].(string)
	require.Len(t, snap["incidents"].([]interface{}), 1)

	resp, err := c.GET("/api/v1/incidents/" + incidentID + "/updates")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updates []domain.IncidentUpdate
	testutil.DecodeJSON(t, resp, &updates)
	require.Len(t, updates, 1)

	require.Eventually(t, func() bool { return len(env.hook.received()) == 1 }, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, env.hook.received()[0], "Survival")

	// A second down tick changes nothing.
	env.tick(t, "offline")

	c.Login(adminEmail, adminPassword)

	resp, err = c.GET("/api/v1/incidents?open=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var open struct {
		Data []domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &open)
	require.Len(t, open.Data, 1)
	assert.Equal(t, incidentID, open.Data[0].ID)

	resp, err = c.POST("/api/v1/incidents/"+incidentID+"/comment", map[string]string{
		"message": "Host provider is investigating",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	env.tick(t, "running")

	resp, err = c.GET("/api/v1/incidents/" + incidentID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &resolved)
	assert.NotNil(t, resolved.Data.EndTime)

	resp, err = c.GET("/api/v1/incident/" + incidentID + "/updates")
	require.NoError(t, err)
	testutil.DecodeJSON(t, resp, &updates)
	require.Len(t, updates, 3)
	assert.Equal(t, "Host provider is investigating", updates[1].Message)

	snap = env.snapshot(t)
	first = snap["services"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "up", first["status"])
	assert.Nil(t, first["incident"])
	assert.Less(t, first["uptime"].(float64), 100.0)

	require.Eventually(t, func() bool { return len(env.hook.received()) == 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestAdminEndpoints(t *testing.T) {
	env := setup(t)
	c := env.client

	resp, err := c.WithoutValidation().GET("/api/v1/incidents")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	c.Login(adminEmail, adminPassword)

	resp, err = c.GET("/api/v1/auth/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		Data domain.Admin `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &me)
	assert.Equal(t, adminEmail, me.Data.Email)

	resp, err = c.POST("/api/v1/incidents", map[string]string{
		"serviceId": serviceID,
		"title":     "Database migration",
		"reason":    "Planned schema change overran",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &created)
	assert.Equal(t, domain.SeverityCritical, created.Data.Severity)

	resp, err = c.POST("/api/v1/incidents", map[string]string{
		"serviceId": serviceID,
		"title":     "Again",
		"reason":    "Duplicate",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = c.POST("/api/v1/incidents/"+created.Data.ID+"/resolve", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	start := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	resp, err = c.POST("/api/v1/maintenance", map[string]interface{}{
		"start_time": start,
		"end_time":   start.Add(2 * time.Hour),
		"reason":     "Hardware upgrade",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = c.GET("/api/v1/maintenance")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var windows struct {
		Data []domain.MaintenanceWindow `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &windows)
	require.Len(t, windows.Data, 1)
	assert.True(t, windows.Data[0].IsGlobal())

	snap := env.snapshot(t)
	require.NotNil(t, snap["maintenance"])
	assert.Equal(t, "Hardware upgrade", snap["maintenance"].(map[string]interface{})["reason"])

	resp, err = c.WithoutValidation().POST("/api/v1/maintenance", map[string]interface{}{
		"start_time": start,
		"end_time":   start.Add(-time.Hour),
		"reason":     "Backwards",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	env := setup(t)

	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		resp, err := env.client.GET(path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}
