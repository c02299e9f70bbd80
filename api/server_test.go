package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/service-autoscaler/internal/auth"
	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/events"
	"github.com/OldStager01/service-autoscaler/internal/governor"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/internal/telemetry"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

type fakeLoop struct {
	mu       sync.Mutex
	ticks    int
	mode     governor.Mode
	lastTick time.Time
}

func (f *fakeLoop) Mode() governor.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mode == "" {
		return governor.ModeNormal
	}
	return f.mode
}

func (f *fakeLoop) LastSuccessfulTick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTick
}

func (f *fakeLoop) RunTick(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
}

func (f *fakeLoop) tickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

type serverFixture struct {
	server  *Server
	cfg     *config.Config
	store   store.Store
	runtime *runtime.FakeRuntime
	loop    *fakeLoop
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)

	cfg := &config.Config{
		API: config.APIConfig{
			Enabled:           true,
			Port:              0,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      5 * time.Second,
			RateLimit:         1000,
			JWTSecret:         "test-secret",
			JWTDuration:       time.Hour,
			JWTIssuer:         "service-autoscaler",
			AdminUsername:     "admin",
			AdminPasswordHash: hash,
			DefaultLimit:      50,
			MaxLimit:          500,
		},
		Governor: config.GovernorConfig{Cooldown: 5 * time.Minute},
		Services: []models.ServiceSpec{
			{Name: "api", MinReplicas: 2, MaxReplicas: 10, HealthCheckPath: "/healthz"},
			{Name: "worker", MinReplicas: 1, MaxReplicas: 5, HealthCheckPath: "/healthz"},
		},
	}

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	rt := runtime.NewFakeRuntime(cfg.Services)
	rt.Seed("api", 3)
	rt.Seed("worker", 1)

	bus := events.NewEventBus(64)
	t.Cleanup(bus.Close)

	loop := &fakeLoop{lastTick: time.Now().Add(-10 * time.Second)}

	srv := NewServer(cfg, Deps{
		Loop:      loop,
		Events:    bus,
		Publisher: events.NewPublisher(bus),
		Store:     st,
		Governor:  governor.New(st, cfg.Governor),
		Runtime:   rt,
		Querier:   collector.NewStaticQuerier(),
		Telemetry: telemetry.New(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return &serverFixture{server: srv, cfg: cfg, store: st, runtime: rt, loop: loop}
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) login(t *testing.T) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token    string `json:"token"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "admin", resp.Username)
	return resp.Token
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newServerFixture(t)

	for _, path := range []string{"/api/v1/services", "/api/v1/overrides", "/api/v1/services/api/log"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/ticks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/services", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListServices(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/services", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Services []struct {
			Name             string `json:"name"`
			MinReplicas      int    `json:"min_replicas"`
			MaxReplicas      int    `json:"max_replicas"`
			ObservedReplicas int    `json:"observed_replicas"`
		} `json:"services"`
		Count int    `json:"count"`
		Mode  string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "normal", resp.Mode)
	assert.Equal(t, "api", resp.Services[0].Name)
	assert.Equal(t, 3, resp.Services[0].ObservedReplicas)
	assert.Equal(t, 2, resp.Services[0].MinReplicas)
	assert.Equal(t, 10, resp.Services[0].MaxReplicas)
	assert.Equal(t, "worker", resp.Services[1].Name)
	assert.Equal(t, 1, resp.Services[1].ObservedReplicas)
}

func TestOverrideLifecycle(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t)

	// Out of bounds is rejected without touching the store.
	rec := f.do(t, http.MethodPut, "/api/v1/services/api/override", token, map[string]int{"replicas": 50})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/services/nope/override", token, map[string]int{"replicas": 3})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/services/api/override", token, map[string]int{"replicas": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var o models.ManualOverride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "api", o.Service)
	assert.Equal(t, 5, o.Replicas)
	assert.Equal(t, "admin", o.SetBy)

	rec = f.do(t, http.MethodGet, "/api/v1/overrides", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = f.do(t, http.MethodDelete, "/api/v1/services/api/override", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/services/api/override", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScalingLogQuery(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t)

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.AppendLog(ctx, &models.ScalingLogEntry{
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Service:      "api",
			Action:       models.ActionScaleUp,
			FromReplicas: 2 + i,
			ToReplicas:   3 + i,
			Reason:       "cpu above threshold",
		}))
	}

	rec := f.do(t, http.MethodGet, "/api/v1/services/api/log", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Service string                   `json:"service"`
		Entries []models.ScalingLogEntry `json:"entries"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "api", resp.Service)
	// Newest first.
	assert.Equal(t, 5, resp.Entries[0].ToReplicas)

	rec = f.do(t, http.MethodGet, "/api/v1/services/api/log?limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/services/api/log?from=garbage", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/services/nope/log", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualTick(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/v1/ticks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.loop.tickCount())

	var resp struct {
		Status string `json:"status"`
		Mode   string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tick complete", resp.Status)
	assert.Equal(t, "normal", resp.Mode)
}

func TestHealthEndpoints(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string            `json:"status"`
		Mode   string            `json:"mode"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "normal", resp.Mode)
	assert.Equal(t, "healthy", resp.Checks["store"])
	assert.Equal(t, "healthy", resp.Checks["metrics"])
	assert.Equal(t, "healthy", resp.Checks["runtime"])
}

func TestHealthReportsFailingRuntime(t *testing.T) {
	f := newServerFixture(t)

	f.runtime.GetErr = errors.New("docker daemon unreachable")

	rec := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Checks["runtime"], "unhealthy")
	assert.Equal(t, "healthy", resp.Checks["store"])
}

func TestLoginRateLimit(t *testing.T) {
	f := newServerFixture(t)

	bad := map[string]string{"username": "admin", "password": "wrong"}
	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", bad)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", bad)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSecurityHeadersPresent(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
