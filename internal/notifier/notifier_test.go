package notifier

import (
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

	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

type captureNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(_ context.Context, a models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func testAlert() models.Alert {
	return models.Alert{
		Title:     "Scaling failed",
		Message:   "api: converge timed out",
		Severity:  models.SeverityCritical,
		Service:   "api",
		Timestamp: time.Now(),
	}
}

func TestNew(t *testing.T) {
	n, err := New(config.AlertingConfig{Notifier: "log"})
	require.NoError(t, err)
	assert.Equal(t, "log", n.Name())

	n, err = New(config.AlertingConfig{Notifier: "none"})
	require.NoError(t, err)
	assert.Equal(t, "none", n.Name())
	assert.NoError(t, n.Send(context.Background(), testAlert()))

	n, err = New(config.AlertingConfig{Notifier: "webhook", WebhookURL: "http://127.0.0.1:9/hook"})
	require.NoError(t, err)
	assert.Equal(t, "webhook", n.Name())

	_, err = New(config.AlertingConfig{Notifier: "webhook"})
	assert.ErrorContains(t, err, "webhook_url")

	_, err = New(config.AlertingConfig{Notifier: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported notifier")
}

func TestWebhookNotifier_Send(t *testing.T) {
	var (
		mu       sync.Mutex
		received models.Alert
		ctype    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		ctype = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	require.NoError(t, n.Send(context.Background(), testAlert()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, "Scaling failed", received.Title)
	assert.Equal(t, models.SeverityCritical, received.Severity)
	assert.Equal(t, "api", received.Service)
}

func TestWebhookNotifier_Failures(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer broken.Close()

	n := NewWebhookNotifier(broken.URL, time.Second)
	assert.ErrorContains(t, n.Send(context.Background(), testAlert()), "502")

	// Nothing listens on port 1.
	n = NewWebhookNotifier("http://127.0.0.1:1/hook", 100*time.Millisecond)
	assert.Error(t, n.Send(context.Background(), testAlert()))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	n = NewWebhookNotifier(slow.URL, 20*time.Millisecond)
	assert.Error(t, n.Send(context.Background(), testAlert()))
}

func TestMultiNotifier(t *testing.T) {
	ok := &captureNotifier{}
	bad := &captureNotifier{err: errors.New("downstream offline")}

	m := NewMultiNotifier(ok, bad)
	assert.Equal(t, "multi(capture,capture)", m.Name())

	err := m.Send(context.Background(), testAlert())
	assert.ErrorContains(t, err, "downstream offline")

	// The failure of one target never skips the others.
	assert.Len(t, ok.alerts, 1)
	assert.Len(t, bad.alerts, 1)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Send(context.Background(), testAlert()))
}
