package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := NewEventBus(16)
	defer bus.Close()

	decisions := bus.Subscribe(models.EventTypeDecisionMade)
	failures := bus.Subscribe(models.EventTypeScalingFailed)

	bus.Publish(models.NewEvent(models.EventTypeDecisionMade, "api", "decided"))
	bus.Publish(models.NewEvent(models.EventTypeScalingComplete, "api", "done"))

	select {
	case ev := <-decisions:
		assert.Equal(t, models.EventTypeDecisionMade, ev.Type)
		assert.Equal(t, "api", ev.Service)
	default:
		t.Fatal("expected a decision event")
	}
	assert.Empty(t, failures)
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(16)
	defer bus.Close()

	all := bus.SubscribeAll()

	bus.Publish(models.NewEvent(models.EventTypeDecisionMade, "api", "decided"))
	bus.Publish(models.NewEvent(models.EventTypeEmergencyEntered, "", "cpu over limit"))

	assert.Equal(t, models.EventTypeDecisionMade, (<-all).Type)
	assert.Equal(t, models.EventTypeEmergencyEntered, (<-all).Type)
}

func TestEventBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeDecisionMade)

	for i := 0; i < 3; i++ {
		bus.Publish(models.NewEvent(models.EventTypeDecisionMade, "api", "decided"))
	}

	assert.Len(t, ch, 1)
	assert.EqualValues(t, 2, bus.Dropped())
}

func TestEventBus_PublishAfterClose(t *testing.T) {
	bus := NewEventBus(4)
	ch := bus.SubscribeAll()
	bus.Close()

	// Must not panic or deliver.
	bus.Publish(models.NewEvent(models.EventTypeDecisionMade, "api", "decided"))

	_, open := <-ch
	assert.False(t, open)
}

func TestPublisher_SeverityAndTrace(t *testing.T) {
	bus := NewEventBus(16)
	defer bus.Close()
	all := bus.SubscribeAll()

	pub := NewPublisher(bus).WithTraceID("tick-42")

	clean := &models.MetricSnapshot{Service: "api", CPUPct: 40}
	pub.MetricSampled("api", clean)

	degraded := &models.MetricSnapshot{Service: "api"}
	degraded.MarkDegraded(models.SignalCPU)
	pub.MetricSampled("api", degraded)

	pub.ScalingFailed("api", models.ActionScaleUp, errors.New("converge timed out"))
	pub.DecisionVetoed("api", &models.ScalingDecision{Action: models.ActionScaleUp}, "cooldown active")

	ev := <-all
	assert.Equal(t, models.SeverityInfo, ev.Severity)
	assert.Equal(t, "tick-42", ev.TraceID)

	assert.Equal(t, models.SeverityWarning, (<-all).Severity)

	ev = <-all
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	assert.Contains(t, ev.Message, "converge timed out")

	ev = <-all
	assert.Equal(t, models.EventTypeDecisionVetoed, ev.Type)
	assert.Contains(t, ev.Message, "cooldown active")
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Title
	}
	return out
}

func newTestDispatcher(t *testing.T) (*EventBus, *Publisher, *recordingNotifier) {
	t.Helper()
	bus := NewEventBus(64)
	rec := &recordingNotifier{}
	d := NewAlertDispatcher(bus, rec, config.AlertingConfig{Timeout: time.Second, QueueSize: 16})
	d.Start()
	t.Cleanup(func() {
		d.Stop()
		bus.Close()
	})
	return bus, NewPublisher(bus), rec
}

func waitForAlerts(t *testing.T, rec *recordingNotifier, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.alerts) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAlertDispatcher_ForwardsAlertWorthyEvents(t *testing.T) {
	_, pub, rec := newTestDispatcher(t)

	// Routine events never page.
	pub.DecisionMade("api", &models.ScalingDecision{Action: models.ActionNoScale})
	pub.TickComplete(3, 120*time.Millisecond)

	pub.OverrideSet(&models.ManualOverride{Service: "api", Replicas: 5, SetBy: "oncall"})
	pub.EmergencyEntered("cluster cpu 94.0% over limit 90.0%")

	waitForAlerts(t, rec, 2)
	assert.Equal(t, []string{"Manual override set", "Cluster emergency"}, rec.titles())
}

func TestAlertDispatcher_GatesRepeatedFailures(t *testing.T) {
	_, pub, rec := newTestDispatcher(t)
	boom := errors.New("converge timed out")

	// First failure per service retries silently; per-service counters
	// are independent.
	pub.ScalingFailed("api", models.ActionScaleUp, boom)
	pub.ScalingFailed("web", models.ActionScaleUp, boom)
	pub.ScalingFailed("api", models.ActionScaleUp, boom)

	waitForAlerts(t, rec, 1)
	assert.Equal(t, []string{"Repeated scaling failures"}, rec.titles())

	// A completed action resets the gate.
	pub.ScalingComplete(&models.ScalingLogEntry{Service: "api", Action: models.ActionScaleUp, FromReplicas: 2, ToReplicas: 3})
	pub.ScalingFailed("api", models.ActionScaleUp, boom)
	pub.EmergencyEntered("cpu over limit")

	waitForAlerts(t, rec, 2)
	assert.Equal(t, []string{"Repeated scaling failures", "Cluster emergency"}, rec.titles())
}

func TestAlertDispatcher_VetoStorm(t *testing.T) {
	_, pub, rec := newTestDispatcher(t)
	decision := &models.ScalingDecision{Action: models.ActionScaleUp}

	for i := 0; i < 5; i++ {
		pub.DecisionVetoed("api", decision, "cooldown active")
	}
	waitForAlerts(t, rec, 1)
	assert.Equal(t, []string{"Scaling decision veto storm"}, rec.titles())

	// An applied action resets the storm counter.
	pub.ScalingStarted("api", models.ActionScaleUp, 2, 3)
	for i := 0; i < 4; i++ {
		pub.DecisionVetoed("api", decision, "cooldown active")
	}
	pub.EmergencyEntered("cpu over limit")

	waitForAlerts(t, rec, 2)
	assert.Equal(t, []string{"Scaling decision veto storm", "Cluster emergency"}, rec.titles())
}
