package events

import (
	"context"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/notifier"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

const (
	// A single failed action retries next tick; the second consecutive
	// failure for the same service pages.
	failureAlertThreshold = 2
	// Vetoes are routine (cooldowns fire constantly). A service vetoed
	// this many times without an applied action in between is stuck.
	vetoStormThreshold = 5
)

// AlertDispatcher turns the alert-worthy slice of the event stream into
// notifier calls. It runs on its own goroutines: a slow or dead webhook
// can never stall the control loop, only drop alerts.
type AlertDispatcher struct {
	notifier  notifier.Notifier
	eventChan <-chan *models.Event
	timeout   time.Duration
	queue     chan models.Alert

	// Owned by the consume goroutine.
	failures map[string]int
	vetoes   map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAlertDispatcher subscribes to the bus and prepares the delivery
// queue. Call Start to begin consuming.
func NewAlertDispatcher(bus *EventBus, n notifier.Notifier, cfg config.AlertingConfig) *AlertDispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AlertDispatcher{
		notifier:  n,
		eventChan: bus.SubscribeAll(),
		timeout:   cfg.Timeout,
		queue:     make(chan models.Alert, queueSize),
		failures:  make(map[string]int),
		vetoes:    make(map[string]int),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (d *AlertDispatcher) Start() {
	d.wg.Add(2)
	go d.consume()
	go d.deliver()
}

func (d *AlertDispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *AlertDispatcher) consume() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.eventChan:
			if !ok {
				return
			}
			alert, send := d.evaluate(event)
			if !send {
				continue
			}
			select {
			case d.queue <- alert:
			default:
				logger.WithComponent("alerts").
					Warnf("Alert queue full, dropping alert: %s", alert.Title)
			}
		}
	}
}

func (d *AlertDispatcher) deliver() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case alert := <-d.queue:
			ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
			err := d.notifier.Send(ctx, alert)
			cancel()
			if err != nil {
				logger.WithComponent("alerts").WithError(err).
					Warnf("Alert delivery failed via %s", d.notifier.Name())
			}
		}
	}
}

// evaluate decides whether this event becomes an alert. Most alertable
// events pass straight through; scaling failures and vetoes are gated
// on repetition per service, and an applied action resets both gates.
func (d *AlertDispatcher) evaluate(event *models.Event) (models.Alert, bool) {
	switch event.Type {
	case models.EventTypeScalingComplete:
		delete(d.failures, event.Service)
		delete(d.vetoes, event.Service)
		return models.Alert{}, false

	case models.EventTypeScalingStarted:
		delete(d.vetoes, event.Service)
		return models.Alert{}, false

	case models.EventTypeScalingFailed:
		d.failures[event.Service]++
		if d.failures[event.Service] < failureAlertThreshold {
			return models.Alert{}, false
		}
		return d.alertFrom(event, "Repeated scaling failures"), true

	case models.EventTypeDecisionVetoed:
		d.vetoes[event.Service]++
		if d.vetoes[event.Service]%vetoStormThreshold != 0 {
			return models.Alert{}, false
		}
		return d.alertFrom(event, "Scaling decision veto storm"), true

	case models.EventTypeObservabilityDegraded:
		return d.alertFrom(event, "Metrics signal degraded"), true
	case models.EventTypeOverrideSet:
		return d.alertFrom(event, "Manual override set"), true
	case models.EventTypeOverrideCleared:
		return d.alertFrom(event, "Manual override cleared"), true
	case models.EventTypeEmergencyEntered:
		return d.alertFrom(event, "Cluster emergency"), true
	case models.EventTypeEmergencyExited:
		return d.alertFrom(event, "Cluster emergency resolved"), true
	case models.EventTypeTickSkipped:
		return d.alertFrom(event, "Tick skipped"), true
	case models.EventTypeError:
		return d.alertFrom(event, "Control loop error"), true
	}
	return models.Alert{}, false
}

func (d *AlertDispatcher) alertFrom(event *models.Event, title string) models.Alert {
	return models.Alert{
		Title:     title,
		Message:   event.Message,
		Severity:  event.Severity,
		Service:   event.Service,
		Timestamp: event.Timestamp,
	}
}
