// Package notifier delivers alerts to operators. Delivery is best
// effort: a failed notification is logged and dropped, never retried
// inline and never allowed to slow the control loop down.
package notifier

import (
	"context"
	"fmt"

	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// Notifier sends one alert to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert models.Alert) error
}

// New builds the notifier named by the alerting config.
func New(cfg config.AlertingConfig) (Notifier, error) {
	switch cfg.Notifier {
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("alerting.webhook_url required for the webhook notifier")
		}
		return NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout), nil
	case "log":
		return NewLogNotifier(), nil
	case "none", "":
		return NopNotifier{}, nil
	default:
		return nil, fmt.Errorf("unsupported notifier %q", cfg.Notifier)
	}
}

// NopNotifier discards every alert.
type NopNotifier struct{}

func (NopNotifier) Name() string { return "none" }

func (NopNotifier) Send(context.Context, models.Alert) error { return nil }
