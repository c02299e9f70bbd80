package notifier

import (
	"context"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// LogNotifier writes alerts to the structured log. The default in dev
// and demo setups where no webhook receiver exists.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, alert models.Alert) error {
	entry := logger.WithComponent("alert").
		WithField("title", alert.Title).
		WithField("severity", string(alert.Severity))
	if alert.Service != "" {
		entry = entry.WithField("service", alert.Service)
	}

	switch alert.Severity {
	case models.SeverityCritical:
		entry.Error(alert.Message)
	default:
		entry.Warn(alert.Message)
	}
	return nil
}
