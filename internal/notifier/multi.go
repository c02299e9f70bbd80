package notifier

import (
	"context"
	"errors"
	"strings"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// MultiNotifier fans one alert out to several destinations and reports
// every failure. One broken destination does not stop the others.
type MultiNotifier struct {
	targets []Notifier
}

func NewMultiNotifier(targets ...Notifier) *MultiNotifier {
	return &MultiNotifier{targets: targets}
}

func (n *MultiNotifier) Name() string {
	names := make([]string, len(n.targets))
	for i, t := range n.targets {
		names[i] = t.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (n *MultiNotifier) Send(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, t := range n.targets {
		if err := t.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
