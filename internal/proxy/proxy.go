package proxy

import (
	"context"
)

// Router is the routing layer the reconciler rewrites. SetUpstreams
// replaces a service's upstream set with exactly addrs and reports
// whether anything actually changed; Reload makes the change live.
// Callers skip Reload when nothing changed.
type Router interface {
	SetUpstreams(service string, addrs []string) (changed bool, err error)
	Reload(ctx context.Context) error
}
