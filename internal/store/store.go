// Package store persists the loop's durable state: manual overrides,
// per-service scaling state, and the append-only scaling log. The
// interface is injected everywhere so the Postgres backend and the
// in-memory backend are interchangeable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")
)

type Store interface {
	// GetOverride returns the active override for service, or ErrNotFound.
	GetOverride(ctx context.Context, service string) (*models.ManualOverride, error)
	// SetOverride creates or replaces the single override for a service.
	SetOverride(ctx context.Context, o models.ManualOverride) error
	// ClearOverride removes the override; ErrNotFound when none was active.
	ClearOverride(ctx context.Context, service string) error
	ListOverrides(ctx context.Context) ([]models.ManualOverride, error)

	// GetState returns the durable scaling state, or ErrNotFound before
	// the first verified scaling action.
	GetState(ctx context.Context, service string) (*models.ScalingState, error)
	SetState(ctx context.Context, s models.ScalingState) error

	// AppendLog appends an audit entry and fills its ID.
	AppendLog(ctx context.Context, e *models.ScalingLogEntry) error
	// QueryLog returns entries for a service inside [from, to], newest
	// first, capped at limit.
	QueryLog(ctx context.Context, service string, from, to time.Time, limit int) ([]models.ScalingLogEntry, error)

	// RecordScaling appends the audit entry and updates the scaling state
	// as one unit, so a verified action is never half-recorded.
	RecordScaling(ctx context.Context, e *models.ScalingLogEntry, s models.ScalingState) error

	Close() error
}
