package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/database"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// PostgresStore persists loop state through lib/pq.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetOverride(ctx context.Context, service string) (*models.ManualOverride, error) {
	query := `
		SELECT service, replicas, set_by, set_at
		FROM overrides
		WHERE service = $1`

	var o models.ManualOverride
	err := s.db.QueryRowContext(ctx, query, service).Scan(&o.Service, &o.Replicas, &o.SetBy, &o.SetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) SetOverride(ctx context.Context, o models.ManualOverride) error {
	query := `
		INSERT INTO overrides (service, replicas, set_by, set_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service)
		DO UPDATE SET replicas = $2, set_by = $3, set_at = $4`

	_, err := s.db.ExecContext(ctx, query, o.Service, o.Replicas, o.SetBy, o.SetAt)
	return err
}

func (s *PostgresStore) ClearOverride(ctx context.Context, service string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM overrides WHERE service = $1`, service)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context) ([]models.ManualOverride, error) {
	query := `
		SELECT service, replicas, set_by, set_at
		FROM overrides
		ORDER BY service`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []models.ManualOverride
	for rows.Next() {
		var o models.ManualOverride
		if err := rows.Scan(&o.Service, &o.Replicas, &o.SetBy, &o.SetAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}

	return overrides, rows.Err()
}

func (s *PostgresStore) GetState(ctx context.Context, service string) (*models.ScalingState, error) {
	query := `
		SELECT service, current_replicas, last_scaled_at
		FROM scaling_state
		WHERE service = $1`

	var st models.ScalingState
	err := s.db.QueryRowContext(ctx, query, service).Scan(&st.Service, &st.CurrentReplicas, &st.LastScaledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) SetState(ctx context.Context, st models.ScalingState) error {
	_, err := s.db.ExecContext(ctx, upsertStateQuery, st.Service, st.CurrentReplicas, st.LastScaledAt)
	return err
}

func (s *PostgresStore) AppendLog(ctx context.Context, e *models.ScalingLogEntry) error {
	return s.db.QueryRowContext(ctx, appendLogQuery,
		e.Timestamp, e.Service, e.Action, e.FromReplicas, e.ToReplicas, e.Reason,
	).Scan(&e.ID)
}

func (s *PostgresStore) QueryLog(ctx context.Context, service string, from, to time.Time, limit int) ([]models.ScalingLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, timestamp, service, action, from_replicas, to_replicas, reason
		FROM scaling_log
		WHERE service = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp DESC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, service, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ScalingLogEntry
	for rows.Next() {
		var e models.ScalingLogEntry
		err := rows.Scan(&e.ID, &e.Timestamp, &e.Service, &e.Action, &e.FromReplicas, &e.ToReplicas, &e.Reason)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// RecordScaling writes the audit entry and the new state in one
// transaction.
func (s *PostgresStore) RecordScaling(ctx context.Context, e *models.ScalingLogEntry, st models.ScalingState) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, appendLogQuery,
			e.Timestamp, e.Service, e.Action, e.FromReplicas, e.ToReplicas, e.Reason,
		).Scan(&e.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, upsertStateQuery, st.Service, st.CurrentReplicas, st.LastScaledAt)
		return err
	})
}

func (s *PostgresStore) Close() error {
	return nil
}

const appendLogQuery = `
	INSERT INTO scaling_log (timestamp, service, action, from_replicas, to_replicas, reason)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`

const upsertStateQuery = `
	INSERT INTO scaling_state (service, current_replicas, last_scaled_at, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (service)
	DO UPDATE SET current_replicas = $2, last_scaled_at = $3, updated_at = NOW()`
