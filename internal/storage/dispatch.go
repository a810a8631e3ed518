package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("record not found")

// RecordDispatch stores the outcome of a dispatch attempt.
func (p *PostgresClient) RecordDispatch(ctx context.Context, rec *DispatchRecord) error {
	var request []byte
	if len(rec.Request) > 0 {
		request = rec.Request
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO dispatches (id, session_id, device_name, device_ip, action_count,
		                        request, outcome, status_code, detail, controller_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.SessionID, rec.DeviceName, rec.DeviceIP, rec.ActionCount,
		request, string(rec.Outcome), rec.StatusCode, rec.Detail, rec.ControllerRef, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return nil
}

func (p *PostgresClient) GetDispatch(ctx context.Context, id uuid.UUID) (*DispatchRecord, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, session_id, device_name, device_ip, action_count, request,
		       outcome, status_code, detail, controller_ref, created_at
		FROM dispatches
		WHERE id = $1
	`, id)

	rec, err := scanDispatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: dispatch %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return rec, nil
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ClampLimit maps a requested page size onto (0, MaxListLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// ListDispatches returns the newest records first. An empty deviceIP lists
// all devices.
func (p *PostgresClient) ListDispatches(ctx context.Context, deviceIP string, limit int) ([]*DispatchRecord, error) {
	limit = ClampLimit(limit)

	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, device_name, device_ip, action_count, request,
		       outcome, status_code, detail, controller_ref, created_at
		FROM dispatches
		WHERE ($1 = '' OR device_ip = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, deviceIP, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer rows.Close()

	records := make([]*DispatchRecord, 0)
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dispatches: %w", err)
	}
	return records, nil
}

func scanDispatch(row pgx.Row) (*DispatchRecord, error) {
	var rec DispatchRecord
	var outcome string
	var request []byte
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.DeviceName, &rec.DeviceIP, &rec.ActionCount,
		&request, &outcome, &rec.StatusCode, &rec.Detail, &rec.ControllerRef, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Outcome = Outcome(outcome)
	rec.Request = request
	return &rec, nil
}
