// ABOUTME: Durable storage for the offline write queue
// ABOUTME: Mutations are kept in enqueue order (seq) and deleted only after a confirmed replay
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/leadsheet/models"
)

var (
	ErrMutationNotFound = errors.New("queued mutation not found")
	ErrInvalidMutation  = errors.New("invalid mutation")
)

// mutationPayload is the JSON stored in offline_queue.payload.
type mutationPayload struct {
	Row      []string          `json:"row,omitempty"`
	Identity *models.Identity  `json:"identity,omitempty"`
	Changes  map[string]string `json:"changes,omitempty"`
}

// QueueRepository stores queued mutations.
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Append stores m at the back of the queue. m.ID must be set.
func (r *QueueRepository) Append(ctx context.Context, m *models.Mutation) error {
	if m == nil || m.ID == "" {
		return ErrInvalidMutation
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMutation, err)
	}

	payload, err := json.Marshal(mutationPayload{Row: m.Row, Identity: m.Identity, Changes: m.Changes})
	if err != nil {
		return fmt.Errorf("failed to encode mutation: %w", err)
	}

	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO offline_queue (id, kind, sheet, payload, attempts, last_error, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, string(m.Kind), m.TargetSheet, string(payload), m.Attempts, nullString(m.LastError), m.EnqueuedAt, m.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return nil
}

// List returns every queued mutation in enqueue order.
func (r *QueueRepository) List(ctx context.Context) ([]models.Mutation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, sheet, payload, attempts, last_error, enqueued_at
		FROM offline_queue
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Mutation
	for rows.Next() {
		var m models.Mutation
		var kind, payload string
		var lastError sql.NullString
		if err := rows.Scan(&m.ID, &kind, &m.TargetSheet, &payload, &m.Attempts, &lastError, &m.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queued mutation: %w", err)
		}
		var p mutationPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("failed to decode queued mutation %s: %w", m.ID, err)
		}
		m.Kind = models.MutationKind(kind)
		m.Row = p.Row
		m.Identity = p.Identity
		m.Changes = p.Changes
		m.LastError = lastError.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue: %w", err)
	}
	return out, nil
}

// Delete removes a mutation after it has been replayed.
func (r *QueueRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queued mutation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMutationNotFound
	}
	return nil
}

// RecordFailure bumps the attempt count of a mutation in place, keeping its
// queue position.
func (r *QueueRepository) RecordFailure(ctx context.Context, id, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE offline_queue
		SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?
	`, nullString(errMsg), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record queue failure: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMutationNotFound
	}
	return nil
}

// Count returns the number of queued mutations.
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
