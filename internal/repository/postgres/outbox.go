package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO outbox_events (id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", mapError(err))
	}
	return nil
}

func (r *outboxRepository) FetchPending(ctx context.Context, limit, maxAttempts int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, status, attempts, last_error, created_at, processed_at
		FROM outbox_events
		WHERE status = $1 AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`
	var events []*model.OutboxEvent
	if err := sqlx.SelectContext(ctx, r.db, &events, query, model.OutboxStatusPending, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, event *model.OutboxEvent) error {
	now := time.Now().UTC()
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, last_error = NULL, processed_at = $2
		WHERE id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, now, event.ID); err != nil {
		return fmt.Errorf("failed to mark outbox event processed: %w", err)
	}
	event.Status = model.OutboxStatusProcessed
	event.Attempts++
	event.LastError = nil
	event.ProcessedAt = &now
	return nil
}

// MarkFailed records a delivery failure. Non-final failures stay pending so
// the next relay pass retries them.
func (r *outboxRepository) MarkFailed(ctx context.Context, event *model.OutboxEvent, cause error, final bool) error {
	status := model.OutboxStatusPending
	if final {
		status = model.OutboxStatusFailed
	}
	msg := cause.Error()
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, last_error = $2
		WHERE id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, status, msg, event.ID); err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	event.Status = status
	event.Attempts++
	event.LastError = &msg
	return nil
}
