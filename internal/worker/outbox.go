// Package worker relays transactional outbox events to their delivery
// channels.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/notification"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/pkg/metrics"
)

type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

// DeliveryFunc delivers one outbox event. A returned error leaves the event
// pending until MaxAttempts is reached.
type DeliveryFunc func(ctx context.Context, event *model.OutboxEvent) error

var errNoDelivery = errors.New("no delivery registered for event type")

type OutboxRelay struct {
	store    repository.Store
	cfg      Config
	delivery map[string]DeliveryFunc
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewOutboxRelay(store repository.Store, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*OutboxRelay, error) {
	if cfg.BatchSize <= 0 || cfg.PollInterval <= 0 || cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid outbox relay config: %+v", cfg)
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &OutboxRelay{
		store:    store,
		cfg:      cfg,
		delivery: make(map[string]DeliveryFunc),
		logger:   logger,
		metrics:  m,
	}, nil
}

// Handle registers fn for eventType. It must be called before Start.
func (r *OutboxRelay) Handle(eventType string, fn DeliveryFunc) {
	r.delivery[eventType] = fn
}

// PatientNotifications decodes patient_notification payloads for sender.
func PatientNotifications(sender notification.Sender) DeliveryFunc {
	return func(ctx context.Context, event *model.OutboxEvent) error {
		var n model.PatientNotification
		if err := json.Unmarshal(event.Payload, &n); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
		}
		return sender.Send(ctx, n)
	}
}

// Start polls until ctx is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Int("batch_size", r.cfg.BatchSize))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("failed to process outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch delivers one batch of pending events and returns how many were
// delivered. Rows stay locked for the duration of the batch, so concurrent
// relays never deliver the same event.
//
// Delivery is at-least-once. Each event is marked inside its own savepoint:
// when marking fails, only that event returns to pending and is sent again
// on a later pass, while the rest of the batch still commits. A failed
// commit re-sends the whole batch.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(r.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	var (
		delivered int
		markErrs  []error
	)
	err := r.store.WithTx(ctx, func(tx repository.Tx) error {
		delivered, markErrs = 0, nil
		events, err := tx.Outbox().FetchPending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
		if err != nil {
			return fmt.Errorf("failed to fetch pending events: %w", err)
		}
		r.metrics.OutboxBatchSize.Set(float64(len(events)))

		for _, event := range events {
			if err := tx.Savepoint(ctx, eventSavepoint); err != nil {
				// keep what was already delivered and marked
				markErrs = append(markErrs, fmt.Errorf("failed to open savepoint for event %s: %w", event.ID, err))
				break
			}
			ok, err := r.process(ctx, tx, event)
			if err != nil {
				if rbErr := tx.RollbackToSavepoint(ctx, eventSavepoint); rbErr != nil {
					return fmt.Errorf("failed to roll back event %s: %w", event.ID, rbErr)
				}
				r.logger.Error("outbox event left pending", zap.String("event_id", event.ID.String()), zap.Error(err))
				markErrs = append(markErrs, err)
				continue
			}
			if err := tx.ReleaseSavepoint(ctx, eventSavepoint); err != nil {
				return fmt.Errorf("failed to release savepoint for event %s: %w", event.ID, err)
			}
			if ok {
				r.metrics.OutboxEventsProcessed.Inc()
				delivered++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return delivered, errors.Join(markErrs...)
}

const eventSavepoint = "outbox_event"

// process delivers event and records the outcome. It reports whether the
// event was delivered; an error means the outcome could not be recorded.
func (r *OutboxRelay) process(ctx context.Context, tx repository.Tx, event *model.OutboxEvent) (bool, error) {
	if err := r.deliver(ctx, event); err != nil {
		final := event.Attempts+1 >= r.cfg.MaxAttempts || errors.Is(err, errNoDelivery)
		r.logger.Warn("outbox delivery failed",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.Int("attempt", event.Attempts+1),
			zap.Bool("final", final),
			zap.Error(err),
		)
		if final {
			r.metrics.OutboxEventsFailed.Inc()
		} else {
			r.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		if err := tx.Outbox().MarkFailed(ctx, event, err, final); err != nil {
			return false, fmt.Errorf("failed to mark event %s failed: %w", event.ID, err)
		}
		return false, nil
	}

	if err := tx.Outbox().MarkProcessed(ctx, event); err != nil {
		return false, fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
	}
	return true, nil
}

func (r *OutboxRelay) deliver(ctx context.Context, event *model.OutboxEvent) error {
	fn, ok := r.delivery[event.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", errNoDelivery, event.EventType)
	}
	return fn(ctx, event)
}
