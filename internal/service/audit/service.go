package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

const maxPageSize = 500

// Service is the only writer of audit rows. Rows are appended and never
// updated or deleted.
type Service struct {
	store repository.Store
	now   func() time.Time
}

func NewService(store repository.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Record appends one audit row through the caller's unit of work. It never
// commits; the row becomes visible together with the rest of tx.
func (s *Service) Record(ctx context.Context, tx repository.Tx, actorID int64, action, entityType string, entityID int64) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("audit %s: no unit of work", action)
	}
	if actorID <= 0 || action == "" || entityType == "" {
		return 0, apperrors.NewBadRequest("incomplete audit entry", fmt.Errorf("actor=%d action=%q entity=%q", actorID, action, entityType))
	}

	log := &model.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  s.now().UTC(),
	}
	if err := tx.Audit().Create(ctx, log); err != nil {
		return 0, apperrors.Persistence("record audit "+action, err)
	}
	return log.ID, nil
}

// RecordStandalone is for actions that have no unit of work of their own,
// such as login.
func (s *Service) RecordStandalone(ctx context.Context, actorID int64, action, entityType string, entityID int64) (int64, error) {
	var id int64
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		id, err = s.Record(ctx, tx, actorID, action, entityType, entityID)
		return err
	})
	if err != nil {
		return 0, apperrors.Persistence("record audit "+action, err)
	}
	return id, nil
}

func (s *Service) List(ctx context.Context, role model.Role, filter model.AuditFilter) ([]*model.AuditLog, error) {
	if !role.Can(model.CapViewAuditLogs) {
		return nil, apperrors.AuthorizationDenied(fmt.Sprintf("role %s cannot view audit logs", role))
	}
	if filter.Limit <= 0 || filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	logs, err := s.store.Audit().List(ctx, filter)
	if err != nil {
		return nil, apperrors.Persistence("list audit logs", err)
	}
	if logs == nil {
		logs = []*model.AuditLog{}
	}
	return logs, nil
}
