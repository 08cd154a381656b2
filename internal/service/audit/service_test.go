package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/repository/repositorytest"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

func TestRecord_VisibleOnlyAfterCommit(t *testing.T) {
	store := repositorytest.NewStore()
	svc := NewService(store)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	svc.now = func() time.Time { return fixed }

	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		id, err := svc.Record(context.Background(), tx, 3, model.AuditActionCreateAppointment, model.AuditEntityAppointment, 11)
		require.NoError(t, err)
		assert.NotZero(t, id)
		assert.Empty(t, store.AuditLogs(), "row must not be visible before commit")
		return nil
	})
	require.NoError(t, err)

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, int64(3), logs[0].UserID)
	assert.Equal(t, model.AuditActionCreateAppointment, logs[0].Action)
	assert.Equal(t, int64(11), logs[0].EntityID)
	assert.Equal(t, time.UTC, logs[0].CreatedAt.Location())
	assert.True(t, fixed.Equal(logs[0].CreatedAt))
}

func TestRecord_RolledBackWithUnitOfWork(t *testing.T) {
	store := repositorytest.NewStore()
	svc := NewService(store)
	boom := errors.New("later step failed")

	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		_, err := svc.Record(context.Background(), tx, 3, model.AuditActionCreateAppointment, model.AuditEntityAppointment, 11)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.AuditLogs())
}

func TestRecord_PersistenceFailure(t *testing.T) {
	store := repositorytest.NewStore()
	svc := NewService(store)
	store.FailOn("Audit.Create", errors.New("disk full"))

	_, err := svc.RecordStandalone(context.Background(), 1, model.AuditActionLogin, model.AuditEntityUser, 1)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.Empty(t, store.AuditLogs())
}

func TestRecord_RejectsIncompleteEntry(t *testing.T) {
	svc := NewService(repositorytest.NewStore())
	_, err := svc.RecordStandalone(context.Background(), 0, model.AuditActionLogin, model.AuditEntityUser, 1)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestList_RequiresAdmin(t *testing.T) {
	store := repositorytest.NewStore()
	svc := NewService(store)
	_, err := svc.RecordStandalone(context.Background(), 1, model.AuditActionLogin, model.AuditEntityUser, 1)
	require.NoError(t, err)

	for _, role := range []model.Role{model.RolePatient, model.RoleDoctor} {
		_, err := svc.List(context.Background(), role, model.AuditFilter{})
		assert.ErrorIs(t, err, apperrors.ErrAuthorizationDenied, role.String())
	}

	logs, err := svc.List(context.Background(), model.RoleAdmin, model.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
