package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoclinic/clinic-api/internal/lock"
	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/repository/repositorytest"
	"github.com/geoclinic/clinic-api/internal/service/audit"
	"github.com/geoclinic/clinic-api/internal/service/event"
	"github.com/geoclinic/clinic-api/internal/spatial"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
	"github.com/geoclinic/clinic-api/pkg/metrics"
)

var scheduled = time.Date(2026, 11, 2, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store      *repositorytest.Store
	svc        *Service
	dispatcher *event.Dispatcher
	patientUID int64
	doctorUID  int64
	adminUID   int64
	patient    model.Patient
	doctor     model.Doctor
}

// newFixture seeds one patient (San Francisco), one doctor with id 5 and
// one admin.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repositorytest.NewStore()

	patientUser := store.AddUser(model.User{Username: "pat", Email: "pat@example.com", Role: model.RolePatient})
	doctorUser := store.AddUser(model.User{Username: "doc", Email: "doc@example.com", Role: model.RoleDoctor})
	cell, err := spatial.ToCell(37.7749, -122.4194, spatial.DefaultResolution)
	require.NoError(t, err)
	patient := store.AddPatient(model.Patient{UserID: patientUser.ID, Latitude: 37.7749, Longitude: -122.4194, CellID: cell})
	adminUser := store.AddUser(model.User{Username: "root", Email: "root@example.com", Role: model.RoleAdmin})
	doctor := store.AddDoctor(model.Doctor{UserID: doctorUser.ID, Specialization: "Cardiology"})
	require.Equal(t, int64(5), doctor.ID)

	dispatcher := event.NewDispatcher(zerolog.Nop(), metrics.NewNop())
	event.Register(dispatcher, zerolog.Nop())

	return &fixture{
		store:      store,
		dispatcher: dispatcher,
		svc:        newService(store, dispatcher, lock.NewLocalLocker(time.Second)),
		patientUID: patientUser.ID,
		doctorUID:  doctorUser.ID,
		adminUID:   adminUser.ID,
		patient:    patient,
		doctor:     doctor,
	}
}

func newService(store repository.Store, d Publisher, l lock.Locker) *Service {
	return NewService(store, audit.NewService(store), d, l, metrics.NewNop(), zerolog.Nop())
}

func TestCreateAppointment_Success(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusConfirmed, appt.Status)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, int64(5), appt.DoctorID)
	assert.Equal(t, f.patient.CellID, appt.CellID)
	assert.True(t, scheduled.Equal(appt.ScheduledAt))

	appointments := f.store.AllAppointments()
	require.Len(t, appointments, 1)
	assert.Equal(t, appt.ID, appointments[0].ID)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionCreateAppointment, logs[0].Action)
	assert.Equal(t, model.AuditEntityAppointment, logs[0].EntityType)
	assert.Equal(t, appt.ID, logs[0].EntityID)
	assert.Equal(t, f.patientUID, logs[0].UserID)

	require.Len(t, f.store.OutboxEvents(), 1)
	rs, ok := f.store.RegionStat(appt.CellID)
	require.True(t, ok)
	assert.Equal(t, int64(1), rs.AppointmentCount)
	assert.Equal(t, 1, f.store.Commits)
}

func TestCreateAppointment_CellIsSnapshot(t *testing.T) {
	f := newFixture(t)
	expected, err := spatial.ToCell(37.7749, -122.4194, spatial.DefaultResolution)
	require.NoError(t, err)

	first, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	require.NoError(t, err)
	second, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, expected, first.CellID)
	assert.Equal(t, first.CellID, second.CellID)
	stored := f.store.AllAppointments()
	assert.Equal(t, expected, stored[0].CellID)
}

func TestCreateAppointment_NoPatientProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAppointment(context.Background(), f.doctorUID, 5, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrPatientProfileNotFound)
	assert.Empty(t, f.store.AllAppointments())
	assert.Empty(t, f.store.AuditLogs())
	assert.Empty(t, f.store.OutboxEvents())
}

func TestCreateAppointment_UnknownDoctor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 999, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrDoctorProfileNotFound)
	assert.Empty(t, f.store.AllAppointments())
}

func TestCreateAppointment_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 0, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	_, err = f.svc.CreateAppointment(context.Background(), f.patientUID, 5, time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreateAppointment_AuditFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("Audit.Create", errors.New("connection reset"))

	_, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.Empty(t, f.store.AllAppointments())
	assert.Empty(t, f.store.AuditLogs())
	assert.Equal(t, 0, f.store.Commits)
	assert.Equal(t, 1, f.store.Rollbacks)
}

func TestCreateAppointment_InsertFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("Appointments.Create", errors.New("deadlock detected"))

	_, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.Empty(t, f.store.AuditLogs())
}

func TestCreateAppointment_CommitFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("Commit", errors.New("serialization failure"))

	_, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.Empty(t, f.store.AllAppointments())
	assert.Empty(t, f.store.AuditLogs())
}

func TestCreateAppointment_HandlerFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("RegionStats.Increment", errors.New("lock timeout"))

	appt, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	require.NoError(t, err)

	assert.Len(t, f.store.AllAppointments(), 1)
	assert.Len(t, f.store.AuditLogs(), 1)
	assert.Len(t, f.store.OutboxEvents(), 1, "earlier handler's work survives")
	_, ok := f.store.RegionStat(appt.CellID)
	assert.False(t, ok)
}

func TestCreateAppointment_RequiredHandlerFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	d := event.NewDispatcher(zerolog.Nop(), metrics.NewNop())
	event.Register(d, zerolog.Nop())
	d.Subscribe(model.EventAppointmentCreated, func(context.Context, interface{}, repository.Tx) error {
		return errors.New("ledger unavailable")
	}, event.Named("Ledger"), event.Required())
	svc := newService(f.store, d, lock.NewLocalLocker(time.Second))

	_, err := svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrHandlerFailure)
	assert.Empty(t, f.store.AllAppointments())
	assert.Empty(t, f.store.AuditLogs())
	assert.Empty(t, f.store.OutboxEvents())
}

func TestCreateAppointment_PublishesEventPayload(t *testing.T) {
	f := newFixture(t)
	d := event.NewDispatcher(zerolog.Nop(), metrics.NewNop())
	var got []model.AppointmentCreatedEvent
	d.Subscribe(model.EventAppointmentCreated, func(_ context.Context, p interface{}, uow repository.Tx) error {
		require.NotNil(t, uow)
		got = append(got, p.(model.AppointmentCreatedEvent))
		return nil
	})
	svc := newService(f.store, d, lock.NewLocalLocker(time.Second))

	appt, err := svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.AppointmentCreatedEvent{
		AppointmentID: appt.ID,
		PatientID:     f.patient.ID,
		SpatialCell:   f.patient.CellID,
	}, got[0])
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return lock.ErrLockNotAcquired
}

func TestCreateAppointment_LockHeld(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, f.dispatcher, busyLocker{})

	_, err := svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrBookingInProgress)
	assert.Empty(t, f.store.AllAppointments())
}

type brokenLocker struct{}

func (brokenLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return fmt.Errorf("%w: acquire: %w", lock.ErrLockUnavailable, errors.New("dial tcp: connection refused"))
}

func TestCreateAppointment_LockBackendDown(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, f.dispatcher, brokenLocker{})

	_, err := svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	assert.ErrorIs(t, err, apperrors.ErrLockUnavailable)
	assert.NotErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.Empty(t, f.store.AllAppointments())
}

func TestCreateAppointment_ConcurrentPatients(t *testing.T) {
	f := newFixture(t)
	var uids []int64
	for i := 0; i < 8; i++ {
		u := f.store.AddUser(model.User{
			Username: "p" + string(rune('a'+i)),
			Email:    string(rune('a'+i)) + "@example.com",
			Role:     model.RolePatient,
		})
		f.store.AddPatient(model.Patient{UserID: u.ID, CellID: f.patient.CellID})
		uids = append(uids, u.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(uids))
	for i, uid := range uids {
		wg.Add(1)
		go func(i int, uid int64) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateAppointment(context.Background(), uid, 5, scheduled)
		}(i, uid)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.store.AllAppointments(), len(uids))
	assert.Len(t, f.store.AuditLogs(), len(uids))
	rs, ok := f.store.RegionStat(f.patient.CellID)
	require.True(t, ok)
	assert.Equal(t, int64(len(uids)), rs.AppointmentCount)
}

func TestListMyAppointments(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.CreateAppointment(context.Background(), f.patientUID, 5, scheduled)
	require.NoError(t, err)

	mine, err := f.svc.ListMyAppointments(context.Background(), f.patientUID, model.RolePatient)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, appt.ID, mine[0].ID)

	theirs, err := f.svc.ListMyAppointments(context.Background(), f.doctorUID, model.RoleDoctor)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, appt.ID, theirs[0].ID)

	_, err = f.svc.ListMyAppointments(context.Background(), f.adminUID, model.RoleAdmin)
	assert.ErrorIs(t, err, apperrors.ErrAuthorizationDenied)

	_, err = f.svc.ListMyAppointments(context.Background(), f.adminUID, model.RolePatient)
	assert.ErrorIs(t, err, apperrors.ErrPatientProfileNotFound)

	_, err = f.svc.ListMyAppointments(context.Background(), f.patientUID, model.RoleDoctor)
	assert.ErrorIs(t, err, apperrors.ErrDoctorProfileNotFound)
}

func TestListMyAppointments_EmptyIsNotNil(t *testing.T) {
	f := newFixture(t)
	mine, err := f.svc.ListMyAppointments(context.Background(), f.patientUID, model.RolePatient)
	require.NoError(t, err)
	assert.NotNil(t, mine)
	assert.Empty(t, mine)
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "appointment_persisted", StageAppointmentPersisted.String())
	assert.Equal(t, "unknown", Stage(42).String())
}
