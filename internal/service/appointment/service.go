package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoclinic/clinic-api/internal/lock"
	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/service/audit"
	"github.com/geoclinic/clinic-api/internal/service/event"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
	"github.com/geoclinic/clinic-api/pkg/metrics"
)

// Publisher is the part of the event dispatcher the workflow needs.
type Publisher interface {
	Publish(ctx context.Context, name string, payload interface{}, uow repository.Tx) error
}

type Service struct {
	store      repository.Store
	auditor    *audit.Service
	dispatcher Publisher
	locker     lock.Locker
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func NewService(
	store repository.Store,
	auditor *audit.Service,
	dispatcher Publisher,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:      store,
		auditor:    auditor,
		dispatcher: dispatcher,
		locker:     locker,
		metrics:    m,
		logger:     logger.With().Str("component", "appointment_workflow").Logger(),
	}
}

// CreateAppointment books an appointment for the patient profile of
// userID. The appointment, its audit row and everything the
// appointment_created handlers write commit together or not at all.
func (s *Service) CreateAppointment(ctx context.Context, userID, doctorID int64, scheduledAt time.Time) (*model.Appointment, error) {
	if doctorID <= 0 {
		return nil, apperrors.NewBadRequest("doctor_id must be positive", nil)
	}
	if scheduledAt.IsZero() {
		return nil, apperrors.NewBadRequest("scheduled time is required", nil)
	}

	start := time.Now()
	wf := newWorkflow(s.logger, userID)

	var created *model.Appointment
	err := s.locker.WithLock(ctx, "patient:"+strconv.FormatInt(userID, 10), func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(tx repository.Tx) error {
			appt, err := s.book(ctx, tx, wf, userID, doctorID, scheduledAt)
			if err != nil {
				return err
			}
			created = appt
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrLockNotAcquired):
			s.metrics.BookingLockWaits.Inc()
			err = apperrors.BookingInProgress(err)
		case errors.Is(err, lock.ErrLockUnavailable):
			err = apperrors.LockUnavailable(err)
		}
		err = apperrors.Persistence("create appointment", err)
		s.metrics.BookingsFailed.WithLabelValues(wf.stage.String()).Inc()
		wf.fail(err)
		return nil, err
	}

	wf.advance(StageCommitted)
	s.metrics.BookingsCreated.Inc()
	s.metrics.BookingLatency.Observe(time.Since(start).Seconds())
	return created, nil
}

func (s *Service) book(ctx context.Context, tx repository.Tx, wf *workflow, userID, doctorID int64, scheduledAt time.Time) (*model.Appointment, error) {
	patient, err := tx.Patients().GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.PatientProfileNotFound(userID)
	}
	if err != nil {
		return nil, apperrors.Persistence("resolve patient", err)
	}

	if _, err := tx.Doctors().Get(ctx, doctorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.DoctorProfileNotFound("id", doctorID)
		}
		return nil, apperrors.Persistence("resolve doctor", err)
	}
	wf.advance(StagePatientResolved)

	// The cell is a snapshot; later profile changes do not move bookings.
	appt := &model.Appointment{
		PatientID:   patient.ID,
		DoctorID:    doctorID,
		Status:      model.AppointmentStatusConfirmed,
		CellID:      patient.CellID,
		ScheduledAt: scheduledAt.UTC(),
	}
	if err := tx.Appointments().Create(ctx, appt); err != nil {
		return nil, apperrors.Persistence("insert appointment", err)
	}
	wf.appointmentID = appt.ID
	wf.advance(StageAppointmentPersisted)

	if _, err := s.auditor.Record(ctx, tx, userID, model.AuditActionCreateAppointment, model.AuditEntityAppointment, appt.ID); err != nil {
		return nil, err
	}
	wf.advance(StageAuditRecorded)

	err = s.dispatcher.Publish(ctx, model.EventAppointmentCreated, model.AppointmentCreatedEvent{
		AppointmentID: appt.ID,
		PatientID:     patient.ID,
		SpatialCell:   appt.CellID,
	}, tx)
	if hf, ok := event.IsolatedFailures(err); ok {
		s.logger.Warn().Err(hf).Int64("appointment_id", appt.ID).Msg("appointment booked with failed side effects")
	} else if err != nil {
		return nil, err
	}
	wf.advance(StageEventsPublished)

	return appt, nil
}

// ListMyAppointments returns the caller's appointments: by patient profile
// for patients, by doctor profile for doctors. Other roles are denied.
func (s *Service) ListMyAppointments(ctx context.Context, userID int64, role model.Role) ([]*model.Appointment, error) {
	if !role.Can(model.CapListOwnAppointments) {
		return nil, apperrors.AuthorizationDenied(fmt.Sprintf("role %s has no own appointments", role))
	}

	var (
		appointments []*model.Appointment
		err          error
	)
	switch role {
	case model.RolePatient:
		patient, perr := s.store.Patients().GetByUserID(ctx, userID)
		if errors.Is(perr, repository.ErrNotFound) {
			return nil, apperrors.PatientProfileNotFound(userID)
		}
		if perr != nil {
			return nil, apperrors.Persistence("resolve patient", perr)
		}
		appointments, err = s.store.Appointments().ListByPatient(ctx, patient.ID)
	case model.RoleDoctor:
		doctor, derr := s.store.Doctors().GetByUserID(ctx, userID)
		if errors.Is(derr, repository.ErrNotFound) {
			return nil, apperrors.DoctorProfileNotFound("user", userID)
		}
		if derr != nil {
			return nil, apperrors.Persistence("resolve doctor", derr)
		}
		appointments, err = s.store.Appointments().ListByDoctor(ctx, doctor.ID)
	default:
		return nil, apperrors.AuthorizationDenied(fmt.Sprintf("role %s has no own appointments", role))
	}
	if err != nil {
		return nil, apperrors.Persistence("list appointments", err)
	}
	if appointments == nil {
		appointments = []*model.Appointment{}
	}
	return appointments, nil
}
