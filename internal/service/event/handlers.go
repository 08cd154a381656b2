package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
)

const (
	HandlerNotifyPatient          = "NotifyPatient"
	HandlerUpdateRegionStatistics = "UpdateRegionStatistics"
)

var errNoUnitOfWork = errors.New("handler requires a unit of work")

// Register wires the appointment_created handlers in their fixed order.
func Register(d *Dispatcher, logger zerolog.Logger) {
	d.Subscribe(model.EventAppointmentCreated, NotifyPatient(logger), Named(HandlerNotifyPatient))
	d.Subscribe(model.EventAppointmentCreated, UpdateRegionStatistics(), Named(HandlerUpdateRegionStatistics))
}

func appointmentCreated(payload interface{}) (model.AppointmentCreatedEvent, error) {
	switch ev := payload.(type) {
	case model.AppointmentCreatedEvent:
		return ev, nil
	case *model.AppointmentCreatedEvent:
		if ev != nil {
			return *ev, nil
		}
	}
	return model.AppointmentCreatedEvent{}, fmt.Errorf("unexpected payload %T", payload)
}

// NotifyPatient enqueues a patient notification in the outbox of the
// current unit of work. The worker delivers it after commit.
func NotifyPatient(logger zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, payload interface{}, uow repository.Tx) error {
		ev, err := appointmentCreated(payload)
		if err != nil {
			return err
		}
		if uow == nil {
			return errNoUnitOfWork
		}

		appt, err := uow.Appointments().Get(ctx, ev.AppointmentID)
		if err != nil {
			return fmt.Errorf("load appointment %d: %w", ev.AppointmentID, err)
		}
		patient, err := uow.Patients().Get(ctx, ev.PatientID)
		if err != nil {
			return fmt.Errorf("load patient %d: %w", ev.PatientID, err)
		}
		user, err := uow.Users().Get(ctx, patient.UserID)
		if err != nil {
			return fmt.Errorf("load user %d: %w", patient.UserID, err)
		}

		body, err := json.Marshal(model.PatientNotification{
			PatientID:     patient.ID,
			AppointmentID: appt.ID,
			Email:         user.Email,
			Username:      user.Username,
			ScheduledAt:   appt.ScheduledAt,
		})
		if err != nil {
			return err
		}

		if err := uow.Outbox().Create(ctx, &model.OutboxEvent{
			EventType: model.EventPatientNotification,
			Payload:   body,
		}); err != nil {
			return err
		}

		logger.Info().
			Int64("patient_id", ev.PatientID).
			Int64("appointment_id", ev.AppointmentID).
			Msg("patient notification queued")
		return nil
	}
}

// UpdateRegionStatistics bumps the running tally of the appointment's cell.
func UpdateRegionStatistics() HandlerFunc {
	return func(ctx context.Context, payload interface{}, uow repository.Tx) error {
		ev, err := appointmentCreated(payload)
		if err != nil {
			return err
		}
		if uow == nil {
			return errNoUnitOfWork
		}
		if ev.SpatialCell == "" {
			return fmt.Errorf("appointment %d has no spatial cell", ev.AppointmentID)
		}
		return uow.RegionStats().Increment(ctx, ev.SpatialCell, ev.AppointmentID)
	}
}
