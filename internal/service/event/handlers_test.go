package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/repository/repositorytest"
)

func seedBooking(t *testing.T, store *repositorytest.Store) model.AppointmentCreatedEvent {
	t.Helper()
	user := store.AddUser(model.User{Username: "pat", Email: "pat@example.com", Role: model.RolePatient})
	patient := store.AddPatient(model.Patient{UserID: user.ID, CellID: "872830828ffffff"})
	var appt model.Appointment
	require.NoError(t, store.WithTx(context.Background(), func(tx repository.Tx) error {
		appt = model.Appointment{
			PatientID:   patient.ID,
			DoctorID:    5,
			Status:      model.AppointmentStatusConfirmed,
			CellID:      patient.CellID,
			ScheduledAt: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		}
		return tx.Appointments().Create(context.Background(), &appt)
	}))
	return model.AppointmentCreatedEvent{AppointmentID: appt.ID, PatientID: patient.ID, SpatialCell: patient.CellID}
}

func TestHandlers_AppointmentCreatedPipeline(t *testing.T) {
	store := repositorytest.NewStore()
	ev := seedBooking(t, store)
	d, _ := newDispatcher()
	Register(d, zerolog.Nop())
	d.Freeze()

	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		return d.Publish(context.Background(), model.EventAppointmentCreated, ev, tx)
	})
	require.NoError(t, err)

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPatientNotification, events[0].EventType)
	var n model.PatientNotification
	require.NoError(t, json.Unmarshal(events[0].Payload, &n))
	assert.Equal(t, ev.AppointmentID, n.AppointmentID)
	assert.Equal(t, "pat@example.com", n.Email)

	rs, ok := store.RegionStat("872830828ffffff")
	require.True(t, ok)
	assert.Equal(t, int64(1), rs.AppointmentCount)
	assert.Equal(t, ev.AppointmentID, rs.LastAppointmentID)
}

func TestHandlers_RejectUnexpectedPayload(t *testing.T) {
	store := repositorytest.NewStore()
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		assert.Error(t, NotifyPatient(zerolog.Nop())(context.Background(), "not an event", tx))
		assert.Error(t, UpdateRegionStatistics()(context.Background(), map[string]int{}, tx))
		return nil
	})
	require.NoError(t, err)
}

func TestHandlers_RequireUnitOfWork(t *testing.T) {
	ev := model.AppointmentCreatedEvent{AppointmentID: 1, PatientID: 1, SpatialCell: "x"}
	assert.ErrorIs(t, UpdateRegionStatistics()(context.Background(), ev, nil), errNoUnitOfWork)
	assert.ErrorIs(t, NotifyPatient(zerolog.Nop())(context.Background(), &ev, nil), errNoUnitOfWork)
}
