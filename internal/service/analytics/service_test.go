package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/repository/repositorytest"
	"github.com/geoclinic/clinic-api/internal/spatial"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
	"github.com/geoclinic/clinic-api/pkg/messaging"
	"github.com/geoclinic/clinic-api/pkg/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func book(t *testing.T, store *repositorytest.Store, cells ...string) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		for _, c := range cells {
			appt := &model.Appointment{
				PatientID:   1,
				DoctorID:    2,
				Status:      model.AppointmentStatusConfirmed,
				CellID:      c,
				ScheduledAt: time.Now().UTC(),
			}
			if err := tx.Appointments().Create(context.Background(), appt); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func newTestService(t *testing.T) (*Service, *repositorytest.Store, *metrics.Metrics) {
	t.Helper()
	store := repositorytest.NewStore()
	m := metrics.New("test", prometheus.NewRegistry())
	return NewService(store, DefaultConfig(), m), store, m
}

func TestGetRegion_CountsCellAndRing(t *testing.T) {
	svc, store, _ := newTestService(t)

	center, err := spatial.ToCell(37.7749, -122.4194, spatial.DefaultResolution)
	require.NoError(t, err)
	disk, err := spatial.Neighbors(center, 1)
	require.NoError(t, err)
	var neighbor string
	for _, c := range disk {
		if c != center {
			neighbor = c
			break
		}
	}
	book(t, store, center, center, neighbor)

	got, err := svc.GetRegion(context.Background(), model.RoleAdmin, center, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Count)
	assert.Empty(t, got.Neighbors)

	got, err = svc.GetRegion(context.Background(), model.RoleAdmin, center, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Count)
	assert.Equal(t, int64(3), got.Total)
	assert.Len(t, got.Neighbors, len(disk)-1)
	for _, n := range got.Neighbors {
		if n.CellID == neighbor {
			assert.Equal(t, int64(1), n.Count)
		} else {
			assert.Zero(t, n.Count)
		}
	}
}

func TestGetRegion_UppercaseCellID(t *testing.T) {
	svc, store, m := newTestService(t)
	center, err := spatial.ToCell(37.7749, -122.4194, spatial.DefaultResolution)
	require.NoError(t, err)
	book(t, store, center, center)

	got, err := svc.GetRegion(context.Background(), model.RoleAdmin, strings.ToUpper(center), 1)
	require.NoError(t, err)
	assert.Equal(t, center, got.CellID)
	assert.Equal(t, int64(2), got.Count)
	assert.Equal(t, int64(2), got.Total)
	assert.Len(t, got.Neighbors, 6)
	for _, n := range got.Neighbors {
		assert.NotEqual(t, center, n.CellID)
	}

	// both spellings share one cache entry
	_, err = svc.GetRegion(context.Background(), model.RoleAdmin, center, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, m.AnalyticsCache.WithLabelValues("hit")))
}

func TestGetRegion_CachesResults(t *testing.T) {
	svc, store, m := newTestService(t)
	cell, err := spatial.ToCell(10, 10, spatial.DefaultResolution)
	require.NoError(t, err)
	book(t, store, cell)

	first, err := svc.GetRegion(context.Background(), model.RoleAdmin, cell, 0)
	require.NoError(t, err)
	book(t, store, cell)

	second, err := svc.GetRegion(context.Background(), model.RoleAdmin, cell, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, float64(1), counterValue(t, m.AnalyticsCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), counterValue(t, m.AnalyticsCache.WithLabelValues("miss")))

	svc.flush()
	third, err := svc.GetRegion(context.Background(), model.RoleAdmin, cell, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.Count)
}

type chanSubscriber struct {
	ch      chan messaging.Message
	channel string
}

func (c *chanSubscriber) Subscribe(_ context.Context, channel string) (<-chan messaging.Message, error) {
	c.channel = channel
	return c.ch, nil
}

func TestInvalidateOn_FlushesOnBookingNotification(t *testing.T) {
	svc, store, _ := newTestService(t)
	cell, err := spatial.ToCell(10, 10, spatial.DefaultResolution)
	require.NoError(t, err)
	book(t, store, cell)

	sub := &chanSubscriber{ch: make(chan messaging.Message)}
	require.NoError(t, svc.InvalidateOn(context.Background(), sub, "clinic.events"))
	defer close(sub.ch)
	assert.Equal(t, "clinic.events", sub.channel)

	first, err := svc.GetRegion(context.Background(), model.RoleAdmin, cell, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Count)
	book(t, store, cell)

	other, err := messaging.NewMessage("unrelated", nil)
	require.NoError(t, err)
	sub.ch <- other
	notice, err := messaging.NewMessage(model.EventPatientNotification, model.PatientNotification{})
	require.NoError(t, err)
	sub.ch <- notice

	assert.Eventually(t, func() bool {
		got, err := svc.GetRegion(context.Background(), model.RoleAdmin, cell, 0)
		return err == nil && got.Count == 2
	}, time.Second, 10*time.Millisecond)
}

func TestGetRegion_RejectsNonAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	cell, err := spatial.ToCell(10, 10, spatial.DefaultResolution)
	require.NoError(t, err)

	for _, role := range []model.Role{model.RolePatient, model.RoleDoctor} {
		_, err := svc.GetRegion(context.Background(), role, cell, 0)
		assert.ErrorIs(t, err, apperrors.ErrAuthorizationDenied)

		_, err = svc.ListRegions(context.Background(), role, 10)
		assert.ErrorIs(t, err, apperrors.ErrAuthorizationDenied)
	}
}

func TestGetRegion_BadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	cell, err := spatial.ToCell(10, 10, spatial.DefaultResolution)
	require.NoError(t, err)

	_, err = svc.GetRegion(context.Background(), model.RoleAdmin, "not-a-cell", 0)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.GetRegion(context.Background(), model.RoleAdmin, cell, 4)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.GetRegion(context.Background(), model.RoleAdmin, cell, -1)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestListRegions(t *testing.T) {
	svc, store, _ := newTestService(t)

	stats, err := svc.ListRegions(context.Background(), model.RoleAdmin, 0)
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)

	err = store.WithTx(context.Background(), func(tx repository.Tx) error {
		if err := tx.RegionStats().Increment(context.Background(), "a", 1); err != nil {
			return err
		}
		if err := tx.RegionStats().Increment(context.Background(), "b", 2); err != nil {
			return err
		}
		return tx.RegionStats().Increment(context.Background(), "b", 3)
	})
	require.NoError(t, err)

	stats, err = svc.ListRegions(context.Background(), model.RoleAdmin, 10)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "b", stats[0].CellID)
	assert.Equal(t, int64(2), stats[0].AppointmentCount)
}
