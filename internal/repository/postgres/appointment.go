package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const appointmentColumns = `id, patient_id, doctor_id, status, cell_id, scheduled_at, created_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (patient_id, doctor_id, status, cell_id, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.Status,
		appointment.CellID,
		appointment.ScheduledAt,
	).Scan(&appointment.ID, &appointment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", mapError(err))
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	var appointment model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &appointment, query, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err))
	}
	return &appointment, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE patient_id = $1 ORDER BY scheduled_at, id`
	if err := sqlx.SelectContext(ctx, r.db, &appointments, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list patient appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE doctor_id = $1 ORDER BY scheduled_at, id`
	if err := sqlx.SelectContext(ctx, r.db, &appointments, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list doctor appointments: %w", err)
	}
	return appointments, nil
}

// CountByCells returns one row per cell that has appointments. Cells
// without appointments are absent from the result.
func (r *appointmentRepository) CountByCells(ctx context.Context, cells []string) ([]model.RegionCount, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	var counts []model.RegionCount
	query := `
		SELECT cell_id, COUNT(*) AS count
		FROM appointments
		WHERE cell_id = ANY($1)
		GROUP BY cell_id
		ORDER BY cell_id
	`
	if err := sqlx.SelectContext(ctx, r.db, &counts, query, pq.Array(cells)); err != nil {
		return nil, fmt.Errorf("failed to count appointments by cell: %w", err)
	}
	return counts, nil
}
