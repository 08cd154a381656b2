package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (user_id, latitude, longitude, cell_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		patient.UserID,
		patient.Latitude,
		patient.Longitude,
		patient.CellID,
	).Scan(&patient.ID, &patient.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", mapError(err))
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id int64) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT id, user_id, latitude, longitude, cell_id, created_at FROM patients WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &patient, query, id); err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", mapError(err))
	}
	return &patient, nil
}

func (r *patientRepository) GetByUserID(ctx context.Context, userID int64) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT id, user_id, latitude, longitude, cell_id, created_at FROM patients WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, r.db, &patient, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get patient by user: %w", mapError(err))
	}
	return &patient, nil
}
