package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
)

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

func (r *doctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	query := `
		INSERT INTO doctors (user_id, specialization)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, doctor.UserID, doctor.Specialization).
		Scan(&doctor.ID, &doctor.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create doctor: %w", mapError(err))
	}
	return nil
}

func (r *doctorRepository) Get(ctx context.Context, id int64) (*model.Doctor, error) {
	var doctor model.Doctor
	query := `SELECT id, user_id, specialization, created_at FROM doctors WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &doctor, query, id); err != nil {
		return nil, fmt.Errorf("failed to get doctor: %w", mapError(err))
	}
	return &doctor, nil
}

func (r *doctorRepository) GetByUserID(ctx context.Context, userID int64) (*model.Doctor, error) {
	var doctor model.Doctor
	query := `SELECT id, user_id, specialization, created_at FROM doctors WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, r.db, &doctor, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get doctor by user: %w", mapError(err))
	}
	return &doctor, nil
}

func (r *doctorRepository) List(ctx context.Context) ([]*model.Doctor, error) {
	var doctors []*model.Doctor
	query := `SELECT id, user_id, specialization, created_at FROM doctors ORDER BY id`
	if err := sqlx.SelectContext(ctx, r.db, &doctors, query); err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}
