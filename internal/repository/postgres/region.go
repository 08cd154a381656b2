package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
)

type regionStatsRepository struct {
	BaseRepository
}

func NewRegionStatsRepository(base BaseRepository) repository.RegionStatsRepository {
	return &regionStatsRepository{base}
}

func (r *regionStatsRepository) Increment(ctx context.Context, cellID string, appointmentID int64) error {
	query := `
		INSERT INTO region_stats (cell_id, appointment_count, last_appointment_id, updated_at)
		VALUES ($1, 1, $2, NOW())
		ON CONFLICT (cell_id) DO UPDATE SET
			appointment_count = region_stats.appointment_count + 1,
			last_appointment_id = EXCLUDED.last_appointment_id,
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, cellID, appointmentID); err != nil {
		return fmt.Errorf("failed to update region stats: %w", err)
	}
	return nil
}

func (r *regionStatsRepository) List(ctx context.Context, limit int) ([]*model.RegionStat, error) {
	var stats []*model.RegionStat
	query := `
		SELECT cell_id, appointment_count, last_appointment_id, updated_at
		FROM region_stats
		ORDER BY appointment_count DESC, cell_id
		LIMIT $1
	`
	if err := sqlx.SelectContext(ctx, r.db, &stats, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list region stats: %w", err)
	}
	return stats, nil
}
