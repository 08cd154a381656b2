package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/service/audit"
	"github.com/geoclinic/clinic-api/internal/spatial"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

type Service struct {
	store   repository.Store
	indexer *spatial.Indexer
	auditor *audit.Service
	logger  zerolog.Logger
}

func NewService(store repository.Store, indexer *spatial.Indexer, auditor *audit.Service, logger zerolog.Logger) *Service {
	return &Service{store: store, indexer: indexer, auditor: auditor, logger: logger}
}

// SetupProfile creates the caller's patient profile. The cell is computed
// once here, at the system resolution, and stored with the profile.
func (s *Service) SetupProfile(ctx context.Context, userID int64, role model.Role, lat, lon float64) (*model.Patient, error) {
	if !role.Can(model.CapSetupPatient) {
		return nil, apperrors.AuthorizationDenied(fmt.Sprintf("role %s cannot create a patient profile", role))
	}

	cell, err := s.indexer.ToCell(lat, lon)
	if err != nil {
		return nil, apperrors.InvalidCoordinate(err)
	}

	patient := &model.Patient{
		UserID:    userID,
		Latitude:  lat,
		Longitude: lon,
		CellID:    cell,
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Patients().GetByUserID(ctx, userID); err == nil {
			return apperrors.ProfileExists("patient")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return apperrors.Persistence("check patient profile", err)
		}

		if err := tx.Patients().Create(ctx, patient); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.ProfileExists("patient")
			}
			return apperrors.Persistence("create patient", err)
		}
		_, err := s.auditor.Record(ctx, tx, userID, model.AuditActionSetupPatient, model.AuditEntityPatient, patient.ID)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("setup patient profile", err)
	}

	s.logger.Info().Int64("user_id", userID).Str("cell_id", cell).Msg("patient profile created")
	return patient, nil
}
