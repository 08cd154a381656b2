package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/service/audit"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

type Service struct {
	store   repository.Store
	auditor *audit.Service
}

func NewService(store repository.Store, auditor *audit.Service) *Service {
	return &Service{store: store, auditor: auditor}
}

func (s *Service) SetupProfile(ctx context.Context, userID int64, role model.Role, specialization string) (*model.Doctor, error) {
	if !role.Can(model.CapSetupDoctor) {
		return nil, apperrors.AuthorizationDenied(fmt.Sprintf("role %s cannot create a doctor profile", role))
	}
	specialization = strings.TrimSpace(specialization)
	if specialization == "" {
		return nil, apperrors.NewBadRequest("specialization is required", nil)
	}

	doctor := &model.Doctor{UserID: userID, Specialization: specialization}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.Doctors().Create(ctx, doctor); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.ProfileExists("doctor")
			}
			return apperrors.Persistence("create doctor", err)
		}
		_, err := s.auditor.Record(ctx, tx, userID, model.AuditActionSetupDoctor, model.AuditEntityDoctor, doctor.ID)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("setup doctor profile", err)
	}
	return doctor, nil
}

func (s *Service) List(ctx context.Context) ([]*model.Doctor, error) {
	doctors, err := s.store.Doctors().List(ctx)
	if err != nil {
		return nil, apperrors.Persistence("list doctors", err)
	}
	if doctors == nil {
		doctors = []*model.Doctor{}
	}
	return doctors, nil
}
