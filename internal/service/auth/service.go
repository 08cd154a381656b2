package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
	"github.com/geoclinic/clinic-api/internal/service/audit"
	"github.com/geoclinic/clinic-api/pkg/auth"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
	"github.com/geoclinic/clinic-api/pkg/security"
)

const tokenTypeBearer = "bearer"

type Service struct {
	store   repository.Store
	hasher  security.PasswordHasher
	jwtSvc  auth.JWTService
	auditor *audit.Service
	logger  zerolog.Logger
}

func NewService(
	store repository.Store,
	hasher security.PasswordHasher,
	jwtSvc auth.JWTService,
	auditor *audit.Service,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:   store,
		hasher:  hasher,
		jwtSvc:  jwtSvc,
		auditor: auditor,
		logger:  logger,
	}
}

// Register creates a user. Role defaults to Patient. The user row and its
// REGISTER audit entry are written in one unit of work.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	role := model.RolePatient
	if req.Role != "" {
		parsed, err := model.ParseRole(req.Role)
		if err != nil {
			return nil, apperrors.NewBadRequest("invalid role", err)
		}
		role = parsed
	}

	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" {
		return nil, apperrors.NewBadRequest("username and email are required", nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := ensureAvailable(ctx, tx, email, username); err != nil {
			return err
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.DuplicateIdentity("email or username")
			}
			return apperrors.Persistence("create user", err)
		}
		_, err := s.auditor.Record(ctx, tx, user.ID, model.AuditActionRegister, model.AuditEntityUser, user.ID)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("register", err)
	}

	s.logger.Info().Int64("user_id", user.ID).Str("role", role.String()).Msg("user registered")
	return user, nil
}

func ensureAvailable(ctx context.Context, tx repository.Tx, email, username string) error {
	if _, err := tx.Users().GetByEmail(ctx, email); err == nil {
		return apperrors.DuplicateIdentity("email")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Persistence("check email", err)
	}
	if _, err := tx.Users().GetByUsername(ctx, username); err == nil {
		return apperrors.DuplicateIdentity("username")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Persistence("check username", err)
	}
	return nil
}

// Login exchanges credentials for an access token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.store.Users().GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.InvalidCredentials()
	}
	if err != nil {
		return nil, apperrors.Persistence("load user", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("stored password hash is unusable")
		}
		return nil, apperrors.InvalidCredentials()
	}

	token, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if _, err := s.auditor.RecordStandalone(ctx, user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID); err != nil {
		return nil, err
	}

	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(s.jwtSvc.Expiry().Seconds()),
	}, nil
}

func (s *Service) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
