package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository/repositorytest"
	"github.com/geoclinic/clinic-api/internal/service/audit"
	"github.com/geoclinic/clinic-api/pkg/auth"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
	"github.com/geoclinic/clinic-api/pkg/security"
)

func newTestService(t *testing.T) (*Service, *repositorytest.Store) {
	t.Helper()
	store := repositorytest.NewStore()
	svc := NewService(
		store,
		security.NewBcryptHasher(bcrypt.MinCost),
		auth.NewJWTService("test-secret", "clinic-api", 30*time.Minute),
		audit.NewService(store),
		zerolog.Nop(),
	)
	return svc, store
}

func register(t *testing.T, svc *Service, username, email, role string) *model.User {
	t.Helper()
	user, err := svc.Register(context.Background(), model.RegisterRequest{
		Username: username,
		Email:    email,
		Password: "s3cret-pass",
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

func TestRegister_DefaultsToPatientAndAudits(t *testing.T) {
	svc, store := newTestService(t)

	user := register(t, svc, "alice", "Alice@Example.com ", "")
	assert.Equal(t, model.RolePatient, user.Role)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionRegister, logs[0].Action)
	assert.Equal(t, user.ID, logs[0].EntityID)
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	svc, store := newTestService(t)
	register(t, svc, "alice", "alice@example.com", "Doctor")

	_, err := svc.Register(context.Background(), model.RegisterRequest{
		Username: "alice2", Email: "alice@example.com", Password: "another-pass",
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateIdentity)
	assert.Contains(t, err.Error(), "email")

	_, err = svc.Register(context.Background(), model.RegisterRequest{
		Username: "alice", Email: "other@example.com", Password: "another-pass",
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateIdentity)
	assert.Contains(t, err.Error(), "username")

	assert.Len(t, store.AuditLogs(), 1)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), model.RegisterRequest{
		Username: "bob", Email: "bob@example.com", Password: "short",
	})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Register(context.Background(), model.RegisterRequest{
		Username: "bob", Email: "bob@example.com", Password: "long-enough", Role: "patient",
	})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestLogin(t *testing.T) {
	svc, store := newTestService(t)
	user := register(t, svc, "carol", "carol@example.com", "Admin")

	resp, err := svc.Login(context.Background(), model.LoginRequest{Email: "carol@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(1800), resp.ExpiresIn)

	claims, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.RoleAdmin, claims.Role)

	logs := store.AuditLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, model.AuditActionLogin, logs[1].Action)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, store := newTestService(t)
	register(t, svc, "dave", "dave@example.com", "")

	_, err := svc.Login(context.Background(), model.LoginRequest{Email: "dave@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), model.LoginRequest{Email: "nobody@example.com", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	assert.Len(t, store.AuditLogs(), 1, "failed logins are not audited as LOGIN")
}

func TestValidateToken_Garbage(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ValidateToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
