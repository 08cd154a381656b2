package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := PatientProfileNotFound(42)

	assert.True(t, stderrors.Is(err, ErrPatientProfileNotFound))
	assert.False(t, stderrors.Is(err, ErrDoctorProfileNotFound))

	wrapped := fmt.Errorf("create appointment: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrPatientProfileNotFound))
}

func TestPersistence_KeepsDomainErrors(t *testing.T) {
	domain := DoctorProfileNotFound("id", 5)
	assert.Same(t, domain, Persistence("insert appointment", domain))

	raw := stderrors.New("connection reset")
	err := Persistence("insert appointment", raw)
	assert.True(t, stderrors.Is(err, ErrPersistenceFailure))
	assert.True(t, stderrors.Is(err, raw))

	assert.Nil(t, Persistence("noop", nil))
}

func TestStatusCode(t *testing.T) {
	cases := map[*AppError]int{
		DuplicateIdentity("email"):  http.StatusConflict,
		InvalidCredentials():        http.StatusUnauthorized,
		PatientProfileNotFound(1):   http.StatusNotFound,
		AuthorizationDenied("role"): http.StatusForbidden,
		InvalidCoordinate(nil):      http.StatusBadRequest,
		HandlerFailure("x", nil):    http.StatusInternalServerError,
		LockUnavailable(nil):        http.StatusServiceUnavailable,
	}
	for err, want := range cases {
		assert.Equal(t, want, err.StatusCode(), err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidCoordinate, CodeOf(InvalidCoordinate(nil)))
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("boom")))
}
