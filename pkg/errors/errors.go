package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can compare
// against the Err* sentinels below regardless of message or cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case CodeNotFound, CodePatientProfileNotFound, CodeDoctorProfileNotFound:
		return http.StatusNotFound
	case CodeBadRequest, CodeInvalidCoordinate:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden, CodeAuthorizationDenied:
		return http.StatusForbidden
	case CodeDuplicateIdentity, CodeProfileExists, CodeBookingInProgress:
		return http.StatusConflict
	case CodeLockUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	CodeNotFound ErrorCode = iota + 1000
	CodeBadRequest
	CodeUnauthorized
	CodeForbidden
	CodeInternal
)

// Domain error codes
const (
	CodeDuplicateIdentity ErrorCode = iota + 2000
	CodeInvalidCredentials
	CodePatientProfileNotFound
	CodeDoctorProfileNotFound
	CodeAuthorizationDenied
	CodeInvalidCoordinate
	CodePersistenceFailure
	CodeHandlerFailure
	CodeProfileExists
	CodeBookingInProgress
	CodeLockUnavailable
)

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound               = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrBadRequest             = &AppError{Code: CodeBadRequest, Message: "bad request"}
	ErrUnauthorized           = &AppError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrInternal               = &AppError{Code: CodeInternal, Message: "internal server error"}
	ErrDuplicateIdentity      = &AppError{Code: CodeDuplicateIdentity, Message: "identity already registered"}
	ErrInvalidCredentials     = &AppError{Code: CodeInvalidCredentials, Message: "invalid credentials"}
	ErrPatientProfileNotFound = &AppError{Code: CodePatientProfileNotFound, Message: "patient profile not found"}
	ErrDoctorProfileNotFound  = &AppError{Code: CodeDoctorProfileNotFound, Message: "doctor profile not found"}
	ErrAuthorizationDenied    = &AppError{Code: CodeAuthorizationDenied, Message: "access denied"}
	ErrInvalidCoordinate      = &AppError{Code: CodeInvalidCoordinate, Message: "invalid coordinate"}
	ErrPersistenceFailure     = &AppError{Code: CodePersistenceFailure, Message: "persistence failure"}
	ErrHandlerFailure         = &AppError{Code: CodeHandlerFailure, Message: "event handler failed"}
	ErrProfileExists          = &AppError{Code: CodeProfileExists, Message: "profile already exists"}
	ErrBookingInProgress      = &AppError{Code: CodeBookingInProgress, Message: "another booking for this patient is in progress"}
	ErrLockUnavailable        = &AppError{Code: CodeLockUnavailable, Message: "booking lock unavailable"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// DuplicateIdentity reports an email or username that is already taken.
func DuplicateIdentity(field string) *AppError {
	return &AppError{
		Code:    CodeDuplicateIdentity,
		Message: fmt.Sprintf("%s already registered", field),
	}
}

func InvalidCredentials() *AppError {
	return &AppError{Code: CodeInvalidCredentials, Message: "invalid credentials"}
}

func PatientProfileNotFound(userID int64) *AppError {
	return &AppError{
		Code:    CodePatientProfileNotFound,
		Message: "patient profile not found",
		Err:     fmt.Errorf("user %d has no patient profile", userID),
	}
}

func DoctorProfileNotFound(ref string, id int64) *AppError {
	return &AppError{
		Code:    CodeDoctorProfileNotFound,
		Message: "doctor profile not found",
		Err:     fmt.Errorf("no doctor for %s %d", ref, id),
	}
}

func AuthorizationDenied(reason string) *AppError {
	return &AppError{
		Code:    CodeAuthorizationDenied,
		Message: "access denied",
		Err:     stderrors.New(reason),
	}
}

func InvalidCoordinate(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidCoordinate,
		Message: "invalid coordinate",
		Err:     err,
	}
}

// Persistence wraps a storage-layer error. Errors that already carry an
// AppError are returned untouched so domain kinds survive the wrap.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return &AppError{
		Code:    CodePersistenceFailure,
		Message: "persistence failure",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

func HandlerFailure(handler string, err error) *AppError {
	return &AppError{
		Code:    CodeHandlerFailure,
		Message: "event handler failed",
		Err:     fmt.Errorf("%s: %w", handler, err),
	}
}

func ProfileExists(kind string) *AppError {
	return &AppError{
		Code:    CodeProfileExists,
		Message: fmt.Sprintf("%s profile already exists", kind),
	}
}

func BookingInProgress(err error) *AppError {
	return &AppError{
		Code:    CodeBookingInProgress,
		Message: "another booking for this patient is in progress",
		Err:     err,
	}
}

// LockUnavailable reports a failure of the booking lock backend, as
// opposed to the storage layer.
func LockUnavailable(err error) *AppError {
	return &AppError{
		Code:    CodeLockUnavailable,
		Message: "booking lock unavailable",
		Err:     err,
	}
}

// CodeOf extracts the AppError code, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
