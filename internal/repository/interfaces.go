package repository

import (
	"context"
	"errors"

	"github.com/geoclinic/clinic-api/internal/model"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id int64) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		GetByUsername(ctx context.Context, username string) (*model.User, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id int64) (*model.Patient, error)
		GetByUserID(ctx context.Context, userID int64) (*model.Patient, error)
	}

	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.Doctor) error
		Get(ctx context.Context, id int64) (*model.Doctor, error)
		GetByUserID(ctx context.Context, userID int64) (*model.Doctor, error)
		List(ctx context.Context) ([]*model.Doctor, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id int64) (*model.Appointment, error)
		ListByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error)
		ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error)
		CountByCells(ctx context.Context, cells []string) ([]model.RegionCount, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error)
	}

	RegionStatsRepository interface {
		Increment(ctx context.Context, cellID string, appointmentID int64) error
		List(ctx context.Context, limit int) ([]*model.RegionStat, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// FetchPending locks up to limit pending rows for the current
		// transaction; other relays skip them.
		FetchPending(ctx context.Context, limit, maxAttempts int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, event *model.OutboxEvent) error
		MarkFailed(ctx context.Context, event *model.OutboxEvent, cause error, final bool) error
	}

	// Repositories groups the repositories bound to one connection or
	// transaction.
	Repositories interface {
		Users() UserRepository
		Patients() PatientRepository
		Doctors() DoctorRepository
		Appointments() AppointmentRepository
		Audit() AuditRepository
		RegionStats() RegionStatsRepository
		Outbox() OutboxRepository
	}

	// Tx is a unit of work. Writes made through it become visible together
	// when the enclosing WithTx returns nil.
	Tx interface {
		Repositories
		Savepoint(ctx context.Context, name string) error
		RollbackToSavepoint(ctx context.Context, name string) error
		ReleaseSavepoint(ctx context.Context, name string) error
	}

	// Store is the entry point to persistent state.
	Store interface {
		Repositories
		WithTx(ctx context.Context, fn func(tx Tx) error) error
		Ping(ctx context.Context) error
	}
)
