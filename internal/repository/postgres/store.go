package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/geoclinic/clinic-api/internal/repository"
)

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type repos struct {
	users        repository.UserRepository
	patients     repository.PatientRepository
	doctors      repository.DoctorRepository
	appointments repository.AppointmentRepository
	audit        repository.AuditRepository
	regionStats  repository.RegionStatsRepository
	outbox       repository.OutboxRepository
}

func newRepos(q queryer) repos {
	base := NewBaseRepository(q)
	return repos{
		users:        NewUserRepository(base),
		patients:     NewPatientRepository(base),
		doctors:      NewDoctorRepository(base),
		appointments: NewAppointmentRepository(base),
		audit:        NewAuditRepository(base),
		regionStats:  NewRegionStatsRepository(base),
		outbox:       NewOutboxRepository(base),
	}
}

func (r repos) Users() repository.UserRepository               { return r.users }
func (r repos) Patients() repository.PatientRepository         { return r.patients }
func (r repos) Doctors() repository.DoctorRepository           { return r.doctors }
func (r repos) Appointments() repository.AppointmentRepository { return r.appointments }
func (r repos) Audit() repository.AuditRepository              { return r.audit }
func (r repos) RegionStats() repository.RegionStatsRepository  { return r.regionStats }
func (r repos) Outbox() repository.OutboxRepository            { return r.outbox }

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	repos
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{repos: newRepos(db), db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txScope{repos: newRepos(tx), tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txScope struct {
	repos
	tx *sqlx.Tx
}

func (t *txScope) Savepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "SAVEPOINT ", name)
}

func (t *txScope) RollbackToSavepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

func (t *txScope) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "RELEASE SAVEPOINT ", name)
}

// Savepoint names cannot be bound as parameters, hence the whitelist.
func (t *txScope) savepointExec(ctx context.Context, stmt, name string) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, stmt+name); err != nil {
		return fmt.Errorf("failed to execute %s%s: %w", stmt, name, err)
	}
	return nil
}
