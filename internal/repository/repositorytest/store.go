// Package repositorytest provides an in-memory repository.Store with real
// commit, rollback and savepoint semantics for service tests.
package repositorytest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/internal/repository"
)

type state struct {
	nextID       int64
	users        map[int64]model.User
	patients     map[int64]model.Patient
	doctors      map[int64]model.Doctor
	appointments map[int64]model.Appointment
	audit        []model.AuditLog
	regionStats  map[string]model.RegionStat
	outbox       []model.OutboxEvent
}

func newState() *state {
	return &state{
		users:        map[int64]model.User{},
		patients:     map[int64]model.Patient{},
		doctors:      map[int64]model.Doctor{},
		appointments: map[int64]model.Appointment{},
		regionStats:  map[string]model.RegionStat{},
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.regionStats {
		c.regionStats[k] = v
	}
	c.audit = append([]model.AuditLog(nil), s.audit...)
	c.outbox = append([]model.OutboxEvent(nil), s.outbox...)
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store is safe for concurrent use; transactions are serialized.
type Store struct {
	txMu sync.Mutex // serializes units of work
	mu   sync.Mutex // guards st and failures
	st   *state

	failures map[string]error

	Commits   int
	Rollbacks int
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState(), failures: map[string]error{}}
}

// FailOn makes the named operation, e.g. "Audit.Create" or "Commit",
// return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[op]
}

// direct runs fn against committed state, outside any unit of work.
func (s *Store) direct(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) view() *view {
	return &view{store: s, run: s.direct}
}

func (s *Store) Users() repository.UserRepository               { return userRepo{s.view()} }
func (s *Store) Patients() repository.PatientRepository         { return patientRepo{s.view()} }
func (s *Store) Doctors() repository.DoctorRepository           { return doctorRepo{s.view()} }
func (s *Store) Appointments() repository.AppointmentRepository { return appointmentRepo{s.view()} }
func (s *Store) Audit() repository.AuditRepository              { return auditRepo{s.view()} }
func (s *Store) RegionStats() repository.RegionStatsRepository  { return regionRepo{s.view()} }
func (s *Store) Outbox() repository.OutboxRepository            { return outboxRepo{s.view()} }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.fail("Ping"); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := s.fail("Begin"); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.st.clone()
	s.mu.Unlock()

	tx := &txScope{store: s, work: work, savepoints: map[string]*state{}}
	rollback := func() {
		s.mu.Lock()
		s.Rollbacks++
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		rollback()
		return err
	}
	if err := s.fail("Commit"); err != nil {
		rollback()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	s.st = tx.work
	s.Commits++
	s.mu.Unlock()
	return nil
}

type txScope struct {
	store      *Store
	work       *state
	savepoints map[string]*state
}

func (t *txScope) view() *view {
	return &view{store: t.store, run: func(fn func(st *state) error) error { return fn(t.work) }}
}

func (t *txScope) Users() repository.UserRepository               { return userRepo{t.view()} }
func (t *txScope) Patients() repository.PatientRepository         { return patientRepo{t.view()} }
func (t *txScope) Doctors() repository.DoctorRepository           { return doctorRepo{t.view()} }
func (t *txScope) Appointments() repository.AppointmentRepository { return appointmentRepo{t.view()} }
func (t *txScope) Audit() repository.AuditRepository              { return auditRepo{t.view()} }
func (t *txScope) RegionStats() repository.RegionStatsRepository  { return regionRepo{t.view()} }
func (t *txScope) Outbox() repository.OutboxRepository            { return outboxRepo{t.view()} }

func (t *txScope) Savepoint(_ context.Context, name string) error {
	if err := t.store.fail("Savepoint"); err != nil {
		return err
	}
	t.savepoints[name] = t.work.clone()
	return nil
}

func (t *txScope) RollbackToSavepoint(_ context.Context, name string) error {
	snap, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("savepoint %q does not exist", name)
	}
	t.work = snap.clone()
	return nil
}

func (t *txScope) ReleaseSavepoint(_ context.Context, name string) error {
	if _, ok := t.savepoints[name]; !ok {
		return fmt.Errorf("savepoint %q does not exist", name)
	}
	delete(t.savepoints, name)
	return nil
}

type view struct {
	store *Store
	run   func(fn func(st *state) error) error
}

func (v *view) do(op string, fn func(st *state) error) error {
	if err := v.store.fail(op); err != nil {
		return err
	}
	return v.run(fn)
}

// Seed helpers write committed state directly.

func (s *Store) AddUser(u model.User) model.User {
	_ = s.direct(func(st *state) error {
		u.ID = st.id()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		st.users[u.ID] = u
		return nil
	})
	return u
}

func (s *Store) AddPatient(p model.Patient) model.Patient {
	_ = s.direct(func(st *state) error {
		p.ID = st.id()
		st.patients[p.ID] = p
		return nil
	})
	return p
}

func (s *Store) AddDoctor(d model.Doctor) model.Doctor {
	_ = s.direct(func(st *state) error {
		d.ID = st.id()
		st.doctors[d.ID] = d
		return nil
	})
	return d
}

// Snapshot accessors read committed state.

func (s *Store) AuditLogs() []model.AuditLog {
	var out []model.AuditLog
	_ = s.direct(func(st *state) error {
		out = append(out, st.audit...)
		return nil
	})
	return out
}

func (s *Store) AllAppointments() []model.Appointment {
	var out []model.Appointment
	_ = s.direct(func(st *state) error {
		for _, a := range st.appointments {
			out = append(out, a)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) AllPatients() []model.Patient {
	var out []model.Patient
	_ = s.direct(func(st *state) error {
		for _, p := range st.patients {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) OutboxEvents() []model.OutboxEvent {
	var out []model.OutboxEvent
	_ = s.direct(func(st *state) error {
		out = append(out, st.outbox...)
		return nil
	})
	return out
}

func (s *Store) RegionStat(cellID string) (model.RegionStat, bool) {
	var (
		rs model.RegionStat
		ok bool
	)
	_ = s.direct(func(st *state) error {
		rs, ok = st.regionStats[cellID]
		return nil
	})
	return rs, ok
}

var errNilEvent = errors.New("event cannot be nil")

type userRepo struct{ v *view }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	return r.v.do("Users.Create", func(st *state) error {
		for _, u := range st.users {
			if u.Email == user.Email || u.Username == user.Username {
				return fmt.Errorf("failed to create user: %w", repository.ErrDuplicate)
			}
		}
		user.ID = st.id()
		user.CreatedAt = time.Now().UTC()
		st.users[user.ID] = *user
		return nil
	})
}

func (r userRepo) Get(_ context.Context, id int64) (*model.User, error) {
	return r.find("Users.Get", func(u model.User) bool { return u.ID == id })
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find("Users.GetByEmail", func(u model.User) bool { return u.Email == email })
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find("Users.GetByUsername", func(u model.User) bool { return u.Username == username })
}

func (r userRepo) find(op string, match func(model.User) bool) (*model.User, error) {
	var found *model.User
	err := r.v.do(op, func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				u := u
				found = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

type patientRepo struct{ v *view }

func (r patientRepo) Create(_ context.Context, patient *model.Patient) error {
	return r.v.do("Patients.Create", func(st *state) error {
		for _, p := range st.patients {
			if p.UserID == patient.UserID {
				return fmt.Errorf("failed to create patient: %w", repository.ErrDuplicate)
			}
		}
		patient.ID = st.id()
		patient.CreatedAt = time.Now().UTC()
		st.patients[patient.ID] = *patient
		return nil
	})
}

func (r patientRepo) Get(_ context.Context, id int64) (*model.Patient, error) {
	var found *model.Patient
	err := r.v.do("Patients.Get", func(st *state) error {
		p, ok := st.patients[id]
		if !ok {
			return repository.ErrNotFound
		}
		found = &p
		return nil
	})
	return found, err
}

func (r patientRepo) GetByUserID(_ context.Context, userID int64) (*model.Patient, error) {
	var found *model.Patient
	err := r.v.do("Patients.GetByUserID", func(st *state) error {
		for _, p := range st.patients {
			if p.UserID == userID {
				p := p
				found = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

type doctorRepo struct{ v *view }

func (r doctorRepo) Create(_ context.Context, doctor *model.Doctor) error {
	return r.v.do("Doctors.Create", func(st *state) error {
		for _, d := range st.doctors {
			if d.UserID == doctor.UserID {
				return fmt.Errorf("failed to create doctor: %w", repository.ErrDuplicate)
			}
		}
		doctor.ID = st.id()
		doctor.CreatedAt = time.Now().UTC()
		st.doctors[doctor.ID] = *doctor
		return nil
	})
}

func (r doctorRepo) Get(_ context.Context, id int64) (*model.Doctor, error) {
	var found *model.Doctor
	err := r.v.do("Doctors.Get", func(st *state) error {
		d, ok := st.doctors[id]
		if !ok {
			return repository.ErrNotFound
		}
		found = &d
		return nil
	})
	return found, err
}

func (r doctorRepo) GetByUserID(_ context.Context, userID int64) (*model.Doctor, error) {
	var found *model.Doctor
	err := r.v.do("Doctors.GetByUserID", func(st *state) error {
		for _, d := range st.doctors {
			if d.UserID == userID {
				d := d
				found = &d
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

func (r doctorRepo) List(_ context.Context) ([]*model.Doctor, error) {
	var out []*model.Doctor
	err := r.v.do("Doctors.List", func(st *state) error {
		for _, d := range st.doctors {
			d := d
			out = append(out, &d)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

type appointmentRepo struct{ v *view }

func (r appointmentRepo) Create(_ context.Context, appointment *model.Appointment) error {
	return r.v.do("Appointments.Create", func(st *state) error {
		appointment.ID = st.id()
		appointment.CreatedAt = time.Now().UTC()
		st.appointments[appointment.ID] = *appointment
		return nil
	})
}

func (r appointmentRepo) Get(_ context.Context, id int64) (*model.Appointment, error) {
	var found *model.Appointment
	err := r.v.do("Appointments.Get", func(st *state) error {
		a, ok := st.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		found = &a
		return nil
	})
	return found, err
}

func (r appointmentRepo) ListByPatient(_ context.Context, patientID int64) ([]*model.Appointment, error) {
	return r.list("Appointments.ListByPatient", func(a model.Appointment) bool { return a.PatientID == patientID })
}

func (r appointmentRepo) ListByDoctor(_ context.Context, doctorID int64) ([]*model.Appointment, error) {
	return r.list("Appointments.ListByDoctor", func(a model.Appointment) bool { return a.DoctorID == doctorID })
}

func (r appointmentRepo) list(op string, match func(model.Appointment) bool) ([]*model.Appointment, error) {
	var out []*model.Appointment
	err := r.v.do(op, func(st *state) error {
		for _, a := range st.appointments {
			if match(a) {
				a := a
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r appointmentRepo) CountByCells(_ context.Context, cells []string) ([]model.RegionCount, error) {
	want := make(map[string]bool, len(cells))
	for _, c := range cells {
		want[c] = true
	}
	counts := map[string]int64{}
	err := r.v.do("Appointments.CountByCells", func(st *state) error {
		for _, a := range st.appointments {
			if want[a.CellID] {
				counts[a.CellID]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []model.RegionCount
	for cell, n := range counts {
		out = append(out, model.RegionCount{CellID: cell, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out, nil
}

type auditRepo struct{ v *view }

func (r auditRepo) Create(_ context.Context, log *model.AuditLog) error {
	return r.v.do("Audit.Create", func(st *state) error {
		log.ID = st.id()
		st.audit = append(st.audit, *log)
		return nil
	})
}

func (r auditRepo) List(_ context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	var out []*model.AuditLog
	err := r.v.do("Audit.List", func(st *state) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			l := st.audit[i]
			if filter.UserID != 0 && l.UserID != filter.UserID {
				continue
			}
			if filter.Action != "" && l.Action != filter.Action {
				continue
			}
			if filter.EntityType != "" && l.EntityType != filter.EntityType {
				continue
			}
			out = append(out, &l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

type regionRepo struct{ v *view }

func (r regionRepo) Increment(_ context.Context, cellID string, appointmentID int64) error {
	return r.v.do("RegionStats.Increment", func(st *state) error {
		rs := st.regionStats[cellID]
		rs.CellID = cellID
		rs.AppointmentCount++
		rs.LastAppointmentID = appointmentID
		rs.UpdatedAt = time.Now().UTC()
		st.regionStats[cellID] = rs
		return nil
	})
}

func (r regionRepo) List(_ context.Context, limit int) ([]*model.RegionStat, error) {
	var out []*model.RegionStat
	err := r.v.do("RegionStats.List", func(st *state) error {
		for _, rs := range st.regionStats {
			rs := rs
			out = append(out, &rs)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppointmentCount != out[j].AppointmentCount {
			return out[i].AppointmentCount > out[j].AppointmentCount
		}
		return out[i].CellID < out[j].CellID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, err
}

type outboxRepo struct{ v *view }

func (r outboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return errNilEvent
	}
	return r.v.do("Outbox.Create", func(st *state) error {
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		event.Status = model.OutboxStatusPending
		event.CreatedAt = time.Now().UTC()
		st.outbox = append(st.outbox, *event)
		return nil
	})
}

func (r outboxRepo) FetchPending(_ context.Context, limit, maxAttempts int) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	err := r.v.do("Outbox.FetchPending", func(st *state) error {
		for _, e := range st.outbox {
			if e.Status == model.OutboxStatusPending && e.Attempts < maxAttempts {
				e := e
				out = append(out, &e)
				if len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (r outboxRepo) MarkProcessed(_ context.Context, event *model.OutboxEvent) error {
	return r.update("Outbox.MarkProcessed", event, func(e *model.OutboxEvent) {
		now := time.Now().UTC()
		e.Status = model.OutboxStatusProcessed
		e.Attempts++
		e.LastError = nil
		e.ProcessedAt = &now
	})
}

func (r outboxRepo) MarkFailed(_ context.Context, event *model.OutboxEvent, cause error, final bool) error {
	return r.update("Outbox.MarkFailed", event, func(e *model.OutboxEvent) {
		msg := cause.Error()
		e.Status = model.OutboxStatusPending
		if final {
			e.Status = model.OutboxStatusFailed
		}
		e.Attempts++
		e.LastError = &msg
	})
}

func (r outboxRepo) update(op string, event *model.OutboxEvent, apply func(e *model.OutboxEvent)) error {
	return r.v.do(op, func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == event.ID {
				apply(&st.outbox[i])
				*event = st.outbox[i]
				return nil
			}
		}
		return repository.ErrNotFound
	})
}
