package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/geoclinic/clinic-api/internal/repository"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
	"github.com/geoclinic/clinic-api/pkg/metrics"
)

// HandlerFunc reacts to a published event. uow is the publisher's unit of
// work; writes made through it commit or roll back with the publisher.
type HandlerFunc func(ctx context.Context, payload interface{}, uow repository.Tx) error

type subscription struct {
	name     string
	fn       HandlerFunc
	required bool
}

type Option func(*subscription)

// Named sets the handler name used in logs, metrics and failure reports.
func Named(name string) Option {
	return func(s *subscription) { s.name = name }
}

// Required makes a handler failure abort the publish and, with it, the
// publisher's unit of work.
func Required() Option {
	return func(s *subscription) { s.required = true }
}

type registry map[string][]subscription

// Dispatcher routes named events to handlers in subscription order. Build
// it at startup, Subscribe, then Freeze; Publish reads an immutable
// snapshot and never locks.
type Dispatcher struct {
	mu       sync.Mutex
	handlers atomic.Pointer[registry]
	frozen   atomic.Bool
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		metrics: m,
	}
	empty := registry{}
	d.handlers.Store(&empty)
	return d
}

// Subscribe appends fn to the handlers of name. Subscribing the same
// handler twice makes it run twice. Panics after Freeze.
func (d *Dispatcher) Subscribe(name string, fn HandlerFunc, opts ...Option) {
	if fn == nil {
		panic("event: nil handler for " + name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen.Load() {
		panic("event: Subscribe(" + name + ") after Freeze")
	}

	cur := *d.handlers.Load()
	sub := subscription{fn: fn}
	for _, opt := range opts {
		opt(&sub)
	}
	if sub.name == "" {
		sub.name = fmt.Sprintf("%s#%d", name, len(cur[name]))
	}

	next := make(registry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[name] = append(append([]subscription(nil), cur[name]...), sub)
	d.handlers.Store(&next)
}

func (d *Dispatcher) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen.Store(true)
}

// Handlers lists handler names for name in invocation order.
func (d *Dispatcher) Handlers(name string) []string {
	subs := (*d.handlers.Load())[name]
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.name
	}
	return out
}

// Publish invokes the handlers of name synchronously, in order. With no
// handlers it does nothing.
//
// Each handler runs inside a savepoint of uow. A failing optional handler
// is rolled back to its savepoint, logged and counted, and the chain
// continues; the failures are returned together as *HandlerFailures. A
// failing Required handler stops the chain and its error is returned as is.
func (d *Dispatcher) Publish(ctx context.Context, name string, payload interface{}, uow repository.Tx) error {
	subs := (*d.handlers.Load())[name]
	if len(subs) == 0 {
		return nil
	}

	var failures []Failure
	for i, sub := range subs {
		sp := fmt.Sprintf("evt_handler_%d", i)
		if uow != nil {
			if err := uow.Savepoint(ctx, sp); err != nil {
				return apperrors.Persistence("open handler savepoint", err)
			}
		}

		err := invoke(ctx, sub, payload, uow)
		if err == nil {
			if uow != nil {
				if err := uow.ReleaseSavepoint(ctx, sp); err != nil {
					return apperrors.Persistence("release handler savepoint", err)
				}
			}
			continue
		}

		d.metrics.HandlerFailures.WithLabelValues(name, sub.name).Inc()
		if sub.required {
			d.logger.Error().Err(err).Str("event", name).Str("handler", sub.name).Msg("required handler failed")
			return apperrors.HandlerFailure(sub.name, err)
		}

		if uow != nil {
			if rbErr := uow.RollbackToSavepoint(ctx, sp); rbErr != nil {
				return apperrors.Persistence("rollback handler savepoint", rbErr)
			}
		}
		d.logger.Warn().Err(err).Str("event", name).Str("handler", sub.name).Msg("handler failed, continuing")
		failures = append(failures, Failure{Handler: sub.name, Err: err})
	}

	if len(failures) > 0 {
		return &HandlerFailures{Event: name, Failures: failures}
	}
	return nil
}

func invoke(ctx context.Context, sub subscription, payload interface{}, uow repository.Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sub.fn(ctx, payload, uow)
}

type Failure struct {
	Handler string
	Err     error
}

// HandlerFailures reports optional handlers that failed during one publish.
// The publisher's unit of work is still usable.
type HandlerFailures struct {
	Event    string
	Failures []Failure
}

func (h *HandlerFailures) Error() string {
	parts := make([]string, len(h.Failures))
	for i, f := range h.Failures {
		parts[i] = f.Handler + ": " + f.Err.Error()
	}
	return fmt.Sprintf("%d handler(s) failed for %s: %s", len(h.Failures), h.Event, strings.Join(parts, "; "))
}

// Unwrap exposes each failure as an ErrHandlerFailure-kind error.
func (h *HandlerFailures) Unwrap() []error {
	out := make([]error, len(h.Failures))
	for i, f := range h.Failures {
		out[i] = apperrors.HandlerFailure(f.Handler, f.Err)
	}
	return out
}

// IsolatedFailures extracts the report from a Publish error, if that is
// all the error is.
func IsolatedFailures(err error) (*HandlerFailures, bool) {
	var hf *HandlerFailures
	if errors.As(err, &hf) {
		return hf, true
	}
	return nil, false
}
