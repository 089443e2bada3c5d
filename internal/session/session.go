// Package session holds the process-wide cancellation state and the registry of
// external resources that must be released when a run ends, however it ends.
//
// The interrupt handler only trips the session. Releasing resources happens on
// the workflow side, either through each resource's own scoped release or
// through Teardown at exit.
package session

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
)

// ErrInterrupted is returned by checkpoints once the session has been tripped.
var ErrInterrupted = errors.InterruptedError("interrupted").Build()

// Kind labels a registered resource for logging.
type Kind string

const (
	KindContainer Kind = "container"
	KindTempDir   Kind = "temp_dir"
)

// ReleaseFunc frees one external resource.
type ReleaseFunc func(ctx context.Context) error

// Resource is a registered external resource. Release is safe to call any
// number of times; only the first call has an effect.
type Resource struct {
	Kind Kind
	ID   string

	owner   *Session
	release ReleaseFunc
	once    sync.Once
	err     error
}

// Standalone returns a resource that belongs to no session.
func Standalone(kind Kind, id string, release ReleaseFunc) *Resource {
	return &Resource{Kind: kind, ID: id, release: release}
}

// Release frees the resource and removes it from its session's registry.
func (r *Resource) Release(ctx context.Context) error {
	r.once.Do(func() {
		r.err = r.release(ctx)
		if r.owner != nil {
			r.owner.forget(r)
		}
		if r.err != nil {
			slog.WarnContext(ctx, "Failed to release resource",
				slog.String("kind", string(r.Kind)), slog.String("id", r.ID), slog.String("error", r.err.Error()))
			return
		}
		slog.DebugContext(ctx, "Released resource", slog.String("kind", string(r.Kind)), slog.String("id", r.ID))
	})
	return r.err
}

// Session is shared by the workflow and the interrupt handler.
type Session struct {
	tripped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	resources []*Resource
}

// New returns a session whose context is cancelled when the session trips.
func New(parent context.Context) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{ctx: ctx, cancel: cancel}
}

// Context is cancelled once the session trips.
func (s *Session) Context() context.Context { return s.ctx }

// Trip marks the session interrupted. It is safe to call from any goroutine.
func (s *Session) Trip() {
	if s.tripped.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// Tripped reports whether Trip has been called.
func (s *Session) Tripped() bool { return s.tripped.Load() }

// Checkpoint returns ErrInterrupted once the session has tripped.
func (s *Session) Checkpoint() error {
	if s.Tripped() {
		return ErrInterrupted
	}
	return nil
}

// Result folds the session state into a command's error. Once tripped, the
// result always carries ErrInterrupted so the run exits as interrupted, even
// when the command surfaced the cancellation as some other failure.
func (s *Session) Result(err error) error {
	switch {
	case !s.Tripped():
		return err
	case err == nil:
		return ErrInterrupted
	case errors.HasCategory(err, errors.CategoryInterrupted):
		return err
	default:
		return stderrors.Join(ErrInterrupted, err)
	}
}

// Register adds a resource to the teardown registry.
func (s *Session) Register(kind Kind, id string, release ReleaseFunc) *Resource {
	r := &Resource{Kind: kind, ID: id, owner: s, release: release}
	s.mu.Lock()
	s.resources = append(s.resources, r)
	s.mu.Unlock()
	return r
}

// Pending returns the resources not yet released, oldest first.
func (s *Session) Pending() []*Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.resources)
}

func (s *Session) forget(r *Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = slices.DeleteFunc(s.resources, func(x *Resource) bool { return x == r })
}

// Teardown releases every pending resource, newest first, and joins the errors.
// The context passed should not be the session context, which is already
// cancelled after an interrupt.
func (s *Session) Teardown(ctx context.Context) error {
	pending := s.Pending()
	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Watch trips the session when one of sigs arrives. The returned function
// stops watching.
func (s *Session) Watch(sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			slog.Warn("Received signal, stopping", slog.String("signal", sig.String()))
			s.Trip()
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
