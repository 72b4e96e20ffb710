// Package study ties a parameter space and a suggester to a persisted study.
// The sweep driver and the monitor only see the narrow Sampler and Enumerator
// interfaces, so tests can substitute deterministic fakes.
package study

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalnine/hypersweep/internal/result"
	"github.com/signalnine/hypersweep/internal/space"
)

type Enumerator interface {
	Enumerate(ctx context.Context) ([]*result.Trial, error)
}

type Sampler interface {
	Enumerator
	// Propose samples a configuration and registers it as a running trial.
	Propose(ctx context.Context) (*result.Trial, error)
	// Record stores the outcome of a proposed trial. Recording the same
	// trial twice keeps the first outcome.
	Record(ctx context.Context, trialID string, c result.Completion) error
}

type Study struct {
	store     result.Store
	info      *result.Study
	space     *space.Space
	suggester space.Suggester
	now       func() time.Time

	mu sync.Mutex
}

type Option func(*Study)

// WithClock overrides the time source used for trial timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Study) { s.now = now }
}

// Open loads the named study, creating it if it does not exist.
func Open(ctx context.Context, store result.Store, name string, sp *space.Space, sg space.Suggester, opts ...Option) (*Study, error) {
	info, err := store.OpenStudy(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("opening study %q: %w", name, err)
	}
	s := &Study{store: store, info: info, space: sp, suggester: sg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Study) Info() result.Study { return *s.info }

func (s *Study) Space() *space.Space { return s.space }

func (s *Study) Propose(ctx context.Context) (*result.Trial, error) {
	// One proposal at a time keeps seeded sampling reproducible.
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.space.Sample(s.suggester)
	if err != nil {
		return nil, fmt.Errorf("sampling configuration: %w", err)
	}
	t, err := s.store.CreateTrial(ctx, s.info.ID, cfg, s.now())
	if err != nil {
		return nil, fmt.Errorf("registering trial: %w", err)
	}
	return t, nil
}

func (s *Study) Record(ctx context.Context, trialID string, c result.Completion) error {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = s.now()
	}
	if err := s.store.FinishTrial(ctx, trialID, c); err != nil {
		return fmt.Errorf("recording trial: %w", err)
	}
	return nil
}

func (s *Study) Enumerate(ctx context.Context) ([]*result.Trial, error) {
	return s.store.Trials(ctx, s.info.ID)
}

// Reader enumerates a study by name without creating it. The study is looked
// up on every call so a monitor can start before the sweep does.
type Reader struct {
	Store result.Store
	Name  string
}

func (r *Reader) Enumerate(ctx context.Context) ([]*result.Trial, error) {
	info, err := r.Store.FindStudy(ctx, r.Name)
	if err != nil {
		return nil, err
	}
	return r.Store.Trials(ctx, info.ID)
}

// LocationReader is a Reader over a storage location that it opens read-only
// on first use. A failed open is retried on the next call, so a monitor can
// be pointed at a database the sweep has not created yet.
type LocationReader struct {
	Location string
	Name     string

	mu    sync.Mutex
	store result.Store
}

func (r *LocationReader) Enumerate(ctx context.Context) ([]*result.Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		store, err := result.OpenReader(ctx, r.Location)
		if err != nil {
			return nil, err
		}
		r.store = store
	}
	return (&Reader{Store: r.store, Name: r.Name}).Enumerate(ctx)
}

func (r *LocationReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}
