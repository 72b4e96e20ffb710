package result

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/space"
)

type MemoryStore struct {
	mu      sync.RWMutex
	studies map[string]*Study
	trials  map[string]*Trial
	byStudy map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		studies: make(map[string]*Study),
		trials:  make(map[string]*Trial),
		byStudy: make(map[string][]string),
	}
}

func (s *MemoryStore) OpenStudy(_ context.Context, name string) (*Study, error) {
	if name == "" {
		return nil, fmt.Errorf("study name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.studies[name]; ok {
		cp := *st
		return &cp, nil
	}
	st := &Study{ID: uuid.NewString(), Name: name, Direction: "maximize", CreatedAt: time.Now().UTC()}
	s.studies[name] = st
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) FindStudy(_ context.Context, name string) (*Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.studies[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrStudyNotFound)
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) Studies(_ context.Context) ([]*Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Study, 0, len(s.studies))
	for _, st := range s.studies {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateTrial(_ context.Context, studyID string, params space.Config, startedAt time.Time) (*Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasStudy(studyID) {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrStudyNotFound)
	}
	t := &Trial{
		ID:        uuid.NewString(),
		StudyID:   studyID,
		Number:    len(s.byStudy[studyID]),
		State:     StateRunning,
		Params:    params,
		StartedAt: startedAt,
	}
	s.trials[t.ID] = t
	s.byStudy[studyID] = append(s.byStudy[studyID], t.ID)
	return copyTrial(t), nil
}

func (s *MemoryStore) FinishTrial(_ context.Context, trialID string, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trials[trialID]
	if !ok {
		return fmt.Errorf("%s: %w", trialID, ErrTrialNotFound)
	}
	if t.Finished() {
		return nil
	}
	t.State = c.State
	t.Value = c.Value
	if c.State != StateComplete {
		t.Value = fitness.Worst
	}
	t.Attrs = maps.Clone(c.Attrs)
	t.Failure = c.Failure
	t.Diagnostic = c.Diagnostic
	t.CompletedAt = c.CompletedAt
	return nil
}

func (s *MemoryStore) Trials(_ context.Context, studyID string) ([]*Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasStudy(studyID) {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrStudyNotFound)
	}
	ids := s.byStudy[studyID]
	out := make([]*Trial, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyTrial(s.trials[id]))
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) hasStudy(id string) bool {
	for _, st := range s.studies {
		if st.ID == id {
			return true
		}
	}
	return false
}

func copyTrial(t *Trial) *Trial {
	cp := *t
	cp.Attrs = maps.Clone(t.Attrs)
	return &cp
}
