// Package monitor periodically summarizes a study from its store. It only
// reads, so it can run in a separate process from the sweep.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/progress"
	"github.com/signalnine/hypersweep/internal/report"
	"github.com/signalnine/hypersweep/internal/study"
)

type Monitor struct {
	Source   study.Enumerator
	Study    string
	Interval time.Duration
	Target   int
	TopK     int
	Window   int
	Mode     fitness.Mode
	Seeds    int
	Out      io.Writer
	Log      *slog.Logger
	Now      func() time.Time
}

// Run polls until ctx is cancelled. Read errors are logged and retried on
// the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	m.logger().Info("monitoring study", "study", m.Study, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.logger().Error("reading trials", "study", m.Study, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll reads the study once and writes a status block.
func (m *Monitor) Poll(ctx context.Context) error {
	trials, err := m.Source.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerating %s: %w", m.Study, err)
	}
	s := progress.Summarize(trials, m.Target, progress.WithTopK(m.TopK), progress.WithWindow(m.Window))
	return report.WriteStatus(m.Out, report.StatusInput{
		Study:   m.Study,
		Summary: s,
		Mode:    m.Mode,
		Seeds:   m.Seeds,
		Now:     m.now(),
	})
}

func (m *Monitor) logger() *slog.Logger {
	if m.Log == nil {
		return slog.Default()
	}
	return m.Log
}

func (m *Monitor) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
