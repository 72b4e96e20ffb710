// Package progress summarizes a snapshot of trial records: counts, best and
// top-k trials, and a time-remaining estimate. It holds no state.
package progress

import (
	"slices"
	"time"

	"github.com/signalnine/hypersweep/internal/result"
)

const (
	DefaultTopK   = 5
	DefaultWindow = 10
)

type Summary struct {
	Total     int
	Completed int
	Running   int
	Failed    int
	Target    int

	// Best is nil until a trial completes.
	Best *result.Trial
	Top  []*result.Trial

	MeanDuration time.Duration
	ETA          time.Duration
	// ETAKnown is false until the window holds two completed trials, and
	// always false without a positive target.
	ETAKnown bool
	Percent  int

	LastCompleted time.Time
}

type options struct {
	topK   int
	window int
}

type Option func(*options)

func WithTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithWindow sets how many of the most recent completed trials feed the
// duration average.
func WithWindow(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// Summarize only counts successful trials as completed. Failed trials are
// reported separately and never rank or feed the ETA.
func Summarize(trials []*result.Trial, target int, opts ...Option) Summary {
	o := options{topK: DefaultTopK, window: DefaultWindow}
	for _, fn := range opts {
		fn(&o)
	}

	s := Summary{Total: len(trials), Target: target}
	var completed []*result.Trial
	for _, t := range trials {
		switch t.State {
		case result.StateComplete:
			completed = append(completed, t)
			if t.CompletedAt.After(s.LastCompleted) {
				s.LastCompleted = t.CompletedAt
			}
		case result.StateRunning:
			s.Running++
		default:
			s.Failed++
		}
	}
	s.Completed = len(completed)
	if s.Completed == 0 {
		return s
	}

	byNumber := slices.Clone(completed)
	slices.SortStableFunc(byNumber, func(a, b *result.Trial) int { return a.Number - b.Number })

	ranked := slices.Clone(byNumber)
	slices.SortStableFunc(ranked, func(a, b *result.Trial) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		}
		return 0
	})
	s.Best = ranked[0]
	s.Top = ranked[:min(o.topK, len(ranked))]

	if target > 0 {
		s.Percent = s.Completed * 100 / target
	}

	window := byNumber[max(0, len(byNumber)-o.window):]
	if len(window) >= 2 {
		var sum time.Duration
		for _, t := range window {
			sum += t.Duration()
		}
		s.MeanDuration = sum / time.Duration(len(window))
		// Without a target there is nothing to count down to.
		if target > 0 {
			remaining := max(0, target-s.Completed)
			s.ETA = time.Duration(remaining) * s.MeanDuration
			s.ETAKnown = true
		}
	}
	return s
}
