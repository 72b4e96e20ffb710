package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/progress"
)

type StatusInput struct {
	Study   string
	Summary progress.Summary
	Mode    fitness.Mode
	// Seeds is the number of evaluation seeds per trial; 0 hides the count.
	Seeds int
	Now   time.Time
}

var rule = strings.Repeat("=", 80)

// WriteStatus renders one monitor refresh.
func WriteStatus(w io.Writer, in StatusInput) error {
	s := in.Summary
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	ew := &errWriter{w: w}

	ew.printf("\n%s\n", rule)
	ew.printf("Status at %s", now.Format("2006-01-02 15:04:05"))
	if in.Study != "" {
		ew.printf(" (%s)", in.Study)
	}
	ew.printf("\n%s\n", rule)
	ew.printf("Trials: %d completed, %d running, %d failed, %d total\n",
		s.Completed, s.Running, s.Failed, s.Total)

	if s.Best == nil {
		ew.printf("\nNo completed trials yet.\n")
		return ew.err
	}

	ew.printf("\nBest trial so far: #%d\n", s.Best.Number)
	ew.printf("Best fitness: %.6f\n", s.Best.Value)
	writeBreakdown(ew, in.Mode.Breakdown(s.Best.Value), in.Seeds)

	ew.printf("\nTop %d trials:\n", len(s.Top))
	for i, t := range s.Top {
		ew.printf("  #%d. Trial %d: %.4f", i+1, t.Number, t.Value)
		if b := in.Mode.Breakdown(t.Value); b.Encoded {
			ew.printf(" (≈%d%%, %.4f)", b.SolveRate, b.Secondary)
		}
		ew.printf("\n")
	}

	if s.ETAKnown {
		ew.printf("\nProgress: %d/%d (%d%%)\n", s.Completed, s.Target, s.Percent)
		ew.printf("Avg time per trial: %.1fs\n", s.MeanDuration.Seconds())
		ew.printf("ETA: %.1f hours\n", s.ETA.Hours())
	} else if s.MeanDuration > 0 {
		ew.printf("\nAvg time per trial: %.1fs\n", s.MeanDuration.Seconds())
	}
	if !s.LastCompleted.IsZero() {
		ew.printf("Last completion: %s\n", humanize.RelTime(s.LastCompleted, now, "ago", "from now"))
	}
	return ew.err
}

func writeBreakdown(ew *errWriter, b fitness.Breakdown, seeds int) {
	if !b.Encoded {
		return
	}
	ew.printf("  Solve rate: ≈%d%%", b.SolveRate)
	if seeds > 0 {
		ew.printf(" (%d/%d seeds)", fitness.SolvedSeeds(b.SolveRate, seeds), seeds)
	}
	ew.printf("\n  Avg fitness: ≈%.6f\n", b.Secondary)
}

// errWriter keeps the first write error so formatting code can stay linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
