package progress_test

import (
	"testing"
	"time"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/progress"
	"github.com/signalnine/hypersweep/internal/result"
)

var epoch = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func completed(number int, value float64, took time.Duration) *result.Trial {
	start := epoch.Add(time.Duration(number) * time.Hour)
	return &result.Trial{
		Number:      number,
		State:       result.StateComplete,
		Value:       value,
		StartedAt:   start,
		CompletedAt: start.Add(took),
	}
}

func numbers(trials []*result.Trial) []int {
	out := make([]int, len(trials))
	for i, t := range trials {
		out[i] = t.Number
	}
	return out
}

func TestBestAndTopKTies(t *testing.T) {
	var trials []*result.Trial
	for i, v := range []float64{10, 55.2, 3, 55.2, 90} {
		trials = append(trials, completed(i, v, time.Minute))
	}
	s := progress.Summarize(trials, 200, progress.WithTopK(3))
	if s.Best == nil || s.Best.Number != 4 {
		t.Fatalf("best = %+v, want trial 4", s.Best)
	}
	got := numbers(s.Top)
	want := []int{4, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("top = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("top = %v, want %v", got, want)
			break
		}
	}
}

func TestBestTieGoesToLowestNumber(t *testing.T) {
	trials := []*result.Trial{
		completed(3, 70, time.Minute),
		completed(1, 70, time.Minute),
		completed(2, 12, time.Minute),
	}
	s := progress.Summarize(trials, 10)
	if s.Best.Number != 1 {
		t.Errorf("best = %d, want 1", s.Best.Number)
	}
}

func TestCountsAndFailuresExcluded(t *testing.T) {
	trials := []*result.Trial{
		completed(0, 40, 2*time.Minute),
		{Number: 1, State: result.StateFail, Value: fitness.Worst, Failure: "timeout",
			StartedAt: epoch, CompletedAt: epoch.Add(20 * time.Minute)},
		completed(2, 41, 4*time.Minute),
		{Number: 3, State: result.StateRunning, Value: fitness.Worst, StartedAt: epoch},
	}
	s := progress.Summarize(trials, 10)
	if s.Total != 4 || s.Completed != 2 || s.Failed != 1 || s.Running != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.Best.Number != 2 {
		t.Errorf("best = %d, want 2", s.Best.Number)
	}
	if len(s.Top) != 2 {
		t.Errorf("top has %d entries, want 2", len(s.Top))
	}
	// Failed trial's 20 minutes must not enter the average.
	if s.MeanDuration != 3*time.Minute {
		t.Errorf("mean = %v, want 3m", s.MeanDuration)
	}
	if s.ETA != 8*3*time.Minute {
		t.Errorf("eta = %v, want 24m", s.ETA)
	}
}

func TestETAUndefinedUntilSecondCompletion(t *testing.T) {
	one := []*result.Trial{completed(0, 1, time.Minute)}
	if s := progress.Summarize(one, 5); s.ETAKnown {
		t.Errorf("ETA known after one completion: %+v", s)
	}
	two := append(one, completed(1, 2, 3*time.Minute))
	s := progress.Summarize(two, 5)
	if !s.ETAKnown {
		t.Fatal("ETA unknown after two completions")
	}
	if s.MeanDuration != 2*time.Minute || s.ETA != 6*time.Minute {
		t.Errorf("mean %v eta %v, want 2m and 6m", s.MeanDuration, s.ETA)
	}
}

func TestETAWindowUsesMostRecent(t *testing.T) {
	var trials []*result.Trial
	for i := 0; i < 12; i++ {
		took := time.Minute
		if i < 2 {
			took = time.Hour
		}
		trials = append(trials, completed(i, float64(i), took))
	}
	s := progress.Summarize(trials, 20)
	if s.MeanDuration != time.Minute {
		t.Errorf("mean = %v, want 1m from the last 10 trials", s.MeanDuration)
	}
	s = progress.Summarize(trials, 20, progress.WithWindow(12))
	if s.MeanDuration <= time.Minute {
		t.Errorf("mean = %v, want the slow trials included", s.MeanDuration)
	}
}

func TestPercentAndRemaining(t *testing.T) {
	var trials []*result.Trial
	for i := 0; i < 37; i++ {
		trials = append(trials, completed(i, 1, time.Second))
	}
	s := progress.Summarize(trials, 200)
	if s.Percent != 18 {
		t.Errorf("percent = %d, want 18", s.Percent)
	}
	if s.ETA != 163*time.Second {
		t.Errorf("eta = %v, want 163s", s.ETA)
	}

	over := progress.Summarize(trials, 30)
	if over.ETA != 0 || !over.ETAKnown {
		t.Errorf("overshoot eta = %v known %v, want 0", over.ETA, over.ETAKnown)
	}
	if none := progress.Summarize(trials, 0); none.Percent != 0 {
		t.Errorf("percent with no target = %d", none.Percent)
	}
}

func TestNoTargetLeavesETAUndefined(t *testing.T) {
	var trials []*result.Trial
	for i := 0; i < 150; i++ {
		trials = append(trials, completed(i, 1, time.Second))
	}
	s := progress.Summarize(trials, 0)
	if s.ETAKnown || s.ETA != 0 || s.Percent != 0 {
		t.Errorf("no target: known=%v eta=%v percent=%d", s.ETAKnown, s.ETA, s.Percent)
	}
	if s.MeanDuration != time.Second {
		t.Errorf("mean = %v, want 1s", s.MeanDuration)
	}
}

func TestEmpty(t *testing.T) {
	s := progress.Summarize(nil, 100)
	if s.Best != nil || s.Top != nil || s.ETAKnown || s.Percent != 0 {
		t.Errorf("summary of nothing = %+v", s)
	}
}

func TestLastCompleted(t *testing.T) {
	trials := []*result.Trial{completed(0, 1, time.Minute), completed(1, 1, 2*time.Minute)}
	s := progress.Summarize(trials, 2)
	if want := epoch.Add(time.Hour + 2*time.Minute); !s.LastCompleted.Equal(want) {
		t.Errorf("last completed = %v, want %v", s.LastCompleted, want)
	}
}
