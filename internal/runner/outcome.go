package runner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/result"
)

type Kind string

const (
	KindSuccess      Kind = "success"
	KindTimeout      Kind = "timeout"
	KindProcessError Kind = "process_error"
	KindParseError   Kind = "parse_error"

	// Driver failures recorded against a trial so it never stays running.
	KindLaunchError Kind = "launch_error"
	KindInterrupted Kind = "interrupted"
)

// AttrFitness is the user attribute holding the raw parsed fitness.
const AttrFitness = "fitness"

// LaunchResult is what a Launcher observed about one process run.
type LaunchResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Outcome is the terminal classification of one trial evaluation.
type Outcome struct {
	Kind       Kind
	Value      float64
	Diagnostic string
	ExitCode   int
	Duration   time.Duration
}

// Fitness is the value reported to the sampler: the parsed value on success,
// fitness.Worst for every failure kind.
func (o *Outcome) Fitness() float64 {
	if o.Kind == KindSuccess {
		return o.Value
	}
	return fitness.Worst
}

func (o *Outcome) Completion(at time.Time) result.Completion {
	if o.Kind == KindSuccess {
		return result.Completion{
			State:       result.StateComplete,
			Value:       o.Value,
			Attrs:       map[string]float64{AttrFitness: o.Value},
			CompletedAt: at,
		}
	}
	return result.Completion{
		State:       result.StateFail,
		Value:       fitness.Worst,
		Failure:     string(o.Kind),
		Diagnostic:  o.Diagnostic,
		CompletedAt: at,
	}
}

// Classify maps a finished run to an outcome. Priority: time limit, then
// exit status, then the output line.
func Classify(res *LaunchResult) *Outcome {
	out := &Outcome{ExitCode: res.ExitCode, Duration: res.Duration, Value: fitness.Worst}
	switch {
	case res.TimedOut:
		out.Kind = KindTimeout
		out.Diagnostic = strings.TrimSpace(string(res.Stderr))
		if out.Diagnostic == "" {
			out.Diagnostic = fmt.Sprintf("killed after %s", res.Duration.Round(time.Millisecond))
		}
	case res.ExitCode != 0:
		out.Kind = KindProcessError
		out.Diagnostic = strings.TrimSpace(string(res.Stderr))
		if out.Diagnostic == "" {
			out.Diagnostic = fmt.Sprintf("exit status %d", res.ExitCode)
		}
	default:
		v, err := ParseFitness(res.Stdout)
		if err != nil {
			out.Kind = KindParseError
			out.Diagnostic = string(res.Stdout)
			return out
		}
		out.Kind = KindSuccess
		out.Value = v
	}
	return out
}

var errNoOutput = errors.New("no output")

// ParseFitness reads the last non-empty line of stdout as a float. Earlier
// lines are trainer logging and are ignored.
func ParseFitness(stdout []byte) (float64, error) {
	lines := strings.Split(string(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing fitness %q: %w", line, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("fitness %q is not finite", line)
		}
		return v, nil
	}
	return 0, errNoOutput
}
