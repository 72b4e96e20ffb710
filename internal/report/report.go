package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/progress"
	"github.com/signalnine/hypersweep/internal/result"
	"github.com/signalnine/hypersweep/internal/space"
)

const DefaultTopK = 10

type ResultsInput struct {
	Study     string
	Trials    []*result.Trial
	Mode      fitness.Mode
	Seeds     int
	TopK      int
	Generated time.Time
}

// WriteResults renders the end-of-study artifact as text, markdown or json.
func WriteResults(w io.Writer, format string, in ResultsInput) error {
	if in.TopK <= 0 {
		in.TopK = DefaultTopK
	}
	if in.Generated.IsZero() {
		in.Generated = time.Now()
	}
	s := progress.Summarize(in.Trials, 0, progress.WithTopK(in.TopK))

	switch format {
	case "markdown":
		return writeMarkdown(w, in, s)
	case "json":
		return writeJSON(w, in, s)
	case "", "text":
		return writeText(w, in, s)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// failureCounts tallies failed trials by failure kind.
func failureCounts(trials []*result.Trial) map[string]int {
	out := map[string]int{}
	for _, t := range trials {
		if t.State == result.StateFail {
			kind := t.Failure
			if kind == "" {
				kind = "unknown"
			}
			out[kind]++
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedParams returns a trial's parameters ordered by name.
func sortedParams(c space.Config) []space.Assignment {
	items := c.Assignments()
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func writeText(w io.Writer, in ResultsInput, s progress.Summary) error {
	ew := &errWriter{w: w}
	ew.printf("Study: %s\n", in.Study)
	ew.printf("Generated: %s\n", in.Generated.Format("2006-01-02 15:04:05"))
	ew.printf("Trials: %d completed, %d failed, %d running, %d total\n",
		s.Completed, s.Failed, s.Running, s.Total)
	if failures := failureCounts(in.Trials); len(failures) > 0 {
		parts := make([]string, 0, len(failures))
		for _, k := range sortedKeys(failures) {
			parts = append(parts, fmt.Sprintf("%s=%d", k, failures[k]))
		}
		ew.printf("Failures: %s\n", strings.Join(parts, " "))
	}

	if s.Best == nil {
		ew.printf("\nNo completed trials.\n")
		return ew.err
	}

	ew.printf("\nBest trial: %d\n", s.Best.Number)
	ew.printf("Best fitness: %.6f\n", s.Best.Value)
	writeBreakdown(ew, in.Mode.Breakdown(s.Best.Value), in.Seeds)

	ew.printf("\nBest hyperparameters:\n")
	for _, a := range sortedParams(s.Best.Params) {
		ew.printf("%s=%s\n", a.Name, space.FormatValue(a.Value))
	}

	ew.printf("\n%s\n", rule)
	ew.printf("Top %d trials:\n", len(s.Top))
	ew.printf("%s\n", rule)
	for i, t := range s.Top {
		ew.printf("\n#%d Trial %d: %.6f", i+1, t.Number, t.Value)
		if b := in.Mode.Breakdown(t.Value); b.Encoded {
			ew.printf(" (≈%d%% solve, %.6f fitness)", b.SolveRate, b.Secondary)
		}
		ew.printf("\n")
		for _, a := range sortedParams(t.Params) {
			ew.printf("  %s=%s\n", a.Name, space.FormatValue(a.Value))
		}
	}
	return ew.err
}

func writeMarkdown(w io.Writer, in ResultsInput, s progress.Summary) error {
	ew := &errWriter{w: w}
	ew.printf("# %s\n\n", in.Study)
	ew.printf("Generated %s. %d completed, %d failed, %d running, %d total.\n",
		in.Generated.Format("2006-01-02 15:04:05"), s.Completed, s.Failed, s.Running, s.Total)
	if s.Best == nil {
		ew.printf("\nNo completed trials.\n")
		return ew.err
	}

	b := in.Mode.Breakdown(s.Best.Value)
	ew.printf("\n## Best trial: %d\n\n", s.Best.Number)
	ew.printf("Fitness %.6f", s.Best.Value)
	if b.Encoded {
		ew.printf(" (≈%d%% solve rate, avg fitness %.6f)", b.SolveRate, b.Secondary)
	}
	ew.printf("\n\n| Parameter | Value |\n|---|---|\n")
	for _, a := range sortedParams(s.Best.Params) {
		ew.printf("| %s | %s |\n", a.Name, space.FormatValue(a.Value))
	}

	ew.printf("\n## Top %d trials\n\n", len(s.Top))
	if b.Encoded {
		ew.printf("| Rank | Trial | Fitness | Solve Rate | Avg Fitness | Duration |\n|---|---|---|---|---|---|\n")
	} else {
		ew.printf("| Rank | Trial | Fitness | Duration |\n|---|---|---|---|\n")
	}
	for i, t := range s.Top {
		tb := in.Mode.Breakdown(t.Value)
		if tb.Encoded {
			ew.printf("| %d | %d | %.6f | %d%% | %.6f | %s |\n",
				i+1, t.Number, t.Value, tb.SolveRate, tb.Secondary, t.Duration().Round(time.Second))
		} else {
			ew.printf("| %d | %d | %.6f | %s |\n", i+1, t.Number, t.Value, t.Duration().Round(time.Second))
		}
	}
	return ew.err
}

type jsonTrial struct {
	Number      int               `json:"number"`
	Fitness     fitness.Breakdown `json:"fitness"`
	SolvedSeeds *int              `json:"solved_seeds,omitempty"`
	DurationS   float64           `json:"duration_s"`
	Params      map[string]any    `json:"params"`
}

type jsonResults struct {
	Study     string         `json:"study"`
	Generated time.Time      `json:"generated"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Running   int            `json:"running"`
	Total     int            `json:"total"`
	Failures  map[string]int `json:"failures,omitempty"`
	Best      *jsonTrial     `json:"best,omitempty"`
	Top       []jsonTrial    `json:"top"`
}

func writeJSON(w io.Writer, in ResultsInput, s progress.Summary) error {
	// Values of failed trials are -Inf, which JSON cannot carry, so only
	// completed trials are serialized.
	toJSON := func(t *result.Trial) jsonTrial {
		jt := jsonTrial{
			Number:    t.Number,
			Fitness:   in.Mode.Breakdown(t.Value),
			DurationS: t.Duration().Seconds(),
			Params:    map[string]any{},
		}
		if jt.Fitness.Encoded && in.Seeds > 0 {
			n := fitness.SolvedSeeds(jt.Fitness.SolveRate, in.Seeds)
			jt.SolvedSeeds = &n
		}
		for _, a := range t.Params.Assignments() {
			jt.Params[a.Name] = a.Value
		}
		return jt
	}

	out := jsonResults{
		Study:     in.Study,
		Generated: in.Generated,
		Completed: s.Completed,
		Failed:    s.Failed,
		Running:   s.Running,
		Total:     s.Total,
		Failures:  failureCounts(in.Trials),
		Top:       []jsonTrial{},
	}
	if s.Best != nil {
		best := toJSON(s.Best)
		out.Best = &best
	}
	for _, t := range s.Top {
		out.Top = append(out.Top, toJSON(t))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteStudies lists the studies in a store with their trial counts.
func WriteStudies(w io.Writer, studies []*result.Study, trials map[string][]*result.Trial) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDY\tTRIALS\tCOMPLETE\tFAILED\tBEST\tCREATED")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, st := range studies {
		s := progress.Summarize(trials[st.ID], 0)
		best := "-"
		if s.Best != nil {
			best = fmt.Sprintf("%.4f (#%d)", s.Best.Value, s.Best.Number)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			st.Name, s.Total, s.Completed, s.Failed, best, st.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// WriteSpace lists parameters in sampling order with their bounds.
func WriteSpace(w io.Writer, sp *space.Space) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPARAMETER\tDOMAIN")
	for i, name := range sp.Order() {
		p, _ := sp.Param(name)
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, name, p.Describe())
	}
	return tw.Flush()
}
