package fitness

import (
	"fmt"
	"math"
)

// Worst is recorded for every trial that failed to produce a fitness.
// A maximizing search never prefers it.
var Worst = math.Inf(-1)

func IsWorst(v float64) bool {
	return math.IsInf(v, -1)
}

// Encode packs a solve-rate percentage and a secondary metric into a single
// value. Decode recovers pct exactly only while |secondary| < 1.
func Encode(pct int, secondary float64) float64 {
	return float64(pct) + secondary
}

// Decode splits an encoded value. Non-positive values carry no solve rate:
// the whole value is the secondary metric.
func Decode(v float64) (pct int, secondary float64) {
	if v > 0 {
		whole := math.Floor(v)
		return int(whole), v - whole
	}
	return 0, v
}

// SolvedSeeds converts a solve-rate percentage into the number of evaluation
// seeds that reached the success threshold.
func SolvedSeeds(pct, seeds int) int {
	if seeds <= 0 || pct <= 0 {
		return 0
	}
	return pct * seeds / 100
}

type Mode string

const (
	ModeEncoded Mode = "encoded"
	ModeRaw     Mode = "raw"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeEncoded:
		return ModeEncoded, nil
	case ModeRaw:
		return ModeRaw, nil
	default:
		return "", fmt.Errorf("unknown objective mode %q (want %q or %q)", s, ModeEncoded, ModeRaw)
	}
}

// Breakdown is the reporting view of one fitness value.
type Breakdown struct {
	Value     float64 `json:"value"`
	Encoded   bool    `json:"encoded"`
	SolveRate int     `json:"solve_rate,omitempty"`
	Secondary float64 `json:"secondary,omitempty"`
}

func (m Mode) Breakdown(v float64) Breakdown {
	if m == ModeRaw {
		return Breakdown{Value: v}
	}
	pct, sec := Decode(v)
	return Breakdown{Value: v, Encoded: true, SolveRate: pct, Secondary: sec}
}
