package space

import (
	"fmt"
	"math"
)

type Kind string

const (
	KindInt         Kind = "int"
	KindFloat       Kind = "float"
	KindCategorical Kind = "categorical"
	KindBool        Kind = "bool"
)

// Param declares one dimension of the search space.
type Param struct {
	Name    string   `yaml:"name"`
	Kind    Kind     `yaml:"kind"`
	Low     float64  `yaml:"low"`
	High    float64  `yaml:"high"`
	Log     bool     `yaml:"log"`
	Choices []string `yaml:"choices"`

	LowFrom  *Derived `yaml:"low_from"`
	HighFrom *Derived `yaml:"high_from"`
}

// Derived computes a bound from an already-sampled parameter:
// max(Min, floor(value(Param) / Div)).
type Derived struct {
	Param string  `yaml:"param"`
	Div   float64 `yaml:"div"`
	Min   float64 `yaml:"min"`
}

func (d *Derived) resolve(dep float64) float64 {
	div := d.Div
	if div == 0 {
		div = 1
	}
	return math.Max(d.Min, math.Floor(dep/div))
}

func (p *Param) numeric() bool {
	return p.Kind == KindInt || p.Kind == KindFloat
}

// deps lists the parameters p's bounds are computed from.
func (p *Param) deps() []string {
	var out []string
	if p.LowFrom != nil {
		out = append(out, p.LowFrom.Param)
	}
	if p.HighFrom != nil && (p.LowFrom == nil || p.HighFrom.Param != p.LowFrom.Param) {
		out = append(out, p.HighFrom.Param)
	}
	return out
}

func (p *Param) check() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch p.Kind {
	case KindInt, KindFloat:
		if p.LowFrom == nil && p.HighFrom == nil && p.Low > p.High {
			return fmt.Errorf("parameter %q: low %v exceeds high %v", p.Name, p.Low, p.High)
		}
		if p.Log && p.Kind == KindFloat && p.LowFrom == nil && p.Low <= 0 {
			return fmt.Errorf("parameter %q: log scale requires low > 0", p.Name)
		}
		for _, d := range []*Derived{p.LowFrom, p.HighFrom} {
			if d == nil {
				continue
			}
			if d.Param == "" {
				return fmt.Errorf("parameter %q: derived bound needs a param", p.Name)
			}
			if d.Div < 0 {
				return fmt.Errorf("parameter %q: derived bound div must be positive", p.Name)
			}
		}
	case KindCategorical:
		if len(p.Choices) == 0 {
			return fmt.Errorf("parameter %q: categorical needs choices", p.Name)
		}
	case KindBool:
	default:
		return fmt.Errorf("parameter %q: unknown kind %q", p.Name, p.Kind)
	}
	if !p.numeric() && (p.LowFrom != nil || p.HighFrom != nil) {
		return fmt.Errorf("parameter %q: derived bounds only apply to int and float", p.Name)
	}
	return nil
}
