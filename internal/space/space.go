package space

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

var ErrUnknownParam = errors.New("unknown parameter")

// Suggester picks a value for one parameter within concrete bounds.
type Suggester interface {
	SuggestInt(name string, low, high int64) int64
	SuggestFloat(name string, low, high float64, log bool) float64
	SuggestCategorical(name string, choices []string) string
}

// Space is a validated parameter declaration with a fixed sampling order.
type Space struct {
	params []Param
	byName map[string]int
	order  []int
}

func New(params []Param) (*Space, error) {
	s := &Space{
		params: slices.Clone(params),
		byName: make(map[string]int, len(params)),
	}
	for i := range s.params {
		p := &s.params[i]
		if err := p.check(); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name)
		}
		s.byName[p.Name] = i
	}
	for _, p := range s.params {
		for _, dep := range p.deps() {
			j, ok := s.byName[dep]
			if !ok {
				return nil, fmt.Errorf("parameter %q depends on %q: %w", p.Name, dep, ErrUnknownParam)
			}
			if !s.params[j].numeric() {
				return nil, fmt.Errorf("parameter %q depends on non-numeric %q", p.Name, dep)
			}
		}
	}
	for _, p := range s.params {
		if s.hasCycle(p.Name, nil) {
			return nil, fmt.Errorf("dependency cycle involving parameter %q", p.Name)
		}
	}
	s.order = s.computeOrder()
	return s, nil
}

// Params returns the parameters in declaration order.
func (s *Space) Params() []Param {
	return slices.Clone(s.params)
}

func (s *Space) Param(name string) (Param, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Param{}, false
	}
	return s.params[i], true
}

// Order returns parameter names in sampling order: every parameter comes
// after the parameters its bounds depend on, declaration order otherwise.
func (s *Space) Order() []string {
	names := make([]string, len(s.order))
	for i, idx := range s.order {
		names[i] = s.params[idx].Name
	}
	return names
}

func (s *Space) computeOrder() []int {
	depth := make(map[int]int, len(s.params))
	var visit func(i int) int
	visit = func(i int) int {
		if d, ok := depth[i]; ok {
			return d
		}
		d := 0
		for _, dep := range s.params[i].deps() {
			if dd := visit(s.byName[dep]) + 1; dd > d {
				d = dd
			}
		}
		depth[i] = d
		return d
	}
	order := make([]int, len(s.params))
	for i := range s.params {
		visit(i)
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return depth[a] - depth[b]
	})
	return order
}

func (s *Space) hasCycle(name string, visited []string) bool {
	if slices.Contains(visited, name) {
		return true
	}
	p := s.params[s.byName[name]]
	for _, dep := range p.deps() {
		if s.hasCycle(dep, append(visited, name)) {
			return true
		}
	}
	return false
}

// Bounds resolves the concrete bounds of a numeric parameter given the values
// sampled so far. Derived bounds fail if their dependency is not yet sampled.
func (s *Space) Bounds(name string, sampled Config) (low, high float64, err error) {
	p, ok := s.Param(name)
	if !ok {
		return 0, 0, fmt.Errorf("%q: %w", name, ErrUnknownParam)
	}
	low, high = p.Low, p.High
	if p.LowFrom != nil {
		dep, ok := sampled.Float(p.LowFrom.Param)
		if !ok {
			return 0, 0, fmt.Errorf("parameter %q: %q not sampled yet", name, p.LowFrom.Param)
		}
		low = p.LowFrom.resolve(dep)
	}
	if p.HighFrom != nil {
		dep, ok := sampled.Float(p.HighFrom.Param)
		if !ok {
			return 0, 0, fmt.Errorf("parameter %q: %q not sampled yet", name, p.HighFrom.Param)
		}
		high = p.HighFrom.resolve(dep)
	}
	if p.Kind == KindInt {
		low, high = math.Ceil(low), math.Floor(high)
	}
	if low > high {
		return 0, 0, fmt.Errorf("parameter %q: empty range [%v, %v]", name, low, high)
	}
	return low, high, nil
}

// Sample draws one value per parameter in sampling order.
func (s *Space) Sample(sg Suggester) (Config, error) {
	items := make([]Assignment, 0, len(s.params))
	for _, idx := range s.order {
		p := s.params[idx]
		var v any
		switch p.Kind {
		case KindInt, KindFloat:
			low, high, err := s.Bounds(p.Name, NewConfig(items...))
			if err != nil {
				return Config{}, err
			}
			if p.Kind == KindInt {
				v = sg.SuggestInt(p.Name, int64(low), int64(high))
			} else {
				v = sg.SuggestFloat(p.Name, low, high, p.Log)
			}
		case KindCategorical:
			v = sg.SuggestCategorical(p.Name, p.Choices)
		case KindBool:
			v = sg.SuggestCategorical(p.Name, []string{"true", "false"}) == "true"
		}
		items = append(items, Assignment{Name: p.Name, Value: v})
	}
	return NewConfig(items...), nil
}

// Render produces one name=value token per parameter in declaration order.
func (s *Space) Render(c Config) ([]string, error) {
	args := make([]string, 0, len(s.params))
	for _, p := range s.params {
		v, ok := c.Get(p.Name)
		if !ok {
			return nil, fmt.Errorf("config is missing parameter %q", p.Name)
		}
		args = append(args, p.Name+"="+FormatValue(v))
	}
	return args, nil
}

// Describe renders the declared range of a parameter for listings.
func (p Param) Describe() string {
	switch p.Kind {
	case KindCategorical:
		return fmt.Sprintf("categorical %v", p.Choices)
	case KindBool:
		return "bool"
	}
	low := FormatValue(p.Low)
	high := FormatValue(p.High)
	if p.Kind == KindInt {
		low, high = FormatValue(int64(p.Low)), FormatValue(int64(p.High))
	}
	if p.LowFrom != nil {
		low = p.LowFrom.describe()
	}
	if p.HighFrom != nil {
		high = p.HighFrom.describe()
	}
	scale := ""
	if p.Log {
		scale = " log"
	}
	return fmt.Sprintf("%s [%s, %s]%s", p.Kind, low, high, scale)
}

func (d *Derived) describe() string {
	div := d.Div
	if div == 0 {
		div = 1
	}
	return fmt.Sprintf("max(%s, %s / %s)", strconv.FormatFloat(d.Min, 'g', -1, 64), d.Param, strconv.FormatFloat(div, 'g', -1, 64))
}
