package space

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Assignment is one sampled parameter value. Value holds an int64, float64,
// bool or string.
type Assignment struct {
	Name  string
	Value any
}

// Config is the immutable set of values sampled for one trial, in sampling
// order.
type Config struct {
	items []Assignment
	index map[string]int
}

func NewConfig(items ...Assignment) Config {
	c := Config{
		items: make([]Assignment, len(items)),
		index: make(map[string]int, len(items)),
	}
	copy(c.items, items)
	for i, a := range c.items {
		c.index[a.Name] = i
	}
	return c
}

func (c Config) Len() int { return len(c.items) }

func (c Config) Get(name string) (any, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.items[i].Value, true
}

// Assignments returns a copy of the values in sampling order.
func (c Config) Assignments() []Assignment {
	out := make([]Assignment, len(c.items))
	copy(out, c.items)
	return out
}

// Float returns a numeric value as float64.
func (c Config) Float(name string) (float64, bool) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// FormatValue renders a value the way the trainer expects it on its command
// line.
func FormatValue(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return FormatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// FormatFloat renders the shortest decimal that round-trips. Integral values
// keep a trailing ".0" and very small or large magnitudes use an exponent.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

type wireAssignment struct {
	Name  string          `json:"name"`
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (c Config) MarshalJSON() ([]byte, error) {
	wire := make([]wireAssignment, 0, len(c.items))
	for _, a := range c.items {
		kind, err := kindOf(a.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", a.Name, err)
		}
		raw, err := json.Marshal(a.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", a.Name, err)
		}
		wire = append(wire, wireAssignment{Name: a.Name, Kind: kind, Value: raw})
	}
	return json.Marshal(wire)
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var wire []wireAssignment
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	items := make([]Assignment, 0, len(wire))
	for _, w := range wire {
		var v any
		var err error
		switch w.Kind {
		case KindInt:
			var n int64
			err = json.Unmarshal(w.Value, &n)
			v = n
		case KindFloat:
			var f float64
			err = json.Unmarshal(w.Value, &f)
			v = f
		case KindBool:
			var b bool
			err = json.Unmarshal(w.Value, &b)
			v = b
		case KindCategorical:
			var s string
			err = json.Unmarshal(w.Value, &s)
			v = s
		default:
			err = fmt.Errorf("unknown kind %q", w.Kind)
		}
		if err != nil {
			return fmt.Errorf("parameter %q: %w", w.Name, err)
		}
		items = append(items, Assignment{Name: w.Name, Value: v})
	}
	*c = NewConfig(items...)
	return nil
}

func kindOf(v any) (Kind, error) {
	switch v.(type) {
	case int64:
		return KindInt, nil
	case float64:
		return KindFloat, nil
	case bool:
		return KindBool, nil
	case string:
		return KindCategorical, nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
