package metrics

import (
	"fmt"
	"strings"
)

// DimensionSet is an ordered set of dimension names with their values.
type DimensionSet struct {
	names  []string
	values map[string]string
}

// NewDimensionSet builds a set from name/value pairs.
func NewDimensionSet(pairs ...string) (DimensionSet, error) {
	if len(pairs)%2 != 0 {
		return DimensionSet{}, fmt.Errorf("%w: odd number of name/value arguments", ErrInvalidDimension)
	}
	var d DimensionSet
	for i := 0; i < len(pairs); i += 2 {
		if err := d.Add(pairs[i], pairs[i+1]); err != nil {
			return DimensionSet{}, err
		}
	}
	return d, nil
}

// MustDimensionSet is NewDimensionSet for literal arguments; it panics on
// invalid input.
func MustDimensionSet(pairs ...string) DimensionSet {
	d, err := NewDimensionSet(pairs...)
	if err != nil {
		panic(err)
	}
	return d
}

// Add sets the value of name, appending it when new.
func (d *DimensionSet) Add(name, value string) error {
	if err := ValidateDimension(name, value); err != nil {
		return err
	}
	if d.values == nil {
		d.values = make(map[string]string)
	}
	if _, ok := d.values[name]; !ok {
		if len(d.names) >= MaxDimensions {
			return fmt.Errorf("%w: more than %d dimensions in one set", ErrInvalidDimension, MaxDimensions)
		}
		d.names = append(d.names, name)
	}
	d.values[name] = value
	return nil
}

// Names returns the dimension names in insertion order.
func (d DimensionSet) Names() []string {
	return append([]string(nil), d.names...)
}

// Value returns the value of name.
func (d DimensionSet) Value(name string) (string, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Len returns the number of dimensions.
func (d DimensionSet) Len() int {
	return len(d.names)
}

// Merge returns a copy of d with the dimensions of other added.
func (d DimensionSet) Merge(other DimensionSet) DimensionSet {
	out := d.clone()
	for _, name := range other.names {
		if out.values == nil {
			out.values = make(map[string]string)
		}
		if _, ok := out.values[name]; !ok {
			out.names = append(out.names, name)
		}
		out.values[name] = other.values[name]
	}
	return out
}

func (d DimensionSet) clone() DimensionSet {
	out := DimensionSet{names: append([]string(nil), d.names...)}
	if d.values != nil {
		out.values = make(map[string]string, len(d.values))
		for k, v := range d.values {
			out.values[k] = v
		}
	}
	return out
}

func (d DimensionSet) String() string {
	parts := make([]string, 0, len(d.names))
	for _, name := range d.names {
		parts = append(parts, name+"="+d.values[name])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
