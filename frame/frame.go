// Package frame holds batches of flow records in columnar form.
//
// Columns are immutable once built. Every operation on a Frame returns a new
// Frame that may share untouched columns with its parent, so stages can be
// chained and tested in isolation without copying whole batches.
package frame

import (
	"fmt"
	"math"
	"time"
)

// Kind is the value type stored in a column.
type Kind uint8

const (
	Float Kind = iota + 1
	Int
	String
	Time
	Bool
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	case Time:
		return "time"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Numeric reports whether values of this kind are stored as float64.
func (k Kind) Numeric() bool {
	return k == Float || k == Int || k == Bool
}

// Column is a named, typed vector. Numeric kinds use NaN for missing values;
// String and Time kinds carry an explicit validity mask.
type Column struct {
	name  string
	kind  Kind
	nums  []float64
	strs  []string
	times []time.Time
	valid []bool
}

// NewNumeric builds a Float, Int or Bool column. NaN marks a missing value.
func NewNumeric(name string, kind Kind, values []float64) *Column {
	if !kind.Numeric() {
		panic(fmt.Sprintf("frame: NewNumeric called with %s kind", kind))
	}
	return &Column{name: name, kind: kind, nums: append([]float64(nil), values...)}
}

// NewFloat is shorthand for NewNumeric(name, Float, values).
func NewFloat(name string, values []float64) *Column {
	return NewNumeric(name, Float, values)
}

// NewString builds a String column. A nil valid slice means every value is present.
func NewString(name string, values []string, valid []bool) *Column {
	return &Column{
		name:  name,
		kind:  String,
		strs:  append([]string(nil), values...),
		valid: validMask(len(values), valid),
	}
}

// NewTime builds a Time column. A nil valid slice means every value is present.
func NewTime(name string, values []time.Time, valid []bool) *Column {
	return &Column{
		name:  name,
		kind:  Time,
		times: append([]time.Time(nil), values...),
		valid: validMask(len(values), valid),
	}
}

func validMask(n int, valid []bool) []bool {
	out := make([]bool, n)
	if valid == nil {
		for i := range out {
			out[i] = true
		}
		return out
	}
	copy(out, valid)
	return out
}

func (c *Column) Name() string { return c.name }
func (c *Column) Kind() Kind   { return c.kind }

func (c *Column) Len() int {
	switch c.kind {
	case String:
		return len(c.strs)
	case Time:
		return len(c.times)
	default:
		return len(c.nums)
	}
}

// Float returns the numeric value at row i and whether it is present.
func (c *Column) Float(i int) (float64, bool) {
	if !c.kind.Numeric() {
		return math.NaN(), false
	}
	v := c.nums[i]
	return v, !math.IsNaN(v)
}

// Str returns the string value at row i and whether it is present.
func (c *Column) Str(i int) (string, bool) {
	if c.kind != String {
		return "", false
	}
	return c.strs[i], c.valid[i]
}

// Time returns the instant at row i and whether it is present.
func (c *Column) Time(i int) (time.Time, bool) {
	if c.kind != Time {
		return time.Time{}, false
	}
	return c.times[i], c.valid[i]
}

// Floats returns a copy of the numeric values.
func (c *Column) Floats() []float64 {
	return append([]float64(nil), c.nums...)
}

// Renamed returns a column with the same data under a new name.
func (c *Column) Renamed(name string) *Column {
	cp := *c
	cp.name = name
	return &cp
}

func (c *Column) take(rows []int) *Column {
	out := &Column{name: c.name, kind: c.kind}
	switch c.kind {
	case String:
		out.strs = make([]string, len(rows))
		out.valid = make([]bool, len(rows))
		for j, i := range rows {
			out.strs[j], out.valid[j] = c.strs[i], c.valid[i]
		}
	case Time:
		out.times = make([]time.Time, len(rows))
		out.valid = make([]bool, len(rows))
		for j, i := range rows {
			out.times[j], out.valid[j] = c.times[i], c.valid[i]
		}
	default:
		out.nums = make([]float64, len(rows))
		for j, i := range rows {
			out.nums[j] = c.nums[i]
		}
	}
	return out
}

// Frame is an ordered set of equal-length columns.
type Frame struct {
	cols []*Column
	rows int
}

// New assembles a frame. Column names must be unique and lengths equal.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{cols: make([]*Column, 0, len(cols))}
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		if seen[c.name] {
			return nil, fmt.Errorf("duplicate column %q", c.name)
		}
		seen[c.name] = true
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.name, c.Len(), f.rows)
		}
		f.cols = append(f.cols, c)
	}
	return f, nil
}

func (f *Frame) Rows() int { return f.rows }

// Schema lists the columns in order.
func (f *Frame) Schema() Schema {
	s := make(Schema, len(f.cols))
	for i, c := range f.cols {
		s[i] = Field{Name: c.name, Kind: c.kind}
	}
	return s
}

func (f *Frame) Has(name string) bool {
	return f.index(name) >= 0
}

func (f *Frame) Column(name string) (*Column, bool) {
	i := f.index(name)
	if i < 0 {
		return nil, false
	}
	return f.cols[i], true
}

func (f *Frame) index(name string) int {
	for i, c := range f.cols {
		if c.name == name {
			return i
		}
	}
	return -1
}

// Drop removes the named columns. Names not present are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Frame{cols: make([]*Column, 0, len(f.cols)), rows: f.rows}
	for _, c := range f.cols {
		if !drop[c.name] {
			out.cols = append(out.cols, c)
		}
	}
	return out
}

// With replaces the column of the same name in place, or appends it.
func (f *Frame) With(col *Column) (*Frame, error) {
	if len(f.cols) > 0 && col.Len() != f.rows {
		return nil, fmt.Errorf("column %q has %d rows, want %d", col.name, col.Len(), f.rows)
	}
	out := &Frame{cols: append([]*Column(nil), f.cols...), rows: col.Len()}
	if i := f.index(col.name); i >= 0 {
		out.cols[i] = col
	} else {
		out.cols = append(out.cols, col)
	}
	return out, nil
}

// Take returns the given rows, in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{cols: make([]*Column, len(f.cols)), rows: len(rows)}
	for i, c := range f.cols {
		out.cols[i] = c.take(rows)
	}
	return out
}

// Matrix returns the frame row-major as float64 values. Every column must be numeric.
func (f *Frame) Matrix() ([][]float64, error) {
	for _, c := range f.cols {
		if !c.kind.Numeric() {
			return nil, fmt.Errorf("column %q is %s, not numeric", c.name, c.kind)
		}
	}
	out := make([][]float64, f.rows)
	for r := range out {
		row := make([]float64, len(f.cols))
		for j, c := range f.cols {
			row[j] = c.nums[r]
		}
		out[r] = row
	}
	return out, nil
}
