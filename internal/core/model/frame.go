package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type ColumnType uint8

const (
	String ColumnType = iota
	Int64
	Float64
	Time
)

func (t ColumnType) String() string {
	switch t {
	case Int64:
		return "i64"
	case Float64:
		return "f64"
	case Time:
		return "datetime"
	default:
		return "str"
	}
}

// Column is a typed, nullable column. Only the slice matching Type is populated.
type Column struct {
	Name string
	Type ColumnType

	ints   []int64
	floats []float64
	strs   []string
	times  []time.Time
	valid  []bool
}

func NewColumn(name string, typ ColumnType) *Column {
	return &Column{Name: name, Type: typ}
}

func (c *Column) Len() int { return len(c.valid) }

func (c *Column) AppendNull() {
	switch c.Type {
	case Int64:
		c.ints = append(c.ints, 0)
	case Float64:
		c.floats = append(c.floats, 0)
	case Time:
		c.times = append(c.times, time.Time{})
	default:
		c.strs = append(c.strs, "")
	}
	c.valid = append(c.valid, false)
}

func (c *Column) AppendInt(v int64) {
	c.ints = append(c.ints, v)
	c.valid = append(c.valid, true)
}

func (c *Column) AppendFloat(v float64) {
	c.floats = append(c.floats, v)
	c.valid = append(c.valid, true)
}

func (c *Column) AppendString(v string) {
	c.strs = append(c.strs, v)
	c.valid = append(c.valid, true)
}

func (c *Column) AppendTime(v time.Time) {
	c.times = append(c.times, v)
	c.valid = append(c.valid, true)
}

func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// Float returns numeric cells as float64; ok is false for nulls and non-numeric columns.
func (c *Column) Float(i int) (float64, bool) {
	if !c.valid[i] {
		return 0, false
	}
	switch c.Type {
	case Float64:
		return c.floats[i], true
	case Int64:
		return float64(c.ints[i]), true
	default:
		return 0, false
	}
}

func (c *Column) Int(i int) (int64, bool) {
	if !c.valid[i] || c.Type != Int64 {
		return 0, false
	}
	return c.ints[i], true
}

func (c *Column) Time(i int) (time.Time, bool) {
	if !c.valid[i] || c.Type != Time {
		return time.Time{}, false
	}
	return c.times[i], true
}

// Str renders any cell as text; nulls render as "".
func (c *Column) Str(i int) string {
	if !c.valid[i] {
		return ""
	}
	switch c.Type {
	case Int64:
		return strconv.FormatInt(c.ints[i], 10)
	case Float64:
		return FormatFloat(c.floats[i])
	case Time:
		return c.times[i].UTC().Format(time.RFC3339Nano)
	default:
		return c.strs[i]
	}
}

func (c *Column) value(i int) any {
	if !c.valid[i] {
		return nil
	}
	switch c.Type {
	case Int64:
		return c.ints[i]
	case Float64:
		return c.floats[i]
	case Time:
		return c.times[i].UTC().Format(time.RFC3339Nano)
	default:
		return c.strs[i]
	}
}

// Frame is a decoded tabular result. Column names need not be unique.
type Frame struct {
	cols []*Column
}

func NewFrame(cols ...*Column) (*Frame, error) {
	f := &Frame{}
	for _, c := range cols {
		if err := f.check(c); err != nil {
			return nil, err
		}
		f.cols = append(f.cols, c)
	}
	return f, nil
}

func (f *Frame) check(c *Column) error {
	if c == nil {
		return errors.New("nil column")
	}
	if len(f.cols) > 0 && c.Len() != f.Height() {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name, c.Len(), f.Height())
	}
	return nil
}

func (f *Frame) Height() int {
	if len(f.cols) == 0 {
		return 0
	}
	return f.cols[0].Len()
}

func (f *Frame) Width() int { return len(f.cols) }

func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Name
	}
	return out
}

func (f *Frame) Columns() []*Column { return f.cols }

func (f *Frame) ColumnAt(i int) *Column { return f.cols[i] }

// Column returns the first column with the given name.
func (f *Frame) Column(name string) (*Column, bool) {
	for _, c := range f.cols {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Prepend inserts columns before the existing ones, keeping their order.
func (f *Frame) Prepend(cols ...*Column) error {
	for _, c := range cols {
		if err := f.check(c); err != nil {
			return err
		}
	}
	f.cols = append(append([]*Column{}, cols...), f.cols...)
	return nil
}

// Sum adds the non-null numeric cells of a column.
func (f *Frame) Sum(name string) (float64, error) {
	c, ok := f.Column(name)
	if !ok {
		return 0, fmt.Errorf("no column %q", name)
	}
	if c.Type != Int64 && c.Type != Float64 {
		return 0, fmt.Errorf("column %q is %s, not numeric", name, c.Type)
	}
	var s float64
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Float(i); ok {
			s += v
		}
	}
	return s, nil
}

// Row returns the textual cells of row i.
func (f *Frame) Row(i int) []string {
	out := make([]string, len(f.cols))
	for j, c := range f.cols {
		out[j] = c.Str(i)
	}
	return out
}

func (f *Frame) MarshalJSON() ([]byte, error) {
	type col struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	out := struct {
		Columns []col   `json:"columns"`
		Rows    [][]any `json:"rows"`
	}{
		Columns: make([]col, len(f.cols)),
		Rows:    make([][]any, f.Height()),
	}
	for j, c := range f.cols {
		out.Columns[j] = col{Name: c.Name, Type: c.Type.String()}
	}
	for i := range out.Rows {
		row := make([]any, len(f.cols))
		for j, c := range f.cols {
			row[j] = c.value(i)
		}
		out.Rows[i] = row
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return b, nil
}
