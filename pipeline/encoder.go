package pipeline

import (
	"fmt"
	"sort"
	"strconv"

	"cityflow/neurotraff/frame"
)

// categoryTable maps the categories seen at fit time to dense codes. Codes
// follow the byte-wise lexicographic order of the category text; a missing
// value, when it was seen, takes the code after the last category.
type categoryTable struct {
	Categories []string `json:"categories"`
	Missing    bool     `json:"missing,omitempty"`
}

func fitTable(stage string, col *frame.Column) (*categoryTable, error) {
	seen := make(map[string]bool)
	t := &categoryTable{}
	for i := 0; i < col.Len(); i++ {
		v, ok, err := categoryText(stage, col, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			t.Missing = true
			continue
		}
		if !seen[v] {
			seen[v] = true
			t.Categories = append(t.Categories, v)
		}
	}
	sort.Strings(t.Categories)
	return t, nil
}

func (t *categoryTable) size() int {
	if t.Missing {
		return len(t.Categories) + 1
	}
	return len(t.Categories)
}

func (t *categoryTable) lookup(v string) (int, bool) {
	i := sort.SearchStrings(t.Categories, v)
	if i < len(t.Categories) && t.Categories[i] == v {
		return i, true
	}
	return 0, false
}

func (t *categoryTable) encode(stage string, col *frame.Column, kind frame.Kind) (*frame.Column, error) {
	codes := make([]float64, col.Len())
	for i := range codes {
		v, ok, err := categoryText(stage, col, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			if !t.Missing {
				return nil, &UnseenCategoryError{Stage: stage, Column: col.Name(), Missing: true}
			}
			codes[i] = float64(len(t.Categories))
			continue
		}
		code, found := t.lookup(v)
		if !found {
			return nil, &UnseenCategoryError{Stage: stage, Column: col.Name(), Value: v}
		}
		codes[i] = float64(code)
	}
	return frame.NewNumeric(col.Name(), kind, codes), nil
}

// categoryText renders a cell as category text. Numeric cells use their
// shortest decimal form.
func categoryText(stage string, col *frame.Column, i int) (string, bool, error) {
	switch {
	case col.Kind() == frame.String:
		v, ok := col.Str(i)
		return v, ok, nil
	case col.Kind().Numeric():
		v, ok := col.Float(i)
		if !ok {
			return "", false, nil
		}
		return strconv.FormatFloat(v, 'g', -1, 64), true, nil
	default:
		return "", false, &SchemaError{Stage: stage, Columns: []string{col.Name()},
			Detail: fmt.Sprintf("column %q is %s, cannot be encoded as a category", col.Name(), col.Kind())}
	}
}

func fitColumn(stage string, in *frame.Frame, column string) (*categoryTable, error) {
	col, ok := in.Column(column)
	if !ok {
		return nil, &SchemaError{Stage: stage, Columns: []string{column}}
	}
	return fitTable(stage, col)
}

func encodeColumn(stage string, t *categoryTable, in *frame.Frame, column string, kind frame.Kind) (*frame.Frame, error) {
	if t == nil {
		return nil, &NotFittedError{Stage: stage}
	}
	col, ok := in.Column(column)
	if !ok {
		return nil, &SchemaError{Stage: stage, Columns: []string{column}}
	}
	enc, err := t.encode(stage, col, kind)
	if err != nil {
		return nil, err
	}
	return in.With(enc)
}

// OrdinalEncoder replaces a categorical feature column with float codes.
type OrdinalEncoder struct {
	name   string
	column string
	table  *categoryTable
}

func NewOrdinalEncoder(name, column string) *OrdinalEncoder {
	return &OrdinalEncoder{name: name, column: column}
}

func (e *OrdinalEncoder) Name() string   { return e.name }
func (e *OrdinalEncoder) Column() string { return e.column }
func (e *OrdinalEncoder) Fitted() bool   { return e.table != nil }

func (e *OrdinalEncoder) Fit(in *frame.Frame) (Stage, error) {
	t, err := fitColumn(e.name, in, e.column)
	if err != nil {
		return nil, err
	}
	return &OrdinalEncoder{name: e.name, column: e.column, table: t}, nil
}

func (e *OrdinalEncoder) Apply(in *frame.Frame) (*frame.Frame, error) {
	return encodeColumn(e.name, e.table, in, e.column, frame.Float)
}

// Categories returns the fitted categories in code order.
func (e *OrdinalEncoder) Categories() []string {
	if e.table == nil {
		return nil
	}
	return append([]string(nil), e.table.Categories...)
}

func (e *OrdinalEncoder) record() (stageRecord, error) {
	return newRecord(kindOrdinal, e.name, encoderParams{Column: e.column, Table: e.table})
}

// LabelEncoder encodes the target column to integer codes and decodes
// classifier output back to category names.
type LabelEncoder struct {
	name   string
	column string
	table  *categoryTable
}

func NewLabelEncoder(name, column string) *LabelEncoder {
	return &LabelEncoder{name: name, column: column}
}

func (e *LabelEncoder) Name() string   { return e.name }
func (e *LabelEncoder) Column() string { return e.column }
func (e *LabelEncoder) Fitted() bool   { return e.table != nil }

func (e *LabelEncoder) Fit(in *frame.Frame) (Stage, error) {
	t, err := fitColumn(e.name, in, e.column)
	if err != nil {
		return nil, err
	}
	return &LabelEncoder{name: e.name, column: e.column, table: t}, nil
}

func (e *LabelEncoder) Apply(in *frame.Frame) (*frame.Frame, error) {
	return encodeColumn(e.name, e.table, in, e.column, frame.Int)
}

// Encode returns the code of a category seen at fit time.
func (e *LabelEncoder) Encode(value string) (int, error) {
	if e.table == nil {
		return 0, &NotFittedError{Stage: e.name}
	}
	code, ok := e.table.lookup(value)
	if !ok {
		return 0, &UnseenCategoryError{Stage: e.name, Column: e.column, Value: value}
	}
	return code, nil
}

// Decode inverts Encode. The code reserved for missing values decodes to "".
func (e *LabelEncoder) Decode(code int) (string, error) {
	if e.table == nil {
		return "", &NotFittedError{Stage: e.name}
	}
	if code < 0 || code >= e.table.size() {
		return "", &CodeRangeError{Stage: e.name, Code: code, Size: e.table.size()}
	}
	if code == len(e.table.Categories) {
		return "", nil
	}
	return e.table.Categories[code], nil
}

// MissingCode returns the code assigned to missing values, if any were seen at fit time.
func (e *LabelEncoder) MissingCode() (int, bool) {
	if e.table == nil || !e.table.Missing {
		return 0, false
	}
	return len(e.table.Categories), true
}

// Classes returns the fitted categories in code order.
func (e *LabelEncoder) Classes() []string {
	if e.table == nil {
		return nil
	}
	return append([]string(nil), e.table.Categories...)
}

func (e *LabelEncoder) record() (stageRecord, error) {
	return newRecord(kindLabel, e.name, encoderParams{Column: e.column, Table: e.table})
}

type encoderParams struct {
	Column string         `json:"column"`
	Table  *categoryTable `json:"table"`
}
