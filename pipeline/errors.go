package pipeline

import (
	"fmt"
	"strings"
)

// SchemaError reports a required column that is absent or of the wrong kind.
type SchemaError struct {
	Stage   string
	Columns []string
	Detail  string
}

func (e *SchemaError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("stage %s: %s", e.Stage, e.Detail)
	}
	return fmt.Sprintf("stage %s: missing column(s) %s", e.Stage, quoteAll(e.Columns))
}

// ParseError reports a value that could not be decoded, e.g. a malformed "lat,lon".
type ParseError struct {
	Stage  string
	Column string
	Row    int
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("stage %s: row %d: cannot parse %s=%q: %s", e.Stage, e.Row, e.Column, e.Value, e.Reason)
}

// UnseenCategoryError reports an apply-time category the encoder was never fitted on.
type UnseenCategoryError struct {
	Stage   string
	Column  string
	Value   string
	Missing bool
}

func (e *UnseenCategoryError) Error() string {
	if e.Missing {
		return fmt.Sprintf("stage %s: missing %s value was not seen at fit time", e.Stage, e.Column)
	}
	return fmt.Sprintf("stage %s: %s value %q was not seen at fit time", e.Stage, e.Column, e.Value)
}

// NotFittedError is returned when a stateful stage is applied before fit.
type NotFittedError struct {
	Stage string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("stage %s: not fitted", e.Stage)
}

// CodeRangeError is returned when decoding a code the label encoder never assigned.
type CodeRangeError struct {
	Stage string
	Code  int
	Size  int
}

func (e *CodeRangeError) Error() string {
	return fmt.Sprintf("stage %s: code %d outside fitted range [0,%d)", e.Stage, e.Code, e.Size)
}

func quoteAll(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(q, ", ")
}
