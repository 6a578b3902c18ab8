// Package parser turns a set's source (tabular file or literal array text)
// into ordered raw coordinate pairs. It never interprets the numbers; that
// is the validator's job.
package parser

import (
	"strconv"
	"strings"
)

// Source is either a TabularSource or a LiteralSource.
type Source interface {
	Kind() string
	pairs(label string) ([]RawPair, error)
}

const (
	KindTabular = "tabular"
	KindLiteral = "literal"
)

// RawPair is one input row before validation. Values holds the selected
// cells in selector order; a missing cell is "".
type RawPair struct {
	Row    int
	Values []string
	Raw    string
}

// Parse extracts the raw pairs of one set, in input order.
func Parse(label string, src Source) ([]RawPair, error) {
	if src == nil {
		return nil, &ConfigurationError{Set: label, Field: FieldSource, Reason: "no source given"}
	}
	return src.pairs(label)
}

// ColumnRef selects a column by 0-based index or by header name.
type ColumnRef struct {
	Index int
	Name  string
	set   bool
}

func ColumnIndex(i int) ColumnRef { return ColumnRef{Index: i, set: true} }

func ColumnName(name string) ColumnRef { return ColumnRef{Name: name, set: true} }

// ParseColumnRef reads an integer as an index and anything else as a name.
func ParseColumnRef(s string) ColumnRef {
	s = strings.TrimSpace(s)
	if s == "" {
		return ColumnRef{}
	}
	if i, err := strconv.Atoi(s); err == nil {
		return ColumnIndex(i)
	}
	return ColumnName(s)
}

func (c ColumnRef) IsSet() bool { return c.set }

func (c ColumnRef) IsName() bool { return c.set && c.Name != "" }

func (c ColumnRef) String() string {
	if !c.set {
		return "<unset>"
	}
	if c.Name != "" {
		return strconv.Quote(c.Name)
	}
	return strconv.Itoa(c.Index)
}
