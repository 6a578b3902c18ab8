package parser

import (
	"errors"
	"fmt"
)

const (
	FieldSource  = "source"
	FieldColumn1 = "column1"
	FieldColumn2 = "column2"
	FieldLiteral = "literal"
	FieldPayload = "payload"
	FieldSheet   = "sheet"
)

// ConfigurationError aborts a whole set: bad selector, bad literal grammar
// or an unreadable table. Set is empty for request-wide problems.
type ConfigurationError struct {
	Set    string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Field, e.Reason)
	if e.Set != "" {
		msg = fmt.Sprintf("set %s: %s", e.Set, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// SyntaxError locates a literal-array grammar violation by byte offset.
type SyntaxError struct {
	Offset   int
	Expected string
	Found    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: expected %s, found %s", e.Offset, e.Expected, e.Found)
}
