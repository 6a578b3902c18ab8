package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"geo-correlate/internal/models"
	"geo-correlate/internal/parser"
	"geo-correlate/internal/pipeline"
)

// ColumnParam accepts a JSON number, a numeric string or a header name.
type ColumnParam struct {
	Ref parser.ColumnRef
}

func (c *ColumnParam) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		c.Ref = parser.ColumnRef{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		c.Ref = parser.ParseColumnRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return fmt.Errorf("column index %s is not an integer", n)
	}
	c.Ref = parser.ColumnIndex(i)
	return nil
}

// FlexBool accepts true/false or their string forms.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %s", b)
	}
	return nil
}

// ExecuteRequest is the body of /execute and /jobs. Set A uses the *1/*A
// fields, set B the *2/*B fields.
type ExecuteRequest struct {
	File          string      `json:"file"`
	ColumnIndex1A ColumnParam `json:"columnIndex1A"`
	ColumnIndex2A ColumnParam `json:"columnIndex2A"`
	ColumnIndex1B ColumnParam `json:"columnIndex1B"`
	ColumnIndex2B ColumnParam `json:"columnIndex2B"`
	ManualEntry1  string      `json:"manualEntry1"`
	ManualEntry2  string      `json:"manualEntry2"`
	UseCSV1       FlexBool    `json:"useCSV1"`
	UseCSV2       FlexBool    `json:"useCSV2"`

	Sheet    string   `json:"sheet"`
	Header   bool     `json:"header"`
	Encoding string   `json:"encoding"`
	Mode     string   `json:"mode"`
	Meters   *float64 `json:"meters"`
}

const FieldFile = "file"

// requestField names the request field a configuration error points at.
func requestField(ce *parser.ConfigurationError) string {
	a := ce.Set == models.LabelA
	switch ce.Field {
	case parser.FieldColumn1:
		if a {
			return "columnIndex1A"
		}
		return "columnIndex1B"
	case parser.FieldColumn2:
		if a {
			return "columnIndex2A"
		}
		return "columnIndex2B"
	case parser.FieldLiteral:
		if a {
			return "manualEntry1"
		}
		return "manualEntry2"
	case parser.FieldPayload:
		return FieldFile
	}
	return ce.Field
}

// fileLoader reads the referenced upload once, on first use.
type fileLoader func(ref string) ([]byte, error)

func (r ExecuteRequest) toPipeline(defaultFile string, load fileLoader) (pipeline.Request, error) {
	req := pipeline.Request{Mode: pipeline.Mode(r.Mode)}
	if r.Meters != nil {
		req.RadiusMeters = *r.Meters
	} else if req.Mode == pipeline.ModeRadius {
		return req, &parser.ConfigurationError{Field: pipeline.FieldRadius, Reason: "radius mode needs meters"}
	}

	var payload []byte
	var loaded bool
	tabular := func(label string, c1, c2 ColumnParam) (parser.Source, error) {
		if !loaded {
			ref := r.File
			if ref == "" {
				ref = defaultFile
			}
			if ref == "" {
				return nil, &parser.ConfigurationError{Set: label, Field: FieldFile, Reason: "no file uploaded or referenced"}
			}
			data, err := load(ref)
			if err != nil {
				return nil, &parser.ConfigurationError{Set: label, Field: FieldFile, Reason: "cannot read file", Err: err}
			}
			payload, loaded = data, true
		}
		return parser.TabularSource{
			Payload:  payload,
			Column1:  c1.Ref,
			Column2:  c2.Ref,
			Header:   r.Header,
			Sheet:    r.Sheet,
			Encoding: r.Encoding,
		}, nil
	}

	var err error
	if r.UseCSV1 {
		req.A, err = tabular(models.LabelA, r.ColumnIndex1A, r.ColumnIndex2A)
	} else {
		req.A = parser.LiteralSource{Text: r.ManualEntry1}
	}
	if err != nil {
		return req, err
	}
	if r.UseCSV2 {
		req.B, err = tabular(models.LabelB, r.ColumnIndex1B, r.ColumnIndex2B)
	} else {
		req.B = parser.LiteralSource{Text: r.ManualEntry2}
	}
	return req, err
}

func isConfigError(err error) (*parser.ConfigurationError, bool) {
	var ce *parser.ConfigurationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
