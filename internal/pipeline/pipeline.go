// Package pipeline is the engine boundary: two sources in, one report out.
// Run is synchronous and keeps no state between calls.
package pipeline

import (
	"context"
	"fmt"
	"math"

	"geo-correlate/internal/calculator"
	"geo-correlate/internal/models"
	"geo-correlate/internal/parser"
	"geo-correlate/internal/report"
	"geo-correlate/internal/validator"
)

type Mode string

const (
	ModeNearest Mode = "nearest"
	ModeRadius  Mode = "radius"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNearest:
		return ModeNearest, nil
	case ModeRadius:
		return ModeRadius, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

const (
	FieldMode   = "mode"
	FieldRadius = "meters"
)

type Request struct {
	A            parser.Source
	B            parser.Source
	Mode         Mode
	RadiusMeters float64
}

type Options struct {
	// MaxPoints caps the rows of each set; zero means no cap.
	MaxPoints int
	Validator validator.Options
	Strategy  calculator.Strategy
	Progress  calculator.ProgressCallback
	Logger    calculator.LoggerCallback
}

type Outcome struct {
	Mode     Mode
	A        models.PointSet
	B        models.PointSet
	RowsA    int
	RowsB    int
	Result   models.CorrelationResult
	Radius   models.RadiusResult
	Report   string
	Document report.Document
}

// Matches returns the match records of whichever mode ran.
func (o *Outcome) Matches() []models.MatchRecord {
	if o.Mode == ModeRadius {
		return o.Radius.Matches
	}
	return o.Result.Matches
}

func (o *Outcome) Diagnostics() []models.RowDiagnostic {
	if o.Mode == ModeRadius {
		return o.Radius.Diagnostics
	}
	return o.Result.Diagnostics
}

// Run parses and validates both sets, correlates them and renders the
// report. Any configuration error in either set fails the whole run.
// Validation diagnostics for A then B precede the correlator's own.
func Run(req Request, opts Options) (*Outcome, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, &parser.ConfigurationError{Field: FieldMode, Reason: err.Error()}
	}
	if mode == ModeRadius && (req.RadiusMeters < 0 || math.IsNaN(req.RadiusMeters) || math.IsInf(req.RadiusMeters, 0)) {
		return nil, &parser.ConfigurationError{Field: FieldRadius, Reason: fmt.Sprintf("radius must be a finite non-negative number, got %v", req.RadiusMeters)}
	}

	pairsA, err := parse(models.LabelA, req.A, opts.MaxPoints)
	if err != nil {
		return nil, err
	}
	pairsB, err := parse(models.LabelB, req.B, opts.MaxPoints)
	if err != nil {
		return nil, err
	}

	setA, diagA := validator.Validate(models.LabelA, pairsA, opts.Validator)
	setB, diagB := validator.Validate(models.LabelB, pairsB, opts.Validator)
	logf(opts.Logger, "set A: %d rows, %d valid; set B: %d rows, %d valid", len(pairsA), setA.Len(), len(pairsB), setB.Len())

	copts := []calculator.Option{
		calculator.WithStrategy(opts.Strategy),
		calculator.WithProgress(opts.Progress),
		calculator.WithLogger(opts.Logger),
	}

	out := &Outcome{Mode: mode, A: setA, B: setB, RowsA: len(pairsA), RowsB: len(pairsB)}
	switch mode {
	case ModeRadius:
		res := calculator.Within(setA, setB, req.RadiusMeters, copts...)
		res.Diagnostics = concat(diagA, diagB, res.Diagnostics)
		out.Radius = res
		out.Report = report.FormatRadius(res)
		out.Document = report.StructuredRadius(res)
	default:
		res := calculator.Correlate(setA, setB, copts...)
		res.Diagnostics = concat(diagA, diagB, res.Diagnostics)
		out.Result = res
		out.Report = report.Format(res)
		out.Document = report.Structured(res)
	}
	return out, nil
}

// RunContext bounds Run by ctx. The engine has no yield points, so on
// expiry the computation finishes in the background and is discarded.
func RunContext(ctx context.Context, req Request, opts Options) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := Run(req, opts)
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func parse(label string, src parser.Source, maxPoints int) ([]parser.RawPair, error) {
	pairs, err := parser.Parse(label, src)
	if err != nil {
		return nil, err
	}
	if maxPoints > 0 && len(pairs) > maxPoints {
		return nil, &parser.ConfigurationError{
			Set:    label,
			Field:  parser.FieldSource,
			Reason: fmt.Sprintf("%d rows exceed the limit of %d", len(pairs), maxPoints),
		}
	}
	return pairs, nil
}

func concat(parts ...[]models.RowDiagnostic) []models.RowDiagnostic {
	var out []models.RowDiagnostic
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func logf(l calculator.LoggerCallback, format string, args ...interface{}) {
	if l != nil {
		l(fmt.Sprintf(format, args...))
	}
}
