package validator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"geo-correlate/internal/models"
	"geo-correlate/internal/parser"
)

// Order names which raw component is latitude.
type Order string

const (
	OrderLatLon Order = "lat,lon"
	OrderLonLat Order = "lon,lat"
)

func ParseOrder(s string) (Order, error) {
	switch Order(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")) {
	case "", OrderLatLon:
		return OrderLatLon, nil
	case OrderLonLat:
		return OrderLonLat, nil
	default:
		return "", fmt.Errorf("unknown coordinate order %q", s)
	}
}

type Options struct {
	Order Order
	// DecimalComma accepts "41,5" as 41.5.
	DecimalComma bool
}

var (
	errMissing    = errors.New("missing")
	errNotNumeric = errors.New("not numeric")
)

func parseCoord(val string, decimalComma bool) (float64, error) {
	val = strings.TrimSpace(val)
	if decimalComma {
		val = strings.ReplaceAll(val, ",", ".")
	}
	if val == "" {
		return 0, errMissing
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumeric
	}
	return f, nil
}

// Validate turns raw pairs into a PointSet. Rejected rows become
// diagnostics; the rest of the batch is always processed.
func Validate(label string, pairs []parser.RawPair, opts Options) (models.PointSet, []models.RowDiagnostic) {
	set := models.PointSet{
		Label:  label,
		Points: make([]models.Point, 0, len(pairs)),
		Rows:   make([]int, 0, len(pairs)),
	}
	var diags []models.RowDiagnostic

	for _, pair := range pairs {
		p, reason := coerce(pair.Values, opts)
		if reason != "" {
			diags = append(diags, models.RowDiagnostic{
				SourceLabel: label,
				RowIndex:    pair.Row,
				RawValue:    pair.Raw,
				Reason:      reason,
			})
			continue
		}
		set.Points = append(set.Points, p)
		set.Rows = append(set.Rows, pair.Row)
	}
	return set, diags
}

func coerce(values []string, opts Options) (models.Point, models.Reason) {
	if len(values) < 2 {
		return models.Point{}, models.ReasonMissingComponent
	}
	first, err1 := parseCoord(values[0], opts.DecimalComma)
	second, err2 := parseCoord(values[1], opts.DecimalComma)
	switch {
	case err1 == errMissing || err2 == errMissing:
		return models.Point{}, models.ReasonMissingComponent
	case err1 != nil || err2 != nil:
		return models.Point{}, models.ReasonNotNumeric
	}

	p := models.Point{Lat: first, Lon: second}
	if opts.Order == OrderLonLat {
		p = models.Point{Lat: second, Lon: first}
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return models.Point{}, models.ReasonOutOfRange
	}
	return p, ""
}
