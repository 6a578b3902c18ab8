// Package report renders correlation results. Text output is stable across
// runs and locales: fixed field order, '.' decimal point, two decimals.
package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"geo-correlate/internal/models"
)

const (
	Title       = "correlation report"
	RadiusTitle = "radius report"
	undefined   = "n/a"
)

func meters(d float64) string {
	return strconv.FormatFloat(d, 'f', 2, 64)
}

// Format renders a nearest-neighbour result.
func Format(res models.CorrelationResult) string {
	var b strings.Builder
	b.WriteString(Title + "\n")
	writeBody(&b, res.Matches, res.Diagnostics, res.Stats)
	return b.String()
}

// FormatRadius renders a radius result in the same layout.
func FormatRadius(res models.RadiusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (within %s m)\n", RadiusTitle, meters(res.RadiusMeters))
	writeBody(&b, res.Matches, res.Diagnostics, res.Stats)
	return b.String()
}

func writeBody(b *strings.Builder, matches []models.MatchRecord, diags []models.RowDiagnostic, st models.Stats) {
	fmt.Fprintf(b, "matches: %d\n", len(matches))
	// indices are input rows, the same numbering diagnostics use
	for _, m := range matches {
		fmt.Fprintf(b, "%s[%d] -> %s[%d] : %s\n", models.LabelA, m.SourceRow, models.LabelB, m.MatchedRow, meters(m.DistanceMeters))
	}
	fmt.Fprintf(b, "diagnostics: %d\n", len(diags))
	for _, d := range diags {
		fmt.Fprintf(b, "%s[%d]: %s — %s\n", d.SourceLabel, d.RowIndex, rawText(d.RawValue), d.Reason)
	}
	b.WriteString("summary\n")
	fmt.Fprintf(b, "count: %d\n", st.Count)
	for _, f := range []struct {
		name string
		v    float64
	}{{"min", st.Min}, {"max", st.Max}, {"mean", st.Mean}} {
		v := undefined
		if st.Defined() {
			v = meters(f.v)
		}
		fmt.Fprintf(b, "%s: %s\n", f.name, v)
	}
}

// rawText keeps a raw cell on one line: values holding control
// characters are rendered Go-quoted.
func rawText(raw string) string {
	if strings.IndexFunc(raw, unicode.IsControl) < 0 {
		return raw
	}
	return strconv.Quote(raw)
}

// ParsedMatch is a match line read back from a rendered report. Rows are
// input rows of set A and set B.
type ParsedMatch struct {
	SourceRow      int
	MatchedRow     int
	DistanceMeters float64
}

var matchLine = regexp.MustCompile(`^A\[(\d+)\] -> B\[(\d+)\] : (\d+\.\d{2})$`)

// ParseMatchLines recovers the match lines of a Format or FormatRadius output.
func ParseMatchLines(text string) ([]ParsedMatch, error) {
	var out []ParsedMatch
	for n, line := range strings.Split(text, "\n") {
		m := matchLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		src, err1 := strconv.Atoi(m[1])
		dst, err2 := strconv.Atoi(m[2])
		d, err3 := strconv.ParseFloat(m[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("line %d: malformed match %q", n+1, line)
		}
		out = append(out, ParsedMatch{SourceRow: src, MatchedRow: dst, DistanceMeters: d})
	}
	return out, nil
}
