package models

import "strconv"

// Point is a signed decimal latitude/longitude pair. Treat it as a value.
type Point struct {
	Lat float64
	Lon float64
}

func (p Point) String() string {
	return "[" + strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64) + "]"
}

const (
	LabelA = "A"
	LabelB = "B"
)

// PointSet is one side of a correlation. Rows[i] is the 0-based input
// row (or literal element) that produced Points[i].
type PointSet struct {
	Label  string
	Points []Point
	Rows   []int
}

func (s PointSet) Len() int { return len(s.Points) }

// Row returns the source row of point i, falling back to i when the set
// was built without row bookkeeping.
func (s PointSet) Row(i int) int {
	if i < len(s.Rows) {
		return s.Rows[i]
	}
	return i
}

type Reason string

const (
	ReasonNotNumeric       Reason = "NOT_NUMERIC"
	ReasonOutOfRange       Reason = "OUT_OF_RANGE"
	ReasonMissingComponent Reason = "MISSING_COMPONENT"
	ReasonNoCandidate      Reason = "NO_CANDIDATE"
)

type RowDiagnostic struct {
	SourceLabel string `json:"source"`
	RowIndex    int    `json:"row"`
	RawValue    string `json:"raw"`
	Reason      Reason `json:"reason"`
}

// MatchRecord pairs A[SourceIndex] with its nearest B[MatchedIndex].
// Indices address the PointSets; the *Row fields are the input rows.
type MatchRecord struct {
	SourceIndex    int     `json:"source_index"`
	MatchedIndex   int     `json:"matched_index"`
	SourceRow      int     `json:"source_row"`
	MatchedRow     int     `json:"matched_row"`
	Source         Point   `json:"-"`
	Matched        Point   `json:"-"`
	DistanceMeters float64 `json:"distance_m"`
}

// Stats is computed over matches only. With Count == 0 the distance
// fields are zero and must be read as undefined.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min_m"`
	Max   float64 `json:"max_m"`
	Mean  float64 `json:"mean_m"`
}

func (s Stats) Defined() bool { return s.Count > 0 }

type CorrelationResult struct {
	Matches     []MatchRecord   `json:"matches"`
	Diagnostics []RowDiagnostic `json:"diagnostics"`
	Stats       Stats           `json:"stats"`
}

// DiagnosticsFor returns the diagnostics recorded against one set label.
func (r CorrelationResult) DiagnosticsFor(label string) []RowDiagnostic {
	var out []RowDiagnostic
	for _, d := range r.Diagnostics {
		if d.SourceLabel == label {
			out = append(out, d)
		}
	}
	return out
}

// RadiusResult lists every A/B pair closer than RadiusMeters, A-major.
type RadiusResult struct {
	RadiusMeters float64         `json:"radius_m"`
	Matches      []MatchRecord   `json:"matches"`
	Diagnostics  []RowDiagnostic `json:"diagnostics"`
	Stats        Stats           `json:"stats"`
}
