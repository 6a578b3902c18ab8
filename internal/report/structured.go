package report

import (
	"math"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"geo-correlate/internal/models"
)

// Document is the JSON view of a result returned alongside the text report.
type Document struct {
	Mode         string                 `json:"mode"`
	RadiusMeters *float64               `json:"radius_m,omitempty"`
	Matches      []MatchEntry           `json:"matches"`
	Diagnostics  []models.RowDiagnostic `json:"diagnostics"`
	Stats        StatsEntry             `json:"stats"`
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Geohash string  `json:"geohash"`
}

type MatchEntry struct {
	SourceIndex  int      `json:"a_index"`
	MatchedIndex int      `json:"b_index"`
	SourceRow    int      `json:"a_row"`
	MatchedRow   int      `json:"b_row"`
	Source       Location `json:"a"`
	Matched      Location `json:"b"`
	Meters       float64  `json:"distance_m"`
}

// StatsEntry leaves the distance fields null when nothing matched.
type StatsEntry struct {
	Count int      `json:"count"`
	Min   *float64 `json:"min_m"`
	Max   *float64 `json:"max_m"`
	Mean  *float64 `json:"mean_m"`
}

const (
	ModeNearest = "nearest"
	ModeRadius  = "radius"
)

func Structured(res models.CorrelationResult) Document {
	return document(ModeNearest, res.Matches, res.Diagnostics, res.Stats)
}

func StructuredRadius(res models.RadiusResult) Document {
	doc := document(ModeRadius, res.Matches, res.Diagnostics, res.Stats)
	r := res.RadiusMeters
	doc.RadiusMeters = &r
	return doc
}

func document(mode string, matches []models.MatchRecord, diags []models.RowDiagnostic, st models.Stats) Document {
	doc := Document{
		Mode:        mode,
		Matches:     make([]MatchEntry, len(matches)),
		Diagnostics: diags,
		Stats:       StatsEntry{Count: st.Count},
	}
	if doc.Diagnostics == nil {
		doc.Diagnostics = []models.RowDiagnostic{}
	}
	for i, m := range matches {
		doc.Matches[i] = MatchEntry{
			SourceIndex:  m.SourceIndex,
			MatchedIndex: m.MatchedIndex,
			SourceRow:    m.SourceRow,
			MatchedRow:   m.MatchedRow,
			Source:       location(m.Source),
			Matched:      location(m.Matched),
			Meters:       round2(m.DistanceMeters),
		}
	}
	if st.Defined() {
		min, max, mean := round2(st.Min), round2(st.Max), round2(st.Mean)
		doc.Stats.Min, doc.Stats.Max, doc.Stats.Mean = &min, &max, &mean
	}
	return doc
}

func location(p models.Point) Location {
	return Location{Lat: p.Lat, Lon: p.Lon, Geohash: geohash.Encode(p.Lat, p.Lon)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
