package calculator

import (
	"fmt"

	"geo-correlate/internal/models"
)

type ProgressCallback func(current, total int, msg string)
type LoggerCallback func(msg string)

// progressEvery is how many A points pass between progress callbacks.
const progressEvery = 500

type options struct {
	strategy   Strategy
	onProgress ProgressCallback
	logger     LoggerCallback
}

type Option func(*options)

// WithStrategy replaces the default full scan of B.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		if s != nil {
			o.strategy = s
		}
	}
}

func WithProgress(cb ProgressCallback) Option {
	return func(o *options) { o.onProgress = cb }
}

func WithLogger(cb LoggerCallback) Option {
	return func(o *options) { o.logger = cb }
}

func buildOptions(opts []Option) options {
	o := options{strategy: NewScanSearcher}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) log(msg string) {
	if o.logger != nil {
		o.logger(msg)
	}
}

func (o options) progress(current, total int) {
	if o.onProgress != nil {
		o.onProgress(current, total, "")
	}
}

// Correlate finds, for every point of a, the nearest point of b.
// Neither set is modified.
func Correlate(a, b models.PointSet, opts ...Option) models.CorrelationResult {
	o := buildOptions(opts)
	total := a.Len()
	res := models.CorrelationResult{}
	if total == 0 {
		return res
	}

	if b.Len() == 0 {
		o.log(fmt.Sprintf("set %s is empty, %d points have no candidate", labelOf(b, models.LabelB), total))
		res.Diagnostics = noCandidates(a)
		return res
	}

	o.log(fmt.Sprintf("Nearest search: %d points in %s, %d candidates in %s", total, labelOf(a, models.LabelA), b.Len(), labelOf(b, models.LabelB)))

	searcher := o.strategy(b)
	res.Matches = make([]models.MatchRecord, 0, total)
	for idx, src := range a.Points {
		nearestIdx, minDist, ok := searcher.Nearest(src)
		if !ok {
			res.Diagnostics = append(res.Diagnostics, noCandidate(a, idx))
			continue
		}
		res.Matches = append(res.Matches, models.MatchRecord{
			SourceIndex:    idx,
			MatchedIndex:   nearestIdx,
			SourceRow:      a.Row(idx),
			MatchedRow:     b.Row(nearestIdx),
			Source:         src,
			Matched:        b.Points[nearestIdx],
			DistanceMeters: minDist,
		})
		if (idx+1)%progressEvery == 0 {
			o.progress(idx+1, total)
		}
	}
	o.progress(total, total)
	res.Stats = ComputeStats(res.Matches)
	o.log("Calculation completed.")
	return res
}

// Within lists every pair closer than radiusMeters, ordered by A index and
// then B index. A points with nothing in range get a NO_CANDIDATE diagnostic.
func Within(a, b models.PointSet, radiusMeters float64, opts ...Option) models.RadiusResult {
	o := buildOptions(opts)
	total := a.Len()
	res := models.RadiusResult{RadiusMeters: radiusMeters}
	if total == 0 {
		return res
	}
	if b.Len() == 0 {
		res.Diagnostics = noCandidates(a)
		return res
	}

	o.log(fmt.Sprintf("Radius search (%.0fm): %d points, %d candidates", radiusMeters, total, b.Len()))

	searcher := o.strategy(b)
	for idx, src := range a.Points {
		hits := searcher.Within(src, radiusMeters)
		if len(hits) == 0 {
			res.Diagnostics = append(res.Diagnostics, noCandidate(a, idx))
		}
		for _, h := range hits {
			res.Matches = append(res.Matches, models.MatchRecord{
				SourceIndex:    idx,
				MatchedIndex:   h.Index,
				SourceRow:      a.Row(idx),
				MatchedRow:     b.Row(h.Index),
				Source:         src,
				Matched:        b.Points[h.Index],
				DistanceMeters: h.Meters,
			})
		}
		if (idx+1)%progressEvery == 0 {
			o.progress(idx+1, total)
		}
	}
	o.progress(total, total)
	res.Stats = ComputeStats(res.Matches)
	o.log("Radius calculation completed.")
	return res
}

func ComputeStats(matches []models.MatchRecord) models.Stats {
	if len(matches) == 0 {
		return models.Stats{}
	}
	st := models.Stats{
		Count: len(matches),
		Min:   matches[0].DistanceMeters,
		Max:   matches[0].DistanceMeters,
	}
	var sum float64
	for _, m := range matches {
		d := m.DistanceMeters
		if d < st.Min {
			st.Min = d
		}
		if d > st.Max {
			st.Max = d
		}
		sum += d
	}
	st.Mean = sum / float64(len(matches))
	return st
}

func noCandidates(a models.PointSet) []models.RowDiagnostic {
	out := make([]models.RowDiagnostic, a.Len())
	for i := range a.Points {
		out[i] = noCandidate(a, i)
	}
	return out
}

func noCandidate(a models.PointSet, i int) models.RowDiagnostic {
	return models.RowDiagnostic{
		SourceLabel: labelOf(a, models.LabelA),
		RowIndex:    a.Row(i),
		RawValue:    a.Points[i].String(),
		Reason:      models.ReasonNoCandidate,
	}
}

func labelOf(s models.PointSet, fallback string) string {
	if s.Label == "" {
		return fallback
	}
	return s.Label
}
