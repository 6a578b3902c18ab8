package calculator

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"geo-correlate/internal/models"
)

// Searcher answers nearest and radius queries against a fixed candidate set.
// Ties always resolve to the lowest candidate index.
type Searcher interface {
	Nearest(p models.Point) (idx int, meters float64, ok bool)
	Within(p models.Point, meters float64) []Hit
}

type Hit struct {
	Index  int
	Meters float64
}

// Strategy builds a Searcher over set B.
type Strategy func(b models.PointSet) Searcher

const (
	StrategyScan  = "scan"
	StrategyRTree = "rtree"
)

func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", StrategyScan:
		return NewScanSearcher, nil
	case StrategyRTree:
		return NewRTreeSearcher, nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", name)
	}
}

// ScanSearcher compares against every candidate.
type ScanSearcher struct {
	points []models.Point
}

func NewScanSearcher(b models.PointSet) Searcher {
	return &ScanSearcher{points: b.Points}
}

func (s *ScanSearcher) Nearest(p models.Point) (int, float64, bool) {
	return nearestOf(p, s.points, nil)
}

func (s *ScanSearcher) Within(p models.Point, meters float64) []Hit {
	var hits []Hit
	for i, q := range s.points {
		if d := Distance(p, q); d <= meters {
			hits = append(hits, Hit{Index: i, Meters: d})
		}
	}
	return hits
}

// nearestOf scans points (or only the listed candidate indices, which must
// be ascending) and keeps the first strict minimum.
func nearestOf(p models.Point, points []models.Point, cands []int) (int, float64, bool) {
	best := -1
	minDist := math.MaxFloat64
	if cands == nil {
		for i, q := range points {
			if d := Distance(p, q); d < minDist {
				minDist = d
				best = i
			}
		}
	} else {
		for _, i := range cands {
			if d := Distance(p, points[i]); d < minDist {
				minDist = d
				best = i
			}
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, minDist, true
}

// RTreeSearcher indexes candidates as unit vectors. Straight-line chord
// length grows with great-circle distance, so a chord box around the query
// always contains the true nearest; the box contents are then ranked with
// Distance so results equal ScanSearcher's.
type RTreeSearcher struct {
	points []models.Point
	tree   *rtreego.Rtree
}

const (
	pointTol   = 1e-12
	chordSlack = 1e-9
)

type indexed struct {
	idx int
	at  rtreego.Point
}

func (e *indexed) Bounds() rtreego.Rect {
	return e.at.ToRect(pointTol)
}

func NewRTreeSearcher(b models.PointSet) Searcher {
	objs := make([]rtreego.Spatial, len(b.Points))
	for i, p := range b.Points {
		objs[i] = &indexed{idx: i, at: unitVector(p)}
	}
	return &RTreeSearcher{
		points: b.Points,
		tree:   rtreego.NewTree(3, 25, 50, objs...),
	}
}

func (s *RTreeSearcher) Nearest(p models.Point) (int, float64, bool) {
	if len(s.points) == 0 {
		return 0, 0, false
	}
	q := unitVector(p)
	nn, ok := s.tree.NearestNeighbor(q).(*indexed)
	if !ok {
		return nearestOf(p, s.points, nil)
	}
	cands, ok := s.inBox(q, chord(q, nn.at)+chordSlack)
	if !ok {
		return nearestOf(p, s.points, nil)
	}
	return nearestOf(p, s.points, cands)
}

func (s *RTreeSearcher) Within(p models.Point, meters float64) []Hit {
	if len(s.points) == 0 || meters < 0 {
		return nil
	}
	theta := meters / EarthRadius
	var cands []int
	if theta >= math.Pi {
		cands = make([]int, len(s.points))
		for i := range cands {
			cands[i] = i
		}
	} else {
		var ok bool
		cands, ok = s.inBox(unitVector(p), 2*math.Sin(theta/2)+chordSlack)
		if !ok {
			return (&ScanSearcher{points: s.points}).Within(p, meters)
		}
	}
	var hits []Hit
	for _, i := range cands {
		if d := Distance(p, s.points[i]); d <= meters {
			hits = append(hits, Hit{Index: i, Meters: d})
		}
	}
	return hits
}

// inBox returns the ascending indices of entries inside the cube of
// half-width r around q.
func (s *RTreeSearcher) inBox(q rtreego.Point, r float64) ([]int, bool) {
	corner := rtreego.Point{q[0] - r, q[1] - r, q[2] - r}
	box, err := rtreego.NewRect(corner, []float64{2 * r, 2 * r, 2 * r})
	if err != nil {
		return nil, false
	}
	found := s.tree.SearchIntersect(box)
	cands := make([]int, 0, len(found))
	for _, sp := range found {
		if e, ok := sp.(*indexed); ok {
			cands = append(cands, e.idx)
		}
	}
	sort.Ints(cands)
	return cands, true
}

func unitVector(p models.Point) rtreego.Point {
	lat := toRadians(p.Lat)
	lon := toRadians(p.Lon)
	return rtreego.Point{
		math.Cos(lat) * math.Cos(lon),
		math.Cos(lat) * math.Sin(lon),
		math.Sin(lat),
	}
}

func chord(a, b rtreego.Point) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
