// Package clip reduces a road network to the part inside an area of interest.
//
// Way bounding boxes go into one R-tree and the area's ring edges into
// another. A way is only compared against the edges whose boxes overlap it,
// so the cost does not grow with the vertex count of the whole boundary.
// Ways that cross the boundary are cut there; every stretch inside the area
// becomes its own part.
package clip

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"streetviewdl/pkg/aoi"
	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/network"
)

// pad keeps degenerate boxes (vertical or horizontal segments) searchable;
// rtreego treats touching rectangles as disjoint.
const pad = 1e-9

const (
	minChildren = 25
	maxChildren = 50
)

// Clip returns the ways of net intersecting area, truncated at its boundary.
// It fails with *errors.CrsMismatchError before any spatial work when the
// inputs disagree on their coordinate system, and with
// *errors.EmptyExtractError when nothing is left.
func Clip(net *network.Network, area *aoi.Area) (*network.Network, error) {
	if err := checkCRS(net, area); err != nil {
		return nil, err
	}

	b := newBoundary(area)
	candidates := b.candidates(net)

	parts := make(map[int64]int)
	var out []network.Way
	for _, i := range candidates {
		w := net.Ways[i]
		for _, line := range b.cut(w.Line) {
			out = append(out, network.Way{
				ID:    w.ID,
				Part:  parts[w.ID],
				Class: w.Class,
				Name:  w.Name,
				Line:  line,
			})
			parts[w.ID]++
		}
	}

	if len(out) == 0 {
		return nil, &errs.EmptyExtractError{Ways: net.Len(), Area: area.String()}
	}
	return &network.Network{Ways: out, CRS: net.CRS}, nil
}

func checkCRS(net *network.Network, area *aoi.Area) error {
	netCRS, areaCRS := aoi.NormalizeCRS(net.CRS), aoi.NormalizeCRS(area.CRS)
	if netCRS != areaCRS {
		return &errs.CrsMismatchError{NetworkCRS: netCRS, AreaCRS: areaCRS}
	}
	if netCRS != aoi.WGS84 {
		return &errs.CrsMismatchError{NetworkCRS: netCRS, AreaCRS: areaCRS, Reason: "only " + aoi.WGS84 + " is supported"}
	}
	if !area.InGeographicRange() {
		return &errs.CrsMismatchError{NetworkCRS: netCRS, AreaCRS: areaCRS, Reason: "area coordinates are not longitude/latitude"}
	}
	if nb := net.Bound(); net.Len() > 0 && !geographic(nb) {
		return &errs.CrsMismatchError{NetworkCRS: netCRS, AreaCRS: areaCRS, Reason: "network coordinates are not longitude/latitude"}
	}
	return nil
}

func geographic(b orb.Bound) bool {
	return b.Min[0] >= -180 && b.Max[0] <= 180 && b.Min[1] >= -90 && b.Max[1] <= 90
}

func rect(b orb.Bound) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min[0] - pad, b.Min[1] - pad},
		rtreego.Point{b.Max[0] + pad, b.Max[1] + pad},
	)
	return r
}

type wayEntry struct {
	index int
	box   rtreego.Rect
}

func (w *wayEntry) Bounds() rtreego.Rect { return w.box }

type edge struct {
	a, b orb.Point
	box  rtreego.Rect
}

func (e *edge) Bounds() rtreego.Rect { return e.box }

// boundary indexes the ring edges of an area
type boundary struct {
	area  *aoi.Area
	bound orb.Bound
	edges *rtreego.Rtree
}

func newBoundary(area *aoi.Area) *boundary {
	var objs []rtreego.Spatial
	for _, poly := range area.Geometry {
		for _, ring := range poly {
			for i := 1; i < len(ring); i++ {
				a, b := ring[i-1], ring[i]
				objs = append(objs, &edge{a: a, b: b, box: rect(orb.LineString{a, b}.Bound())})
			}
			// tolerate unclosed rings
			if n := len(ring); n > 2 && ring[0] != ring[n-1] {
				a, b := ring[n-1], ring[0]
				objs = append(objs, &edge{a: a, b: b, box: rect(orb.LineString{a, b}.Bound())})
			}
		}
	}
	return &boundary{
		area:  area,
		bound: area.Bound(),
		edges: rtreego.NewTree(2, minChildren, maxChildren, objs...),
	}
}

// candidates returns, in input order, the indexes of ways whose bounding box
// overlaps one of the area's polygons
func (b *boundary) candidates(net *network.Network) []int {
	objs := make([]rtreego.Spatial, 0, net.Len())
	for i, w := range net.Ways {
		if len(w.Line) < 2 {
			continue
		}
		objs = append(objs, &wayEntry{index: i, box: rect(w.Bound())})
	}
	ways := rtreego.NewTree(2, minChildren, maxChildren, objs...)

	seen := make(map[int]bool)
	var out []int
	for _, poly := range b.area.Geometry {
		for _, s := range ways.SearchIntersect(rect(poly.Bound())) {
			idx := s.(*wayEntry).index
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	sort.Ints(out)
	return out
}

func (b *boundary) nearEdges(box orb.Bound) []*edge {
	found := b.edges.SearchIntersect(rect(box))
	out := make([]*edge, len(found))
	for i, s := range found {
		out[i] = s.(*edge)
	}
	return out
}

// onEdgeTolerance is how far, in degrees, a point may sit from a boundary
// edge and still count as lying on it
const onEdgeTolerance = 1e-9

// contains reports whether p is inside the area or on its boundary. Interior
// points are found by an even-odd ray cast towards +x that only visits edges
// the ray's box overlaps.
func (b *boundary) contains(p orb.Point) bool {
	if !b.bound.Contains(p) {
		return false
	}
	if b.onBoundary(p) {
		return true
	}
	ray := orb.Bound{Min: p, Max: orb.Point{b.bound.Max[0], p[1]}}
	inside := false
	for _, e := range b.nearEdges(ray) {
		a, c := e.a, e.b
		if (a[1] > p[1]) != (c[1] > p[1]) {
			x := (c[0]-a[0])*(p[1]-a[1])/(c[1]-a[1]) + a[0]
			if p[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}

func (b *boundary) onBoundary(p orb.Point) bool {
	for _, e := range b.nearEdges(orb.Bound{Min: p, Max: p}) {
		if onSegment(p, e.a, e.b) {
			return true
		}
	}
	return false
}

func onSegment(p, a, c orb.Point) bool {
	d := orb.Point{c[0] - a[0], c[1] - a[1]}
	ap := orb.Point{p[0] - a[0], p[1] - a[1]}
	length := math.Hypot(d[0], d[1])
	if length == 0 {
		return math.Hypot(ap[0], ap[1]) <= onEdgeTolerance
	}
	if math.Abs(cross(ap, d)) > onEdgeTolerance*length {
		return false
	}
	along := ap[0]*d[0] + ap[1]*d[1]
	return along >= -onEdgeTolerance*length && along <= length*length+onEdgeTolerance*length
}

// cut splits line at every boundary crossing and keeps the stretches inside
func (b *boundary) cut(line orb.LineString) []orb.LineString {
	// No boundary edge near the way: it is entirely inside or entirely outside
	if len(b.nearEdges(line.Bound())) == 0 {
		if b.contains(line[0]) {
			return []orb.LineString{line.Clone()}
		}
		return nil
	}

	var parts []orb.LineString
	var current orb.LineString
	flush := func() {
		if len(current) >= 2 {
			parts = append(parts, current)
		}
		current = nil
	}

	for i := 1; i < len(line); i++ {
		p, q := line[i-1], line[i]
		ts := b.crossings(p, q)
		for j := 1; j < len(ts); j++ {
			t0, t1 := ts[j-1], ts[j]
			if t1-t0 < 1e-12 {
				continue
			}
			if !b.contains(lerp(p, q, (t0+t1)/2)) {
				flush()
				continue
			}
			if len(current) == 0 {
				current = append(current, lerp(p, q, t0))
			}
			end := lerp(p, q, t1)
			if end != current[len(current)-1] {
				current = append(current, end)
			}
		}
	}
	flush()

	return parts
}

// crossings returns the sorted segment parameters in [0, 1] where p→q meets
// the boundary, always including both ends
func (b *boundary) crossings(p, q orb.Point) []float64 {
	ts := []float64{0, 1}
	d := orb.Point{q[0] - p[0], q[1] - p[1]}
	for _, e := range b.nearEdges(orb.LineString{p, q}.Bound()) {
		f := orb.Point{e.b[0] - e.a[0], e.b[1] - e.a[1]}
		denom := cross(d, f)
		if denom == 0 {
			// parallel or collinear; the midpoint tests decide
			continue
		}
		ap := orb.Point{e.a[0] - p[0], e.a[1] - p[1]}
		t := cross(ap, f) / denom
		u := cross(ap, d) / denom
		if t > 0 && t < 1 && u >= 0 && u <= 1 {
			ts = append(ts, t)
		}
	}
	sort.Float64s(ts)
	return ts
}

func cross(a, b orb.Point) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

func lerp(p, q orb.Point, t float64) orb.Point {
	switch t {
	case 0:
		return p
	case 1:
		return q
	}
	return orb.Point{p[0] + (q[0]-p[0])*t, p[1] + (q[1]-p[1])*t}
}
