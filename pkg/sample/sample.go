// Package sample places candidate sample locations along road geometry.
//
// Distances are geodesic (haversine on the orb earth radius) and new points
// are projected along the great circle of their segment, so the spacing does
// not drift with latitude. Sequences are lazy and restartable: ranging over
// the same sequence twice yields the same points.
package sample

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"streetviewdl/pkg/network"
)

// minTail is the shortest remainder worth its own endpoint sample, in metres
const minTail = 0.01

// Mode selects how points are spread along a line
type Mode int

const (
	// Fixed steps exactly the spacing from the start and adds the endpoint
	Fixed Mode = iota
	// Even splits each line into round(length/spacing) equal parts, at least one
	Even
)

// ParseMode maps the configuration spelling of a mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "fixed":
		return Fixed, nil
	case "even":
		return Even, nil
	}
	return Fixed, fmt.Errorf("unknown sampling mode %q", s)
}

func (m Mode) String() string {
	if m == Even {
		return "even"
	}
	return "fixed"
}

// Point is a candidate location on a road
type Point struct {
	Location orb.Point
	WayID    int64
	Part     int
	// Index is the position of the point along its way part
	Index int
	// Bearing is the road direction at the point in degrees clockwise from north
	Bearing float64
}

// Lat returns the latitude
func (p Point) Lat() float64 { return p.Location[1] }

// Lon returns the longitude
func (p Point) Lon() float64 { return p.Location[0] }

// Key identifies the point within one run
func (p Point) Key() string {
	return fmt.Sprintf("%d/%d/%d", p.WayID, p.Part, p.Index)
}

// Validate rejects spacings that cannot produce a finite sequence
func Validate(spacing float64) error {
	if spacing <= 0 || math.IsNaN(spacing) || math.IsInf(spacing, 0) {
		return errors.New("spacing must be a positive number of metres")
	}
	return nil
}

// Generate walks every way of net in order. An invalid spacing yields nothing.
func Generate(net *network.Network, spacing float64, mode Mode) iter.Seq[Point] {
	return func(yield func(Point) bool) {
		if Validate(spacing) != nil {
			return
		}
		for _, w := range net.Ways {
			for p := range Along(w.Line, spacing, mode) {
				p.WayID, p.Part = w.ID, w.Part
				if !yield(p) {
					return
				}
			}
		}
	}
}

// Along samples a single line. WayID and Part are left zero.
func Along(line orb.LineString, spacing float64, mode Mode) iter.Seq[Point] {
	return func(yield func(Point) bool) {
		if len(line) == 0 || Validate(spacing) != nil {
			return
		}

		cum := make([]float64, len(line))
		for i := 1; i < len(line); i++ {
			cum[i] = cum[i-1] + geo.DistanceHaversine(line[i-1], line[i])
		}
		total := cum[len(cum)-1]

		if total < minTail {
			yield(Point{Location: line[0], Bearing: bearingAt(line, 0)})
			return
		}

		targets := offsets(total, spacing, mode)
		seg := 1
		for i, d := range targets {
			for seg < len(line)-1 && cum[seg] < d {
				seg++
			}
			// skip zero-length segments so the bearing is defined
			for seg < len(line)-1 && cum[seg] == cum[seg-1] {
				seg++
			}
			from, to := line[seg-1], line[seg]
			bearing := normalize(geo.Bearing(from, to))

			var loc orb.Point
			switch {
			case i == len(targets)-1:
				loc = line[len(line)-1]
			case d <= cum[seg-1]:
				loc = from
			case d >= cum[seg]:
				loc = to
			default:
				loc = geo.PointAtBearingAndDistance(from, geo.Bearing(from, to), d-cum[seg-1])
			}

			if !yield(Point{Location: loc, Index: i, Bearing: bearing}) {
				return
			}
		}
	}
}

// offsets returns the distances along a line of length total at which
// points are placed; the last one is always total
func offsets(total, spacing float64, mode Mode) []float64 {
	if mode == Even {
		n := int(math.Round(total / spacing))
		if n < 1 {
			n = 1
		}
		out := make([]float64, 0, n+1)
		for i := 0; i < n; i++ {
			out = append(out, total*float64(i)/float64(n))
		}
		return append(out, total)
	}

	n := int(math.Floor(total / spacing))
	out := make([]float64, 0, n+2)
	for i := 0; i <= n; i++ {
		d := float64(i) * spacing
		if total-d < minTail {
			break
		}
		out = append(out, d)
	}
	return append(out, total)
}

func bearingAt(line orb.LineString, i int) float64 {
	if len(line) < 2 {
		return 0
	}
	if i >= len(line)-1 {
		i = len(line) - 2
	}
	return normalize(geo.Bearing(line[i], line[i+1]))
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Count consumes seq and returns its length
func Count(seq iter.Seq[Point]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}

// Collect consumes seq into a slice
func Collect(seq iter.Seq[Point]) []Point {
	var out []Point
	for p := range seq {
		out = append(out, p)
	}
	return out
}

// FeatureCollection renders points as GeoJSON with their way, part, index
// and bearing as properties
func FeatureCollection(seq iter.Seq[Point]) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for p := range seq {
		f := geojson.NewFeature(p.Location)
		f.Properties["way_id"] = p.WayID
		f.Properties["part"] = p.Part
		f.Properties["index"] = p.Index
		f.Properties["bearing"] = math.Round(p.Bearing*10) / 10
		fc.Append(f)
	}
	return fc
}
