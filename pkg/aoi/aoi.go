// Package aoi loads the area of interest that bounds a download run.
package aoi

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// WGS84 is the only coordinate reference system the pipeline computes in
const WGS84 = "EPSG:4326"

// Area is an immutable polygon or multipolygon in lon/lat
type Area struct {
	Geometry orb.MultiPolygon
	// CRS as declared by the source, normalised to an EPSG code when recognised
	CRS string
}

// New wraps a geometry that is known to be WGS84
func New(mp orb.MultiPolygon) *Area {
	return &Area{Geometry: mp, CRS: WGS84}
}

// FromBound builds a rectangular area
func FromBound(b orb.Bound) *Area {
	return New(orb.MultiPolygon{b.ToPolygon()})
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat"
func ParseBBox(s string) (*Area, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return nil, fmt.Errorf("bbox %q: min must be below max", s)
	}

	return FromBound(orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}), nil
}

// Load reads an area from a GeoJSON file
func Load(path string) (*Area, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read area of interest: %w", err)
	}
	area, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return area, nil
}

// Parse accepts a GeoJSON FeatureCollection, Feature or bare Polygon/MultiPolygon
// geometry. Polygons from every feature are merged into one multipolygon.
// A legacy "crs" member is honoured; without one the data is assumed WGS84.
func Parse(data []byte) (*Area, error) {
	var head struct {
		Type string          `json:"type"`
		CRS  json.RawMessage `json:"crs"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature: %w", err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("invalid geometry: %w", err)
		}
		geoms = append(geoms, g.Geometry())
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch g := g.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		case orb.Bound:
			mp = append(mp, g.ToPolygon())
		}
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("no polygon geometry found")
	}

	return &Area{Geometry: mp, CRS: parseCRS(head.CRS)}, nil
}

// parseCRS understands the GeoJSON 2008 named-CRS member
func parseCRS(raw json.RawMessage) string {
	if len(raw) == 0 {
		return WGS84
	}
	var named struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &named); err != nil || named.Properties.Name == "" {
		return WGS84
	}
	return NormalizeCRS(named.Properties.Name)
}

// NormalizeCRS maps the common spellings of a CRS name to "EPSG:<code>"
func NormalizeCRS(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch n {
	case "", "WGS84", "CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "URN:OGC:DEF:CRS:OGC::CRS84":
		return WGS84
	}
	if i := strings.LastIndex(n, "EPSG::"); i >= 0 {
		return "EPSG:" + n[i+len("EPSG::"):]
	}
	return n
}

// Bound returns the bounding box of the whole area
func (a *Area) Bound() orb.Bound {
	return a.Geometry.Bound()
}

// Contains reports whether p lies inside the area (holes excluded)
func (a *Area) Contains(p orb.Point) bool {
	return planar.MultiPolygonContains(a.Geometry, p)
}

// InGeographicRange reports whether every vertex is a valid lon/lat pair.
// Projected coordinates labelled as WGS84 fail this check.
func (a *Area) InGeographicRange() bool {
	for _, poly := range a.Geometry {
		for _, ring := range poly {
			for _, p := range ring {
				if p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
					return false
				}
			}
		}
	}
	return true
}

// String describes the area by its bound, for error messages
func (a *Area) String() string {
	b := a.Bound()
	return fmt.Sprintf("[%.6f,%.6f,%.6f,%.6f]", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}
