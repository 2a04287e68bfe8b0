package network

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Load picks the loader from the file extension: .pbf for OSM extracts,
// .geojson or .json for line collections.
func Load(ctx context.Context, path string, opts LoadOptions) (*Network, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pbf":
		return LoadPBF(ctx, path, opts)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read network: %w", err)
		}
		net, err := ParseGeoJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return net, nil
	default:
		return nil, fmt.Errorf("unsupported extract format %q", ext)
	}
}

// ParseGeoJSON reads a FeatureCollection of LineString or MultiLineString
// features. Way ids come from the "osm_id" or "id" property, falling back to
// the feature index.
func ParseGeoJSON(data []byte) (*Network, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid feature collection: %w", err)
	}

	crs := "EPSG:4326"
	if raw, ok := fc.ExtraMembers["crs"]; ok {
		crs = crsName(raw, crs)
	}

	var ways []Way
	for i, f := range fc.Features {
		id := int64(i + 1)
		if v, ok := numberProp(f.Properties, "osm_id"); ok {
			id = v
		} else if v, ok := numberProp(f.Properties, "id"); ok {
			id = v
		}
		part := 0
		if v, ok := numberProp(f.Properties, "part"); ok {
			part = int(v)
		}
		class := stringProp(f.Properties, "highway")
		name := stringProp(f.Properties, "name")

		switch g := f.Geometry.(type) {
		case orb.LineString:
			ways = append(ways, Way{ID: id, Part: part, Class: class, Name: name, Line: g})
		case orb.MultiLineString:
			for j, ls := range g {
				ways = append(ways, Way{ID: id, Part: part + j, Class: class, Name: name, Line: ls})
			}
		}
	}

	return &Network{Ways: ways, CRS: crs}, nil
}

// FeatureCollection converts the network for export
func (n *Network) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, w := range n.Ways {
		f := geojson.NewFeature(w.Line)
		f.Properties["osm_id"] = w.ID
		f.Properties["part"] = w.Part
		f.Properties["highway"] = w.Class
		if w.Name != "" {
			f.Properties["name"] = w.Name
		}
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON exports the network to path
func (n *Network) WriteGeoJSON(path string) error {
	data, err := json.Marshal(n.FeatureCollection())
	if err != nil {
		return fmt.Errorf("failed to encode network: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write network: %w", err)
	}
	return nil
}

func numberProp(p geojson.Properties, key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		return int64(v), true
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

func stringProp(p geojson.Properties, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

func crsName(raw interface{}, fallback string) string {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return fallback
	}
	props, ok := m["properties"].(map[string]interface{})
	if !ok {
		return fallback
	}
	name, ok := props["name"].(string)
	if !ok || name == "" {
		return fallback
	}
	upper := strings.ToUpper(name)
	if strings.Contains(upper, "CRS84") {
		return "EPSG:4326"
	}
	if i := strings.LastIndex(upper, "EPSG::"); i >= 0 {
		return "EPSG:" + upper[i+len("EPSG::"):]
	}
	return upper
}
