package network

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

// LoadOptions controls which ways are read from an extract
type LoadOptions struct {
	// Bound, when set, drops ways whose bounding box misses it
	Bound *orb.Bound
	// Classes restricts the highway classes loaded; empty means DefaultClasses
	Classes map[string]bool
	// Procs is the decoder parallelism; 0 means GOMAXPROCS
	Procs int
}

// DefaultClasses are the highway values that can carry Street View coverage
var DefaultClasses = map[string]bool{
	"motorway": true, "motorway_link": true,
	"trunk": true, "trunk_link": true,
	"primary": true, "primary_link": true,
	"secondary": true, "secondary_link": true,
	"tertiary": true, "tertiary_link": true,
	"unclassified": true, "residential": true,
	"living_street": true, "service": true,
	"road": true,
}

// LoadPBF reads an OSM PBF extract from disk
func LoadPBF(ctx context.Context, path string, opts LoadOptions) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open extract: %w", err)
	}
	defer f.Close()

	net, err := ReadPBF(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return net, nil
}

type wayRef struct {
	id    osm.WayID
	class string
	name  string
	nodes []osm.NodeID
}

// ReadPBF decodes ways in two passes: highway ways and the node ids they
// reference first, then only those node coordinates. The reader must be
// seekable for the second pass.
func ReadPBF(ctx context.Context, r io.ReadSeeker, opts LoadOptions) (*Network, error) {
	classes := opts.Classes
	if len(classes) == 0 {
		classes = DefaultClasses
	}
	procs := opts.Procs
	if procs <= 0 {
		procs = runtime.GOMAXPROCS(0)
	}

	var refs []wayRef
	needed := make(map[osm.NodeID]orb.Point)

	ways := osmpbf.New(ctx, r, procs)
	ways.SkipNodes = true
	ways.SkipRelations = true
	for ways.Scan() {
		w, ok := ways.Object().(*osm.Way)
		if !ok {
			continue
		}
		class := w.Tags.Find("highway")
		if !classes[class] || len(w.Nodes) < 2 {
			continue
		}
		ids := w.Nodes.NodeIDs()
		for _, id := range ids {
			needed[id] = orb.Point{}
		}
		refs = append(refs, wayRef{id: w.ID, class: class, name: w.Tags.Find("name"), nodes: ids})
	}
	scanErr := ways.Err()
	ways.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("failed to scan ways: %w", scanErr)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind extract: %w", err)
	}

	found := make(map[osm.NodeID]bool, len(needed))
	nodes := osmpbf.New(ctx, r, procs)
	nodes.SkipWays = true
	nodes.SkipRelations = true
	for nodes.Scan() {
		n, ok := nodes.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, want := needed[n.ID]; want {
			needed[n.ID] = orb.Point{n.Lon, n.Lat}
			found[n.ID] = true
		}
	}
	scanErr = nodes.Err()
	nodes.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("failed to scan nodes: %w", scanErr)
	}

	out := make([]Way, 0, len(refs))
	for _, ref := range refs {
		line := make(orb.LineString, 0, len(ref.nodes))
		for _, id := range ref.nodes {
			// nodes missing from a cut extract are skipped
			if found[id] {
				line = append(line, needed[id])
			}
		}
		if len(line) < 2 {
			continue
		}
		if opts.Bound != nil && !opts.Bound.Intersects(line.Bound()) {
			continue
		}
		out = append(out, Way{ID: int64(ref.id), Class: ref.class, Name: ref.name, Line: line})
	}

	return New(out), nil
}
