// Package network holds the road network model and its loaders.
package network

import (
	"github.com/paulmach/orb"
)

// Way is one road line. A way cut by clipping keeps its ID and gets
// consecutive Part numbers, one per stretch inside the area.
type Way struct {
	ID    int64
	Part  int
	Class string
	Name  string
	Line  orb.LineString
}

// Key identifies a way part within a network
type Key struct {
	ID   int64
	Part int
}

// Key returns the way's identity
func (w Way) Key() Key {
	return Key{ID: w.ID, Part: w.Part}
}

// Bound returns the bounding box of the way geometry
func (w Way) Bound() orb.Bound {
	return w.Line.Bound()
}

// Network is a read-only collection of road ways in one CRS
type Network struct {
	Ways []Way
	CRS  string
}

// New creates a WGS84 network
func New(ways []Way) *Network {
	return &Network{Ways: ways, CRS: "EPSG:4326"}
}

// Len returns the number of ways
func (n *Network) Len() int {
	return len(n.Ways)
}

// Bound returns the bounding box of all ways
func (n *Network) Bound() orb.Bound {
	if len(n.Ways) == 0 {
		return orb.Bound{}
	}
	b := n.Ways[0].Bound()
	for _, w := range n.Ways[1:] {
		b = b.Union(w.Bound())
	}
	return b
}

// Classes counts ways per road class
func (n *Network) Classes() map[string]int {
	counts := make(map[string]int)
	for _, w := range n.Ways {
		counts[w.Class]++
	}
	return counts
}
