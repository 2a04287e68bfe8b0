// Package panorama holds the per-run panorama table.
package panorama

import (
	"math"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"

	"streetviewdl/pkg/sample"
)

// Record is one unique panorama found during a run
type Record struct {
	ID       string
	Location orb.Point
	// Date is the capture month as "YYYY-MM", empty when unknown
	Date      string
	Copyright string
	// Headings are the road bearings, in whole degrees, of the sample points
	// that resolved to this panorama. They are the front-facing views.
	Headings []float64
	// Origins are the sample points that resolved to this panorama
	Origins []sample.Point
}

// FrontHeading returns the first front-facing heading, or 0
func (r Record) FrontHeading() float64 {
	if len(r.Headings) == 0 {
		return 0
	}
	return r.Headings[0]
}

// Lat returns the resolved latitude
func (r Record) Lat() float64 { return r.Location[1] }

// Lon returns the resolved longitude
func (r Record) Lon() float64 { return r.Location[0] }

func (r *Record) addOrigin(p sample.Point) {
	r.Origins = append(r.Origins, p)

	h := math.Mod(math.Round(p.Bearing), 360)
	i := sort.SearchFloat64s(r.Headings, h)
	if i < len(r.Headings) && r.Headings[i] == h {
		return
	}
	r.Headings = append(r.Headings, 0)
	copy(r.Headings[i+1:], r.Headings[i:])
	r.Headings[i] = h
}

func (r *Record) clone() Record {
	c := *r
	c.Headings = append([]float64(nil), r.Headings...)
	c.Origins = append([]sample.Point(nil), r.Origins...)
	return c
}

const stripes = 32

type stripe struct {
	mu      sync.Mutex
	records map[string]*Record
}

// Registry maps panorama ids to records. All writes go through Upsert, which
// is an atomic insert-if-absent per id. Safe for concurrent use.
type Registry struct {
	stripes [stripes]stripe
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.stripes {
		r.stripes[i].records = make(map[string]*Record)
	}
	return r
}

func (r *Registry) stripeFor(id string) *stripe {
	return &r.stripes[xxhash.Sum64String(id)%stripes]
}

// Upsert stores rec under rec.ID if no record exists yet and records origin
// against whichever record is stored. Only the first caller's location, date
// and copyright are kept. It reports whether a new record was created.
func (r *Registry) Upsert(rec Record, origin sample.Point) bool {
	s := r.stripeFor(rec.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		stored := Record{
			ID:        rec.ID,
			Location:  rec.Location,
			Date:      rec.Date,
			Copyright: rec.Copyright,
		}
		for _, o := range rec.Origins {
			stored.addOrigin(o)
		}
		existing = &stored
		s.records[rec.ID] = existing
	}
	existing.addOrigin(origin)
	return !ok
}

// Get returns a copy of the record for id
func (r *Registry) Get(id string) (Record, bool) {
	s := r.stripeFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Len returns the number of unique panoramas
func (r *Registry) Len() int {
	n := 0
	for i := range r.stripes {
		s := &r.stripes[i]
		s.mu.Lock()
		n += len(s.records)
		s.mu.Unlock()
	}
	return n
}

// Records returns copies of all records sorted by id
func (r *Registry) Records() []Record {
	var out []Record
	for i := range r.stripes {
		s := &r.stripes[i]
		s.mu.Lock()
		for _, rec := range s.records {
			out = append(out, rec.clone())
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
