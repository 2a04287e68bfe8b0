// Package metadata persists panorama records in a SQLite database and
// exports them as GeoJSON.
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	_ "modernc.org/sqlite" // SQLite driver

	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/metadata/migrations"
	"streetviewdl/pkg/panorama"
)

// Panorama is one stored panorama row
type Panorama struct {
	ID        string    `json:"pano_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Date      string    `json:"date,omitempty"`
	Copyright string    `json:"copyright,omitempty"`
	Headings  []float64 `json:"headings"`
	Images    []string  `json:"images"`
	Origins   int       `json:"origins"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromRecord converts a registry record and its stored image paths
func FromRecord(rec panorama.Record, images []string, runID string) Panorama {
	return Panorama{
		ID:        rec.ID,
		Lat:       rec.Lat(),
		Lon:       rec.Lon(),
		Date:      rec.Date,
		Copyright: rec.Copyright,
		Headings:  append([]float64(nil), rec.Headings...),
		Images:    append([]string(nil), images...),
		Origins:   len(rec.Origins),
		RunID:     runID,
	}
}

// Store is the SQLite metadata database
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("metadata database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Download workers write concurrently; serialise them on one connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// Put inserts or replaces a panorama row. A row without images keeps the
// image paths already recorded for the panorama.
func (s *Store) Put(ctx context.Context, p Panorama) error {
	headings, err := json.Marshal(nonNil(p.Headings))
	if err != nil {
		return fmt.Errorf("marshalling headings: %w", err)
	}
	images, err := json.Marshal(nonNilStrings(p.Images))
	if err != nil {
		return fmt.Errorf("marshalling images: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO panoramas (pano_id, lat, lon, capture_date, copyright, headings, images, origins, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pano_id) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			capture_date = excluded.capture_date,
			copyright = excluded.copyright,
			headings = excluded.headings,
			images = CASE WHEN excluded.images = '[]' THEN panoramas.images ELSE excluded.images END,
			origins = excluded.origins,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`, p.ID, p.Lat, p.Lon, p.Date, p.Copyright, string(headings), string(images), p.Origins, p.RunID,
		p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &errs.Error{Type: errs.ErrorTypeStorage, Message: fmt.Sprintf("saving panorama %s: %v", p.ID, err)}
	}
	return nil
}

const selectColumns = `SELECT pano_id, lat, lon, capture_date, copyright, headings, images, origins, run_id, updated_at FROM panoramas`

type scanner interface {
	Scan(dest ...any) error
}

func scanPanorama(row scanner) (Panorama, error) {
	var p Panorama
	var headings, images, updated string
	if err := row.Scan(&p.ID, &p.Lat, &p.Lon, &p.Date, &p.Copyright, &headings, &images, &p.Origins, &p.RunID, &updated); err != nil {
		return Panorama{}, err
	}
	if err := json.Unmarshal([]byte(headings), &p.Headings); err != nil {
		return Panorama{}, fmt.Errorf("decoding headings of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return Panorama{}, fmt.Errorf("decoding images of %s: %w", p.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Panorama{}, fmt.Errorf("decoding updated_at of %s: %w", p.ID, err)
	}
	p.UpdatedAt = t
	return p, nil
}

// Get returns the row for id or an error matching errs.ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (*Panorama, error) {
	p, err := scanPanorama(s.db.QueryRowContext(ctx, selectColumns+` WHERE pano_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("panorama %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading panorama %s: %w", id, err)
	}
	return &p, nil
}

// List returns every row ordered by id
func (s *Store) List(ctx context.Context) ([]Panorama, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY pano_id`)
	if err != nil {
		return nil, fmt.Errorf("listing panoramas: %w", err)
	}
	defer rows.Close()

	var out []Panorama
	for rows.Next() {
		p, err := scanPanorama(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of stored panoramas
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM panoramas`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting panoramas: %w", err)
	}
	return n, nil
}

// FeatureCollection renders panoramas as GeoJSON points
func FeatureCollection(panos []Panorama) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range panos {
		f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
		f.ID = p.ID
		f.Properties["pano_id"] = p.ID
		f.Properties["date"] = p.Date
		f.Properties["copyright"] = p.Copyright
		f.Properties["headings"] = nonNil(p.Headings)
		f.Properties["images"] = nonNilStrings(p.Images)
		f.Properties["origins"] = p.Origins
		fc.Append(f)
	}
	return fc
}

// ExportGeoJSON writes every stored panorama to path as a FeatureCollection
func (s *Store) ExportGeoJSON(ctx context.Context, path string) (int, error) {
	panos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	data, err := json.MarshalIndent(FeatureCollection(panos), "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding geojson: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(panos), nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
