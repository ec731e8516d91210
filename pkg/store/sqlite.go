package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"tourguide/pkg/db"
	"tourguide/pkg/model"
)

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	POIStore
	ClipStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- POI ---

const poiColumns = `id, name, lat, lon, audio_ref, duration_s, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPOI(row scanner) (*model.POI, error) {
	var p model.POI
	var name, audioRef sql.NullString
	var updated any
	if err := row.Scan(&p.ID, &name, &p.Lat, &p.Lon, &audioRef, &p.DurationSeconds, &updated); err != nil {
		return nil, err
	}
	p.Name = name.String
	p.AudioRef = audioRef.String
	p.UpdatedAt = parseTimestamp(updated)
	return &p, nil
}

func (s *SQLiteStore) GetPOI(ctx context.Context, id string) (*model.POI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM poi WHERE id = ?`, id)
	p, err := scanPOI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	return p, err
}

func (s *SQLiteStore) SavePOI(ctx context.Context, p *model.POI) error {
	return savePOI(ctx, s.db, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func savePOI(ctx context.Context, ex execer, p *model.POI) error {
	if p.ID == "" {
		return errors.New("poi without id")
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT OR REPLACE INTO poi (`+poiColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Lat, p.Lon, p.AudioRef, p.DurationSeconds, updated.UTC().Format("2006-01-02 15:04:05"))
	return err
}

// SavePOIs upserts all POIs in one transaction.
func (s *SQLiteStore) SavePOIs(ctx context.Context, pois []*model.POI) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i, p := range pois {
		if err := savePOI(ctx, tx, p); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("poi %d (%s): %w", i, p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeletePOI(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM poi WHERE id = ?", id)
	return err
}

// POIsInBounds returns every POI inside b, ordered by ID.
func (s *SQLiteStore) POIsInBounds(ctx context.Context, b orb.Bound) ([]*model.POI, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+poiColumns+` FROM poi
		 WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		 ORDER BY id`,
		b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pois []*model.POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, err
		}
		pois = append(pois, p)
	}
	return pois, rows.Err()
}

func (s *SQLiteStore) CountPOIs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM poi").Scan(&n)
	return n, err
}

// --- Clip cache ---

func (s *SQLiteStore) GetClip(ctx context.Context, key string) (*ClipRecord, bool) {
	var rec ClipRecord
	var created any
	err := s.db.QueryRowContext(ctx,
		"SELECT key, url, path, size, created_at FROM clip_cache WHERE key = ?", key).
		Scan(&rec.Key, &rec.URL, &rec.Path, &rec.Size, &created)
	if err != nil {
		// Errors other than ErrNoRows are treated as a miss; the clip is fetched again.
		return nil, false
	}
	rec.CreatedAt = parseTimestamp(created)
	return &rec, true
}

// parseTimestamp accepts what the driver hands back for a DATETIME column:
// a time.Time when it recognised the text, the raw text otherwise.
func parseTimestamp(v any) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func (s *SQLiteStore) SaveClip(ctx context.Context, rec *ClipRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO clip_cache (key, url, path, size, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Key, rec.URL, rec.Path, rec.Size, created.UTC().Format("2006-01-02 15:04:05"))
	return err
}

func (s *SQLiteStore) DeleteClip(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM clip_cache WHERE key = ?", key)
	return err
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
