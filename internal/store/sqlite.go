package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cleanflow/api/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS properties (
	property_id TEXT PRIMARY KEY,
	doc         TEXT    NOT NULL,
	version     INTEGER NOT NULL,
	created_at  TEXT    NOT NULL,
	updated_at  TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_properties_created_at ON properties(created_at);
`

// SQLiteStore keeps property documents in a single table and uses the
// version column as a compare-and-swap guard.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, propertyID string) (*model.Property, error) {
	p, _, err := s.load(ctx, propertyID)
	return p, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]*model.Property, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM properties ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := []*model.Property{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		p, err := decodeProperty([]byte(raw))
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(props)
	return props, nil
}

func (s *SQLiteStore) Create(ctx context.Context, p *model.Property) (*model.Property, error) {
	doc, err := prepareNew(p)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal property: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (property_id, doc, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(property_id) DO NOTHING`,
		doc.PropertyID, string(data), doc.Version,
		doc.CreatedAt.Format(time.RFC3339Nano), doc.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, model.Duplicatef("propertyId %s", doc.PropertyID)
	}
	return doc, nil
}

func (s *SQLiteStore) SetActive(ctx context.Context, propertyID string, active bool, ts time.Time) (*model.Property, error) {
	res, err := s.update(ctx, propertyID, setActive(active, ts))
	if err != nil {
		return nil, err
	}
	return res.Property, nil
}

func (s *SQLiteStore) ApplyMutation(ctx context.Context, propertyID string, m model.Mutation) (*Result, error) {
	return s.update(ctx, propertyID, mutate(m))
}

func (s *SQLiteStore) Assign(ctx context.Context, propertyID, assignee string, ts time.Time) (*model.Property, error) {
	res, err := s.update(ctx, propertyID, assign(assignee, ts))
	if err != nil {
		return nil, err
	}
	return res.Property, nil
}

func (s *SQLiteStore) update(ctx context.Context, propertyID string, fn updateFunc) (*Result, error) {
	for attempt := 0; ; attempt++ {
		doc, version, err := s.load(ctx, propertyID)
		if err != nil {
			return nil, err
		}

		changed, err := fn(doc)
		if err != nil {
			return nil, err
		}
		if !changed {
			return &Result{Property: doc, Stale: true}, nil
		}

		doc.Version = version + 1
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal property: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE properties SET doc = ?, version = ?, updated_at = ?
			WHERE property_id = ? AND version = ?`,
			string(data), doc.Version, doc.UpdatedAt.Format(time.RFC3339Nano), propertyID, version,
		)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			return &Result{Property: doc}, nil
		}
		if err := backoff(ctx, attempt); err != nil {
			return nil, fmt.Errorf("%w: property %s: %w", model.ErrConflict, propertyID, err)
		}
	}
}

func (s *SQLiteStore) load(ctx context.Context, propertyID string) (*model.Property, int64, error) {
	var raw string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM properties WHERE property_id = ?`, propertyID,
	).Scan(&raw, &version)
	if err == sql.ErrNoRows {
		return nil, 0, model.NotFoundf("property %s", propertyID)
	}
	if err != nil {
		return nil, 0, err
	}
	p, err := decodeProperty([]byte(raw))
	if err != nil {
		return nil, 0, err
	}
	return p, version, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
