package overlay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS overlays (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	stream_key TEXT NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS overlays_stream_key ON overlays (stream_key, seq);
`

// SQLiteStore keeps each overlay as a JSON document in a single table; the
// autoincrement column carries creation order.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path in WAL mode.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	// One connection keeps read-modify-write updates serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// List implements Store.List.
func (s *SQLiteStore) List(ctx context.Context, streamKey string) ([]Overlay, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if streamKey == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT doc FROM overlays ORDER BY seq`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT doc FROM overlays WHERE stream_key = ? ORDER BY seq`, streamKey)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	out := []Overlay{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		var o Overlay
		if err := json.Unmarshal(doc, &o); err != nil {
			return nil, fmt.Errorf("sqlite: decode: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Insert implements Store.Insert.
func (s *SQLiteStore) Insert(ctx context.Context, o Overlay) (Overlay, error) {
	o.ID = uuid.NewString()
	doc, err := json.Marshal(o)
	if err != nil {
		return Overlay{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO overlays (id, stream_key, doc) VALUES (?, ?, ?)`, o.ID, o.StreamKey, doc); err != nil {
		return Overlay{}, fmt.Errorf("sqlite: insert: %w", err)
	}
	return o, nil
}

// Update implements Store.Update.
func (s *SQLiteStore) Update(ctx context.Context, id string, p Patch) (Overlay, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Overlay{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var doc []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM overlays WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Overlay{}, ErrNotFound
	}
	if err != nil {
		return Overlay{}, fmt.Errorf("sqlite: load: %w", err)
	}

	var o Overlay
	if err := json.Unmarshal(doc, &o); err != nil {
		return Overlay{}, fmt.Errorf("sqlite: decode: %w", err)
	}
	p.Apply(&o)
	if doc, err = json.Marshal(o); err != nil {
		return Overlay{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE overlays SET stream_key = ?, doc = ? WHERE id = ?`, o.StreamKey, doc, id); err != nil {
		return Overlay{}, fmt.Errorf("sqlite: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Overlay{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return o, nil
}

// Delete implements Store.Delete.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM overlays WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	return nil
}

// Close implements Store.Close.
func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
