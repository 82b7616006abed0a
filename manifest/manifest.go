// Package manifest records which artifact files belong to which
// sequence entry, keyed by the input file name and entry index rather
// than by positions parsed out of file names.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/thavlik/foldy-array/artifact"
)

// Entry maps one sequence entry to its artifacts.
type Entry struct {
	ID            string
	Source        string
	FileIndex     int
	Entry         int
	StructurePath string
	ScorePath     string
	CreatedAt     time.Time
}

// Manifest is a SQLite-backed artifact index shared by every task.
type Manifest struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	file_index INTEGER NOT NULL,
	entry_index INTEGER NOT NULL,
	structure_path TEXT NOT NULL DEFAULT '',
	score_path TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE (source, entry_index)
)`

// Open opens or creates the manifest at path.
func Open(path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	// Array tasks write concurrently. Immediate transactions take the
	// write lock up front so the busy timeout always applies.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(30000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Manifest{db: db}, nil
}

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// Put records e, replacing the paths of an existing entry with the
// same source and entry index. The stored ID is written back to e.
func (m *Manifest) Put(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	id := uuid.New().String()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO artifacts (id, source, file_index, entry_index, structure_path, score_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, entry_index) DO UPDATE SET
			file_index = excluded.file_index,
			structure_path = excluded.structure_path,
			score_path = excluded.score_path,
			created_at = excluded.created_at
		RETURNING id`,
		id, e.Source, e.FileIndex, e.Entry, e.StructurePath, e.ScorePath,
		e.CreatedAt.Format(time.RFC3339),
	)
	if err := row.Scan(&e.ID); err != nil {
		return fmt.Errorf("put %s/%d: %w", e.Source, e.Entry, err)
	}
	return tx.Commit()
}

// Entries returns every entry of source ordered by entry index, or
// every entry when source is empty.
func (m *Manifest) Entries(ctx context.Context, source string) ([]*Entry, error) {
	query := `SELECT id, source, file_index, entry_index, structure_path, score_path, created_at
		FROM artifacts`
	var args []interface{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY source, entry_index`
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var created string
		if err := rows.Scan(&e.ID, &e.Source, &e.FileIndex, &e.Entry, &e.StructurePath, &e.ScorePath, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Select returns the artifacts recorded for the first n entries of
// source, indexed by entry. Entries with no record are gaps in the
// selection and records outside [0, n) are ignored.
func (m *Manifest) Select(ctx context.Context, _ int, source string, n int) (artifact.Selection, error) {
	if n <= 0 {
		return artifact.Selection{}, nil
	}
	entries, err := m.Entries(ctx, source)
	if err != nil {
		return artifact.Selection{}, err
	}
	sel := artifact.Selection{
		Structures: make([]string, n),
		Scores:     make([]string, n),
	}
	for _, e := range entries {
		if e.Entry < 0 || e.Entry >= n {
			log.Warnf("manifest: %s entry %d is out of range for %d sequences", source, e.Entry, n)
			continue
		}
		sel.Structures[e.Entry] = e.StructurePath
		sel.Scores[e.Entry] = e.ScorePath
	}
	return sel, nil
}
