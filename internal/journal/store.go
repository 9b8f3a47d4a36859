package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one archived record.
type Entry struct {
	ID           int64
	RunID        string
	Identifier   string
	ArtifactPath string
	SHA256       string
	Bytes        int64
	Documents    int
	CreatedAt    time.Time
}

// Store is the SQLite-backed journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the journal at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends e. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (
            run_id, identifier, artifact_path, artifact_sha256, artifact_bytes, documents, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID,
		e.Identifier,
		e.ArtifactPath,
		nullableString(e.SHA256),
		e.Bytes,
		e.Documents,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns
// every entry.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, run_id, identifier, artifact_path, artifact_sha256, artifact_bytes, documents, created_at
        FROM entries ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// ForIdentifier returns every entry recorded for identifier, newest first.
func (s *Store) ForIdentifier(ctx context.Context, identifier string) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, run_id, identifier, artifact_path, artifact_sha256, artifact_bytes, documents, created_at
        FROM entries WHERE identifier = ? ORDER BY id DESC`,
		identifier,
	)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			sha     sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Identifier, &e.ArtifactPath, &sha, &e.Bytes, &e.Documents, &created); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.SHA256 = sha.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
