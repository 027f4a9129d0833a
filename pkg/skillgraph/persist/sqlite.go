package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

// SQLiteStore persists projects to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for tests.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("database dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			project_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// LoadGraph implements graph.Persistence.
func (s *SQLiteStore) LoadGraph(ctx context.Context, projectID string) (graph.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return graph.Document{}, ErrStoreClosed
	}

	var (
		version int64
		data    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, data FROM projects WHERE project_id = ?
	`, projectID).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Document{}, notFound(projectID)
	}
	if err != nil {
		return graph.Document{}, fmt.Errorf("load project: %w", err)
	}
	return decode(data, version)
}

// SaveGraph implements graph.Persistence. The version check and the write
// are a single conditional statement.
func (s *SQLiteStore) SaveGraph(ctx context.Context, projectID string, doc graph.Document, baseVersion int64) (int64, error) {
	data, err := encode(doc)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var res sql.Result
	if baseVersion == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO projects (project_id, version, updated_at, data)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(project_id) DO NOTHING
		`, projectID, now, data)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE projects SET version = version + 1, updated_at = ?, data = ?
			WHERE project_id = ? AND version = ?
		`, now, data, projectID, baseVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("save project: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save project: %w", err)
	}
	if n == 0 {
		current, err := s.versionLocked(ctx, projectID)
		if err != nil {
			return 0, err
		}
		return 0, conflict(projectID, baseVersion, current)
	}
	return baseVersion + 1, nil
}

// ForceSave implements graph.Persistence.
func (s *SQLiteStore) ForceSave(ctx context.Context, projectID string, doc graph.Document) (int64, error) {
	data, err := encode(doc)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var version int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO projects (project_id, version, updated_at, data)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			version = projects.version + 1,
			updated_at = excluded.updated_at,
			data = excluded.data
		RETURNING version
	`, projectID, time.Now().UTC().Format(time.RFC3339Nano), data).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("force save project: %w", err)
	}
	return version, nil
}

// versionLocked returns the stored version, 0 if the project does not exist.
func (s *SQLiteStore) versionLocked(ctx context.Context, projectID string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT version FROM projects WHERE project_id = ?
	`, projectID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return version, nil
}

// ListProjects implements Store.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, version, updated_at FROM projects ORDER BY project_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var infos []ProjectInfo
	for rows.Next() {
		var (
			info      ProjectInfo
			updatedAt string
		)
		if err := rows.Scan(&info.ID, &info.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return infos, nil
}

// DeleteProject implements Store.
func (s *SQLiteStore) DeleteProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
