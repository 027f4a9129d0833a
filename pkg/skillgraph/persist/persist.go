// Package persist provides graph.Persistence backends: in-memory, SQLite
// and Redis. All backends implement the same optimistic concurrency rule:
// a save succeeds only when its base version equals the stored version
// (0 for a project that was never saved), and every successful save
// advances the version by one.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/config"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

// Store is a graph persistence backend.
// Implementations must be safe for concurrent use.
type Store interface {
	graph.Persistence

	// ListProjects returns every stored project, ordered by ID.
	ListProjects(ctx context.Context) ([]ProjectInfo, error)

	// DeleteProject removes a project. Returns nil if it does not exist.
	DeleteProject(ctx context.Context, projectID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// ProjectInfo provides metadata without loading the document.
type ProjectInfo struct {
	ID        string
	Version   int64
	UpdatedAt time.Time
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("persistence store closed")

// Open builds the backend selected by settings.
func Open(ctx context.Context, s config.PersistenceSettings) (Store, error) {
	switch s.Backend {
	case "", config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, s.SQLitePath)
	case config.BackendRedis:
		return NewRedisStoreFromURL(ctx, s.RedisURL, s.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", s.Backend)
	}
}

// payload is the stored form of a document. The version lives beside it so
// backends can compare it without decoding.
type payload struct {
	Nodes    []graph.Node   `json:"nodes"`
	Edges    []graph.Edge   `json:"edges"`
	Viewport graph.Viewport `json:"viewport"`
}

func encode(doc graph.Document) ([]byte, error) {
	data, err := json.Marshal(payload{Nodes: doc.Nodes, Edges: doc.Edges, Viewport: doc.Viewport})
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decode(data []byte, version int64) (graph.Document, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return graph.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return graph.Document{Nodes: p.Nodes, Edges: p.Edges, Viewport: p.Viewport, Version: version}, nil
}

func notFound(projectID string) error {
	return fmt.Errorf("%w: %s", graph.ErrNotFound, projectID)
}

func conflict(projectID string, base, server int64) error {
	return &graph.ConflictError{ProjectID: projectID, BaseVersion: base, ServerVersion: server}
}
