package graph

import (
	"context"
	"errors"
	"fmt"
)

// Persistence loads and saves graph documents.
// Implementations must be safe for concurrent use.
type Persistence interface {
	// LoadGraph returns the stored document.
	// Returns ErrNotFound if the project has never been saved.
	LoadGraph(ctx context.Context, projectID string) (Document, error)

	// SaveGraph stores doc if baseVersion equals the stored version
	// (0 for a project that does not exist yet) and returns the new version.
	// Returns *ConflictError carrying the stored version otherwise.
	SaveGraph(ctx context.Context, projectID string, doc Document, baseVersion int64) (int64, error)

	// ForceSave stores doc regardless of the stored version.
	ForceSave(ctx context.Context, projectID string, doc Document) (int64, error)
}

// LoadFromServer replaces the graph with the stored document and adopts its
// version as the base for the next save. A project that was never saved
// loads as an empty graph at version 0.
func (s *Store) LoadFromServer(ctx context.Context) error {
	if s.persistence == nil {
		return ErrNoPersistence
	}

	doc, err := s.persistence.LoadGraph(ctx, s.projectID)
	if errors.Is(err, ErrNotFound) {
		doc = Document{}
	} else if err != nil {
		return fmt.Errorf("load project %s: %w", s.projectID, err)
	}

	if s.validator != nil {
		if err := s.validator.ValidateNodes(doc.Nodes); err != nil {
			return fmt.Errorf("load project %s: %w", s.projectID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replaceLocked(doc.Nodes, doc.Edges); err != nil {
		return fmt.Errorf("load project %s: %w", s.projectID, err)
	}
	s.viewport = doc.Viewport
	s.version = doc.Version
	s.history.reset()
	return nil
}

// SaveToServer saves the graph using the version of the last load or save as
// base. On conflict the local version is not advanced and the returned
// *ConflictError carries the server version.
func (s *Store) SaveToServer(ctx context.Context) error {
	return s.save(ctx, false)
}

// ForceSave saves the graph without the version check.
func (s *Store) ForceSave(ctx context.Context) error {
	return s.save(ctx, true)
}

func (s *Store) save(ctx context.Context, force bool) error {
	if s.persistence == nil {
		return ErrNoPersistence
	}

	s.mu.RLock()
	doc := Document{
		Nodes:    cloneNodes(s.nodes),
		Edges:    cloneEdges(s.edges),
		Viewport: s.viewport,
		Version:  s.version,
	}
	s.mu.RUnlock()

	var (
		version int64
		err     error
	)
	if force {
		version, err = s.persistence.ForceSave(ctx, s.projectID, doc)
	} else {
		version, err = s.persistence.SaveGraph(ctx, s.projectID, doc, doc.Version)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.version = version
	s.mu.Unlock()
	return nil
}
