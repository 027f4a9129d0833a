package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePersistence is a single-project in-memory server.
type fakePersistence struct {
	doc    Document
	exists bool
	saves  int
}

func (f *fakePersistence) LoadGraph(_ context.Context, _ string) (Document, error) {
	if !f.exists {
		return Document{}, ErrNotFound
	}
	return f.doc, nil
}

func (f *fakePersistence) SaveGraph(_ context.Context, projectID string, doc Document, base int64) (int64, error) {
	if base != f.doc.Version {
		return 0, &ConflictError{ProjectID: projectID, BaseVersion: base, ServerVersion: f.doc.Version}
	}
	return f.write(doc), nil
}

func (f *fakePersistence) ForceSave(_ context.Context, _ string, doc Document) (int64, error) {
	return f.write(doc), nil
}

func (f *fakePersistence) write(doc Document) int64 {
	doc.Version = f.doc.Version + 1
	f.doc = doc
	f.exists = true
	f.saves++
	return doc.Version
}

type rejectAll struct{}

func (rejectAll) ValidateNodes([]Node) error { return errors.New("unknown skill") }

func TestLoadFromServer_NotFoundLoadsEmpty(t *testing.T) {
	s := NewStore(WithPersistence(&fakePersistence{}, "p1"))
	require.NoError(t, s.AddNode(node("a")))

	require.NoError(t, s.LoadFromServer(context.Background()))

	assert.Empty(t, s.Nodes())
	assert.Equal(t, int64(0), s.Version())
}

func TestLoadFromServer_ReplacesGraphAndHistory(t *testing.T) {
	p := &fakePersistence{exists: true, doc: Document{
		Nodes:    []Node{node("a"), node("b")},
		Edges:    []Edge{{ID: "e1", Source: "a", Target: "b", SourceHandle: "out", TargetHandle: "in"}},
		Viewport: Viewport{Zoom: 2},
		Version:  7,
	}}
	l := &recordingListener{}
	s := NewStore(WithPersistence(p, "p1"), WithListener(l))
	s.PushHistory()

	require.NoError(t, s.LoadFromServer(context.Background()))

	assert.Equal(t, []string{"a", "b"}, nodeIDs(s))
	assert.Equal(t, int64(7), s.Version())
	assert.Equal(t, 2.0, s.Viewport().Zoom)
	assert.False(t, s.CanUndo())
	assert.Len(t, l.lastEdges(), 1)
}

func TestLoadFromServer_ValidatorRejects(t *testing.T) {
	p := &fakePersistence{exists: true, doc: Document{Nodes: []Node{node("a")}, Version: 1}}
	s := NewStore(WithPersistence(p, "p1"), WithValidator(rejectAll{}))
	require.NoError(t, s.AddNode(node("keep")))

	err := s.LoadFromServer(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"keep"}, nodeIDs(s))
}

func TestSaveToServer_AdvancesVersion(t *testing.T) {
	p := &fakePersistence{}
	s := NewStore(WithPersistence(p, "p1"))
	require.NoError(t, s.AddNode(node("a")))

	require.NoError(t, s.SaveToServer(context.Background()))
	assert.Equal(t, int64(1), s.Version())

	require.NoError(t, s.SaveToServer(context.Background()))
	assert.Equal(t, int64(2), s.Version())
	assert.Len(t, p.doc.Nodes, 1)
}

func TestSaveToServer_ConflictDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	p := &fakePersistence{exists: true, doc: Document{Nodes: []Node{node("server")}, Version: 3}}
	s := NewStore(WithPersistence(p, "p1"))
	require.NoError(t, s.LoadFromServer(ctx))

	// Another client saves first.
	_, err := p.ForceSave(ctx, "p1", Document{Nodes: []Node{node("other")}})
	require.NoError(t, err)
	require.NoError(t, s.AddNode(node("mine")))

	err = s.SaveToServer(ctx)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(4), conflict.ServerVersion)
	assert.Equal(t, int64(3), conflict.BaseVersion)
	assert.Equal(t, "other", p.doc.Nodes[0].ID)
	assert.Equal(t, int64(3), s.Version())

	require.NoError(t, s.ForceSave(ctx))
	assert.Equal(t, int64(5), s.Version())
	assert.Equal(t, []string{"server", "mine"}, []string{p.doc.Nodes[0].ID, p.doc.Nodes[1].ID})
}

func TestPersistence_NotConfigured(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	assert.ErrorIs(t, s.LoadFromServer(ctx), ErrNoPersistence)
	assert.ErrorIs(t, s.SaveToServer(ctx), ErrNoPersistence)
	assert.ErrorIs(t, s.ForceSave(ctx), ErrNoPersistence)
}
