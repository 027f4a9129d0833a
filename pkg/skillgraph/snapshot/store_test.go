package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

func chainEdges() []graph.Edge {
	return []graph.Edge{
		{ID: "e1", Source: "a", SourceHandle: "out", Target: "b", TargetHandle: "in"},
		{ID: "e2", Source: "b", SourceHandle: "out", Target: "c", TargetHandle: "in"},
	}
}

func TestPublish_VersionsIncrease(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return fixed }))

	s1 := s.Publish("a", "out", "first")
	s2 := s.Publish("a", "out", "second")
	other := s.Publish("a", "mask", "m")

	assert.Equal(t, int64(1), s1.Version)
	assert.Equal(t, int64(2), s2.Version)
	assert.Equal(t, int64(1), other.Version)
	assert.Equal(t, fixed, s2.CreatedAt)

	active, ok := s.GetActiveSnapshot("a", "out")
	require.True(t, ok)
	assert.Equal(t, "second", active.Payload)
	assert.Len(t, s.History("a", "out"), 2)
}

func TestGetActiveSnapshot_Missing(t *testing.T) {
	s := NewStore()
	_, ok := s.GetActiveSnapshot("a", "out")
	assert.False(t, ok)
	assert.Nil(t, s.History("a", "out"))
}

func TestResetSnapshots_KeepsCounter(t *testing.T) {
	s := NewStore()
	s.Publish("a", "out", 1)
	s.Publish("a", "out", 2)

	s.ResetSnapshots("a", "out", false)

	_, ok := s.GetActiveSnapshot("a", "out")
	assert.False(t, ok)
	assert.Len(t, s.History("a", "out"), 2)

	next := s.Publish("a", "out", 3)
	assert.Equal(t, int64(3), next.Version)
}

func TestResetSnapshots_AllPortsAndHistory(t *testing.T) {
	s := NewStore()
	s.Publish("a", "out", 1)
	s.Publish("a", "mask", 1)
	s.Publish("b", "out", 1)

	s.ResetSnapshots("a", "", true)

	assert.Empty(t, s.ActiveSnapshots("a"))
	assert.Empty(t, s.History("a", "out"))
	assert.Empty(t, s.History("a", "mask"))
	_, ok := s.GetActiveSnapshot("b", "out")
	assert.True(t, ok)
}

func TestActiveSnapshots_OrderedByPort(t *testing.T) {
	s := NewStore()
	s.Publish("a", "z", 1)
	s.Publish("a", "b", 1)

	snaps := s.ActiveSnapshots("a")
	require.Len(t, snaps, 2)
	assert.Equal(t, "b", snaps[0].PortKey)
	assert.Equal(t, "z", snaps[1].PortKey)
}

func TestRebuildSubscriptions(t *testing.T) {
	s := NewStore()
	s.RebuildSubscriptions(chainEdges())

	assert.Equal(t, []Subscription{{ConsumerID: "b", ConsumerPort: "in", ProducerID: "a", ProducerPort: "out"}}, s.Inbound("b"))
	assert.Equal(t, []Subscription{{ConsumerID: "c", ConsumerPort: "in", ProducerID: "b", ProducerPort: "out"}}, s.Outbound("b"))
	assert.Empty(t, s.Inbound("a"))

	s.RebuildSubscriptions(nil)
	assert.Empty(t, s.Inbound("b"))
}

func TestGetStaleState(t *testing.T) {
	s := NewStore()
	s.RebuildSubscriptions(chainEdges())

	// No inputs.
	assert.Equal(t, StateFresh, s.GetStaleState("a"))
	// Producer never ran.
	assert.Equal(t, StateBlocked, s.GetStaleState("b"))

	s.Publish("a", "out", "v1")
	// Never consumed.
	assert.Equal(t, StateStale, s.GetStaleState("b"))

	s.RecordConsumption("b", []Consumption{{Port: "in", ProducerID: "a", ProducerPort: "out", Version: 1}})
	assert.Equal(t, StateFresh, s.GetStaleState("b"))

	s.Publish("a", "out", "v2")
	assert.Equal(t, StateStale, s.GetStaleState("b"))

	s.ResetSnapshots("a", "out", false)
	assert.Equal(t, StateBlocked, s.GetStaleState("b"))
}

func TestGetStaleState_ProducerChanged(t *testing.T) {
	s := NewStore()
	s.Publish("a", "out", 1)
	s.Publish("x", "out", 1)
	s.RecordConsumption("b", []Consumption{{Port: "in", ProducerID: "a", ProducerPort: "out", Version: 1}})

	s.RebuildSubscriptions([]graph.Edge{{ID: "e", Source: "x", SourceHandle: "out", Target: "b", TargetHandle: "in"}})

	assert.Equal(t, StateStale, s.GetStaleState("b"))
}

func TestGetStaleState_BlockedWinsOverStale(t *testing.T) {
	s := NewStore()
	s.RebuildSubscriptions([]graph.Edge{
		{ID: "e1", Source: "a", SourceHandle: "out", Target: "c", TargetHandle: "left"},
		{ID: "e2", Source: "b", SourceHandle: "out", Target: "c", TargetHandle: "right"},
	})
	s.Publish("a", "out", 1)

	assert.Equal(t, StateBlocked, s.GetStaleState("c"))
}

func TestLastConsumed(t *testing.T) {
	s := NewStore()
	s.RecordConsumption("c", []Consumption{
		{Port: "right", ProducerID: "b", ProducerPort: "out", Version: 4},
		{Port: "left", ProducerID: "a", ProducerPort: "out", Version: 2},
	})

	got := s.LastConsumed("c")
	require.Len(t, got, 2)
	assert.Equal(t, "left", got[0].Port)
	assert.Equal(t, "right", got[1].Port)

	s.RecordConsumption("c", nil)
	assert.Empty(t, s.LastConsumed("c"))
}

func TestListener_FollowsGraphStore(t *testing.T) {
	s := NewStore()
	g := graph.NewStore(graph.WithListener(s))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddNode(graph.Node{ID: id, Type: "gen"}))
	}
	for _, e := range chainEdges() {
		require.NoError(t, g.AddEdge(e))
	}
	require.Len(t, s.Inbound("c"), 1)

	s.Publish("b", "out", 1)
	s.RecordConsumption("b", []Consumption{{Port: "in", ProducerID: "a", ProducerPort: "out", Version: 1}})

	g.RemoveNode("b")

	assert.Empty(t, s.Inbound("c"))
	assert.Empty(t, s.ActiveSnapshots("b"))
	assert.Empty(t, s.LastConsumed("b"))

	// The counter is dropped with the node.
	assert.Equal(t, int64(1), s.Publish("b", "out", 1).Version)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	s.RebuildSubscriptions(chainEdges())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.GetStaleState("b")
				_, _ = s.GetActiveSnapshot("a", "out")
				_ = s.Inbound("c")
			}
		}()
	}
	for j := 0; j < 200; j++ {
		s.Publish("a", "out", j)
		if j%50 == 0 {
			s.RebuildSubscriptions(chainEdges())
		}
	}
	wg.Wait()

	snap, ok := s.GetActiveSnapshot("a", "out")
	require.True(t, ok)
	assert.Equal(t, int64(200), snap.Version)
}
