package execlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	l := New(Config{})

	evt := l.Append(Event{RunID: "r1", NodeID: "a", Action: ActionStart})

	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.Equal(t, []Event{evt}, l.Events())
}

func TestAppend_EvictsOldest(t *testing.T) {
	l := New(Config{Capacity: 2})

	l.Append(Event{NodeID: "a"})
	l.Append(Event{NodeID: "b"})
	l.Append(Event{NodeID: "c"})

	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].NodeID)
	assert.Equal(t, "c", events[1].NodeID)
}

func TestForRunAndForNode(t *testing.T) {
	l := New(Config{})
	l.Append(Event{RunID: "r1", NodeID: "a", Action: ActionStart})
	l.Append(Event{RunID: "r1", NodeID: "a", Action: ActionComplete})
	l.Append(Event{RunID: "r2", NodeID: "a", Action: ActionStart})
	l.Append(Event{RunID: "r2", NodeID: "b", Action: ActionSkip})

	assert.Len(t, l.ForRun("r1"), 2)
	assert.Len(t, l.ForNode("a"), 3)
	assert.Empty(t, l.ForRun("missing"))
}

func TestSubscribe_ReceivesInOrder(t *testing.T) {
	l := New(Config{})
	sub := l.Subscribe()
	defer sub.Unsubscribe()

	l.Append(Event{NodeID: "a", Action: ActionStart})
	l.Append(Event{NodeID: "a", Action: ActionComplete})

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, ActionStart, first.Action)
	assert.Equal(t, ActionComplete, second.Action)
}

func TestSubscribe_FiltersActions(t *testing.T) {
	l := New(Config{})
	sub := l.Subscribe(ActionError)

	l.Append(Event{NodeID: "a", Action: ActionStart})
	l.Append(Event{NodeID: "a", Action: ActionError, Message: "boom"})
	sub.Unsubscribe()

	var got []Event
	for evt := range sub.Events() {
		got = append(got, evt)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Message)
}

func TestSubscribe_DropsWhenFull(t *testing.T) {
	var mu sync.Mutex
	var dropped []string
	l := New(Config{BufferSize: 1, OnDrop: func(evt Event, id string) {
		mu.Lock()
		defer mu.Unlock()
		dropped = append(dropped, evt.NodeID)
	}})
	sub := l.Subscribe()

	l.Append(Event{NodeID: "a"})
	l.Append(Event{NodeID: "b"})

	assert.Equal(t, []string{"b"}, dropped)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "a", (<-sub.Events()).NodeID)
}

func TestUnsubscribe_Twice(t *testing.T) {
	l := New(Config{})
	sub := l.Subscribe()
	sub.Unsubscribe()
	assert.NotPanics(t, sub.Unsubscribe)
	l.Append(Event{NodeID: "a"})
}

func TestClose(t *testing.T) {
	l := New(Config{})
	sub := l.Subscribe()

	l.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Nil(t, l.Subscribe())
	assert.NotPanics(t, sub.Unsubscribe)

	l.Append(Event{NodeID: "late"})
	assert.Empty(t, l.ForNode("late"))
}

func TestAppend_CopiesData(t *testing.T) {
	l := New(Config{})
	data := map[string]any{"k": 1}
	l.Append(Event{NodeID: "a", Data: data})
	data["k"] = 2

	assert.Equal(t, 1, l.Events()[0].Data["k"])
}

func TestClear(t *testing.T) {
	l := New(Config{})
	l.Append(Event{NodeID: "a"})
	l.Clear()
	assert.Equal(t, 0, l.Len())
}
