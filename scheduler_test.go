package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchedulerOpenDefaultsUnderRoot(t *testing.T) {
	sc := NewScheduler(10, 100)

	h := sc.Open(1)
	require.Equal(t, uint32(1), sc.StreamID(h))
	require.Equal(t, sc.root, sc.nodes[h].parent)
	require.Equal(t, defaultWeight, sc.nodes[h].weight)
}

func TestSchedulerNextSenderOnlyActive(t *testing.T) {
	sc := NewScheduler(10, 100)

	a := sc.Open(1)
	b := sc.Open(3)

	require.Equal(t, nilHandle, sc.NextSender())

	sc.Activate(a)
	require.Equal(t, a, sc.NextSender())

	sc.Activate(b)
	first := sc.NextSender()
	require.True(t, first == a || first == b)

	sc.Deactivate(a)
	sc.Deactivate(b)
	require.Equal(t, nilHandle, sc.NextSender())
}

func TestSchedulerWeightedRoundRobinFavorsHeavier(t *testing.T) {
	sc := NewScheduler(10, 100)

	heavy := sc.Open(1)
	sc.Reprioritize(heavy, 0, 200, false)
	light := sc.Open(3)
	sc.Reprioritize(light, 0, 10, false)

	sc.Activate(heavy)
	sc.Activate(light)

	counts := map[nodeHandle]int{}
	for i := 0; i < 100; i++ {
		h := sc.NextSender()
		require.NotEqual(t, nilHandle, h)
		counts[h]++
	}

	require.Greater(t, counts[heavy], counts[light])
}

func TestSchedulerReprioritizeExclusiveReparentsSiblings(t *testing.T) {
	sc := NewScheduler(10, 100)

	a := sc.Open(1)
	b := sc.Open(3)
	require.Equal(t, sc.root, sc.nodes[a].parent)
	require.Equal(t, sc.root, sc.nodes[b].parent)

	c := sc.Open(5)
	sc.Reprioritize(c, 0, defaultWeight, true)

	require.Equal(t, c, sc.nodes[a].parent)
	require.Equal(t, c, sc.nodes[b].parent)
	require.Equal(t, sc.root, sc.nodes[c].parent)
}

func TestSchedulerReprioritizeAvoidsCycle(t *testing.T) {
	sc := NewScheduler(10, 100)

	a := sc.Open(1)
	b := sc.Open(3)
	sc.Reprioritize(b, 1, defaultWeight, false) // b now depends on a

	// a depends on b: b is a's descendant, so the reparent must relocate b
	// out from under a first instead of forming a cycle.
	sc.Reprioritize(a, 3, defaultWeight, false)

	require.False(t, sc.isDescendant(a, sc.nodes[a].parent))
	require.Equal(t, b, sc.nodes[a].parent)
}

func TestSchedulerCloseEvictsOldestRingEntry(t *testing.T) {
	sc := NewScheduler(2, 100)

	h1 := sc.Open(1)
	sc.Close(h1)

	h2 := sc.Open(3)
	sc.Close(h2)

	h3 := sc.Open(5)
	sc.Close(h3)

	// ring capacity 2: stream 1 should have been evicted, 3 and 5 remain
	// addressable by a later PRIORITY referencing them.
	_, stillTracked1 := sc.byStream[1]
	_, stillTracked3 := sc.byStream[3]
	_, stillTracked5 := sc.byStream[5]
	require.False(t, stillTracked1)
	require.True(t, stillTracked3)
	require.True(t, stillTracked5)
}

func TestSchedulerObservePlacementClearsChromiumFlag(t *testing.T) {
	sc := NewScheduler(10, 100)
	require.True(t, sc.IsChromiumTree())

	sc.ObservePlacement(true, 10, 20)
	require.True(t, sc.IsChromiumTree())

	sc.ObservePlacement(false, 10, 20)
	require.False(t, sc.IsChromiumTree())
}

func TestSchedulerCanTrackForPriorityBound(t *testing.T) {
	sc := NewScheduler(1, 1)

	h := sc.Open(1)
	require.True(t, sc.CanTrackForPriority())
	sc.Close(h)
	require.False(t, sc.CanTrackForPriority())
}

func TestSchedulerPriorityOnlyPlaceholderIsTrackedAndPromotable(t *testing.T) {
	sc := NewScheduler(10, 100)

	h := sc.OpenForPriorityOnly(3)
	require.Equal(t, 1, sc.trackedForPriority)
	_, ok := sc.byStream[3]
	require.True(t, ok)

	// HEADERS later arrives for the same id: the placeholder is promoted
	// instead of leaking a duplicate node.
	promoted := sc.Open(3)
	require.Equal(t, h, promoted)
	require.Equal(t, 0, sc.trackedForPriority)
	require.False(t, sc.nodes[promoted].priorityOnly)
}

func TestSchedulerPriorityOnlyPlaceholdersRecycleThroughRing(t *testing.T) {
	sc := NewScheduler(2, 100)

	sc.OpenForPriorityOnly(1)
	sc.OpenForPriorityOnly(3)
	sc.OpenForPriorityOnly(5)

	_, tracked1 := sc.byStream[1]
	_, tracked3 := sc.byStream[3]
	_, tracked5 := sc.byStream[5]
	require.False(t, tracked1)
	require.True(t, tracked3)
	require.True(t, tracked5)
	require.Equal(t, 2, sc.trackedForPriority)
}
