package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamRegistryOpenGetDelete(t *testing.T) {
	r := NewStreamRegistry()
	s := AcquireStream(1)

	r.Open(s)
	require.Equal(t, 1, r.Len())
	require.Same(t, s, r.Get(1))
	require.Equal(t, 1, r.OpenPull())
	require.Equal(t, uint32(1), r.MaxOpenPull())

	r.Delete(s)
	require.Equal(t, 0, r.Len())
	require.Nil(t, r.Get(1))
	require.Equal(t, 0, r.OpenPull())
}

func TestStreamRegistryIsIdleTracksWatermarkPerDirection(t *testing.T) {
	r := NewStreamRegistry()

	require.True(t, r.IsIdle(1))
	require.True(t, r.IsIdle(2))

	r.Open(AcquireStream(1))
	require.False(t, r.IsIdle(1))
	require.True(t, r.IsIdle(3))
	require.True(t, r.IsIdle(2)) // push watermark is independent of pull

	r.Open(AcquireStream(2))
	require.False(t, r.IsIdle(2))
	require.True(t, r.IsIdle(4))
}

func TestStreamRegistryPendingFIFO(t *testing.T) {
	r := NewStreamRegistry()
	a := AcquireStream(1)
	b := AcquireStream(3)

	r.EnqueuePending(a)
	r.EnqueuePending(b)
	require.Equal(t, 2, r.PendingLen())
	require.Same(t, a, r.PeekPending())

	require.Same(t, a, r.DequeuePending())
	require.Equal(t, 1, r.PendingLen())
	require.Same(t, b, r.DequeuePending())
	require.Nil(t, r.DequeuePending())
}

func TestStreamRegistryRemovePending(t *testing.T) {
	r := NewStreamRegistry()
	a := AcquireStream(1)
	b := AcquireStream(3)
	r.EnqueuePending(a)
	r.EnqueuePending(b)

	r.RemovePending(a)
	require.Equal(t, 1, r.PendingLen())
	require.Same(t, b, r.PeekPending())
}

func TestStreamRegistryMarkProcessedAdvancesWatermarkOnly(t *testing.T) {
	r := NewStreamRegistry()
	r.MarkProcessed(5)
	require.Equal(t, uint32(5), r.MaxProcessedPull())

	r.MarkProcessed(3)
	require.Equal(t, uint32(5), r.MaxProcessedPull())
}

func TestStreamRegistryTunnelAndStreamingCounters(t *testing.T) {
	r := NewStreamRegistry()
	s := AcquireStream(1)
	r.Open(s)

	r.MarkTunnel(s)
	require.Equal(t, 1, r.Tunnels())
	r.MarkTunnel(s) // idempotent
	require.Equal(t, 1, r.Tunnels())

	r.IncStreaming()
	require.Equal(t, 1, r.Streaming())
	r.DecStreaming()
	require.Equal(t, 0, r.Streaming())
}
