package http2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigFillDefaultsLeavesExplicitValues(t *testing.T) {
	cfg := Config{
		IdleTimeout:          30 * time.Second,
		MaxConcurrentStreams: 10,
	}
	cfg.fillDefaults()

	require.Equal(t, 30*time.Second, cfg.IdleTimeout)
	require.Equal(t, uint32(10), cfg.MaxConcurrentStreams)

	d := DefaultConfig()
	require.Equal(t, d.GracefulShutdownTimeout, cfg.GracefulShutdownTimeout)
	require.Equal(t, d.StreamWindowSize, cfg.StreamWindowSize)
	require.Equal(t, d.ClosedStreamRingSize, cfg.ClosedStreamRingSize)
}

func TestDefaultConfigIsSelfConsistent(t *testing.T) {
	d := DefaultConfig()
	require.Greater(t, d.IdleTimeout, time.Duration(0))
	require.Greater(t, d.MaxConcurrentStreams, uint32(0))
	require.Greater(t, d.StreamWindowSize, int32(0))
}
