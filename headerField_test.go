package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderFieldIsPseudo(t *testing.T) {
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	hf.SetKey(":path")
	require.True(t, hf.IsPseudo())

	hf.SetKey("content-type")
	require.False(t, hf.IsPseudo())
}

func TestHeaderFieldResetClearsState(t *testing.T) {
	hf := AcquireHeaderField()
	hf.Set("x", "y")
	require.False(t, hf.Empty())

	ReleaseHeaderField(hf)

	hf2 := AcquireHeaderField()
	require.True(t, hf2.Empty())
}

func TestHeaderFieldCopyTo(t *testing.T) {
	a := AcquireHeaderField()
	defer ReleaseHeaderField(a)
	a.Set("user-agent", "curl/8")

	b := AcquireHeaderField()
	defer ReleaseHeaderField(b)
	a.CopyTo(b)

	require.Equal(t, "user-agent", b.Key())
	require.Equal(t, "curl/8", b.Value())
}
