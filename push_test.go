package http2

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRememberPushEvictsAtCapacity(t *testing.T) {
	sc := &Conn{pushMemo: make(map[string]struct{})}

	for i := 0; i < maxPushMemoEntries; i++ {
		sc.rememberPush(fmt.Sprintf("k%d", i))
	}
	require.Len(t, sc.pushMemo, maxPushMemoEntries)

	sc.rememberPush("one-more")
	require.Len(t, sc.pushMemo, maxPushMemoEntries)
	_, ok := sc.pushMemo["one-more"]
	require.True(t, ok)
}

func TestPushPathNoopWhenPushDisabled(t *testing.T) {
	sc := &Conn{pushMemo: make(map[string]struct{})}
	sc.peerSettings.DisablePush = true

	src := AcquireStream(1)
	err := sc.PushPath(src, "/style.css", false)
	require.NoError(t, err)
	require.Empty(t, sc.pushMemo)
}
