package http2

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamingBodyReadBlocksUntilPush(t *testing.T) {
	b := newStreamingBody()

	done := make(chan struct{})
	var got []byte
	var err error
	go func() {
		buf := make([]byte, 16)
		var n int
		n, err = b.Read(buf)
		got = append(got, buf[:n]...)
		close(done)
	}()

	b.push([]byte("hello"))
	<-done

	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestStreamingBodyReadReturnsErrorAfterDrain(t *testing.T) {
	b := newStreamingBody()
	b.push([]byte("ab"))
	b.closeWithError(io.EOF)

	buf := make([]byte, 16)
	n, err := b.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ab", string(buf[:n]))

	_, err = b.Read(buf)
	require.Equal(t, io.EOF, err)
}
