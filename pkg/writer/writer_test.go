package writer

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/navispace/navid/pkg/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeSocks() (*driver.Sock, net.Conn) {
	server, client := net.Pipe()
	return driver.NewSock(server, nil), client
}

func TestWriteInlinePlain(t *testing.T) {
	sock, client := pipeSocks()
	defer client.Close()
	s := NewStream(sock, false, 0)

	done := make(chan struct{})
	go func() {
		n, err := s.WriteInline([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		close(done)
	}()

	buf := make([]byte, 5)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	<-done
}

func TestWriteInlineChunked(t *testing.T) {
	sock, client := pipeSocks()
	defer client.Close()
	s := NewStream(sock, true, 0)

	go s.WriteInline([]byte("abc"))

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "3\r\n", line)

	body := make([]byte, 3)
	_, err = io.ReadFull(r, body)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}

func TestWriteChunkEnforcesBackpressure(t *testing.T) {
	sock, client := pipeSocks()
	defer client.Close()
	s := NewStream(sock, false, 4)

	require.NoError(t, s.WriteChunk([]byte("1234")))
	err := s.WriteChunk([]byte("5"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestAsyncWriterDrainsQueuedStream(t *testing.T) {
	sock, client := pipeSocks()
	defer client.Close()
	s := NewStream(sock, false, 0)
	require.NoError(t, s.WriteChunk([]byte("payload")))

	aw := NewAsyncWriter(2, 8)
	defer aw.Stop(time.Second)

	ok := aw.Enqueue(s)
	require.True(t, ok)

	buf := make([]byte, len("payload"))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
}

func TestCloseChunkedSendsTerminatorAndSetsFlag(t *testing.T) {
	sock, client := pipeSocks()
	defer client.Close()
	s := NewStream(sock, true, 0)

	done := make(chan struct{})
	go func() {
		require.NoError(t, s.CloseChunked())
		close(done)
	}()

	buf := make([]byte, len("0\r\n\r\n"))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "0\r\n\r\n", string(buf))
	<-done

	assert.NotZero(t, s.Flags()&FlagSentLastChunk)
}
