package driver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	defer unregisterAll()

	d := NewTCPDriver("nssock", 8080, "http")
	require.NoError(t, Register(d))

	got, ok := Lookup("nssock")
	require.True(t, ok)
	assert.Equal(t, "nssock", got.Name())
	assert.Equal(t, 8080, got.DefaultPort())
	assert.Equal(t, "http", got.Protocol())
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	defer unregisterAll()

	require.NoError(t, Register(NewTCPDriver("dup", 80, "http")))
	err := Register(NewTCPDriver("dup", 81, "http"))
	assert.Error(t, err)
}

func TestSockSendRecv(t *testing.T) {
	d := NewTCPDriver("t", 0, "http")
	ln, err := d.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptedCh := make(chan *Sock, 1)
	go func() {
		s, aerr := ln.Accept()
		require.NoError(t, aerr)
		acceptedCh <- s
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	sock := <-acceptedCh
	defer sock.Close()

	buf := make([]byte, 4)
	n, err := sock.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	n, err = sock.Send([]byte("pong"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Nil(t, sock.LastSendError())
}

func TestKeepSetsFlag(t *testing.T) {
	d := NewTCPDriver("t", 0, "http")
	ln, err := d.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, _ := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		if conn != nil {
			defer conn.Close()
		}
	}()

	sock, err := ln.Accept()
	require.NoError(t, err)
	defer sock.Close()

	require.NoError(t, sock.Keep(true))
	assert.NotZero(t, sock.Flags()&FlagKeepalive)
}
