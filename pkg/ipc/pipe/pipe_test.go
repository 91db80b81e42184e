//go:build !windows

package pipe

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func socketPath() string {
	return filepath.Join(os.TempDir(), "pipecall-"+uuid.NewString()[:8], "test.sock")
}

func TestListenDial(t *testing.T) {
	path := socketPath()
	defer os.RemoveAll(filepath.Dir(path))

	l, err := Listen(path)
	require.NoError(t, err)
	defer l.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	accepted := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		io.ReadFull(conn, buf)
		accepted <- buf
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	conn, err := Dial(ctx, path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, []byte("hello"), <-accepted)
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := socketPath()
	defer os.RemoveAll(filepath.Dir(path))

	// leave the socket file behind as a crashed server would
	stale, err := Listen(path)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	info, err := os.Lstat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&os.ModeSocket)

	l, err := Listen(path)
	require.NoError(t, err)
	l.Close()
}

func TestListenKeepsRegularFile(t *testing.T) {
	path := socketPath()
	defer os.RemoveAll(filepath.Dir(path))

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0751))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0600))

	_, err := Listen(path)
	assert.Error(t, err)

	bs, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), bs)
}

func TestDialMissing(t *testing.T) {
	_, err := Dial(context.Background(), socketPath())
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	p, err := Expand("~/sock")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sock"), p)

	p, err = Expand("/tmp/sock")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/sock", p)
}
