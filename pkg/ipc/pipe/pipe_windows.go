//go:build windows

package pipe

import (
	"context"
	"net"
	"strings"
	"time"

	npipe "gopkg.in/natefinch/npipe.v2"
)

const pipePrefix = `\\.\pipe\`

// pipeName maps a plain name onto the local named pipe namespace.
func pipeName(path string) string {
	if strings.HasPrefix(path, `\\`) {
		return path
	}
	return pipePrefix + strings.TrimLeft(path, `\/`)
}

func listen(path string) (net.Listener, error) {
	return npipe.Listen(pipeName(path))
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	timeout := DefaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
	}
	return npipe.DialTimeout(pipeName(path), timeout)
}
