// Package pipe opens the OS endpoint a client and server talk over: a unix
// domain socket on POSIX systems and a named pipe on Windows.
package pipe

import (
	"context"
	"net"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

const DefaultDialTimeout = 2 * time.Second

// Expand resolves a leading "~" to the current user's home directory.
func Expand(path string) (string, error) {
	return homedir.Expand(path)
}

// Listen creates the endpoint at path and returns a listener for it.
func Listen(path string) (net.Listener, error) {
	p, err := Expand(path)
	if err != nil {
		return nil, err
	}
	return listen(p)
}

// Dial connects to the endpoint at path. Without a context deadline the dial
// gives up after DefaultDialTimeout.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	p, err := Expand(path)
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}
	return dial(ctx, p)
}
