// Package websocket carries the pipe byte stream over websocket binary
// messages, for peers that cannot share a local pipe.
package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const Path = "/ipc"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Conn exposes a websocket connection as a net.Conn. Each Write becomes one
// binary message; reads run across message boundaries like a plain stream.
type Conn struct {
	ws      *websocket.Conn
	readMu  sync.Mutex
	reader  io.Reader
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws: ws,
	}
}

func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame before closing the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(time.Second)
	err := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)

	closeErr := c.ws.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return closeErr
}

func (c *Conn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

// Listener accepts websocket upgrades on Path.
type Listener struct {
	listener net.Listener
	server   *http.Server
	connCh   chan net.Conn
	mu       *sync.Mutex
	closed   bool
}

// Listen serves websocket upgrades on addr, a "host:port" pair.
func Listen(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	t := &Listener{
		listener: l,
		connCh:   make(chan net.Conn, 16),
		mu:       &sync.Mutex{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, t.handleWebSocket)
	t.server = &http.Server{
		Handler: mux,
	}

	go t.server.Serve(l)

	return t, nil
}

func (t *Listener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		ws.Close()
		return
	}
	select {
	case t.connCh <- newConn(ws):
	default:
		ws.Close()
	}
}

func (t *Listener) Accept() (net.Conn, error) {
	conn, ok := <-t.connCh
	if !ok {
		return nil, net.ErrClosed
	}
	return conn, nil
}

func (t *Listener) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.connCh)

	return t.server.Close()
}

func (t *Listener) Addr() net.Addr {
	return t.listener.Addr()
}

// Dial connects to a Listener. target is either a ws:// or wss:// URL or a
// bare "host:port".
func Dial(ctx context.Context, target string) (net.Conn, error) {
	u := target
	if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		u = (&url.URL{Scheme: "ws", Host: target, Path: Path}).String()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}
