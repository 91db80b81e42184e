package ipc

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Socket adapts a connected stream to the asynchronous operation contract.
//
// Reads always fill the whole buffer, accumulating however many chunks the
// stream delivers. Only one read runs at a time. Each Write is written out
// under a lock so frames from concurrent callers never interleave.
type Socket struct {
	conn      net.Conn
	connected atomic.Bool
	readMu    sync.Mutex
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewSocket(conn net.Conn) *Socket {
	s := &Socket{
		conn: conn,
	}
	s.connected.Store(true)
	return s
}

func (s *Socket) IsConnected() bool {
	return s.connected.Load()
}

func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		err = s.conn.Close()
	})
	return err
}

// Read starts an asynchronous read of exactly len(buf) bytes. A nil op
// allocates a new operation. The returned status is StatusPending unless the
// read could not be started.
//
// Cancelling a read unblocks it through the read deadline and leaves the
// stream position undefined, so the socket should be closed afterwards.
func (s *Socket) Read(buf []byte, op *Operation, cb CompletionFunc) (*Operation, Status) {
	if op == nil {
		op = NewOperation()
	}
	if !s.IsConnected() {
		return op, StatusDisconnected
	}
	if err := op.arm(cb); err != nil {
		return op, StatusError
	}
	op.setCancel(func() {
		s.conn.SetReadDeadline(time.Now())
	})

	go func() {
		n, status, err := s.readFull(buf)
		op.finish(status, n, err)
	}()

	return op, StatusPending
}

// ReadBlocking reads exactly len(buf) bytes on the calling goroutine.
func (s *Socket) ReadBlocking(buf []byte) (int, Status) {
	if !s.IsConnected() {
		return 0, StatusDisconnected
	}
	n, status, _ := s.readFull(buf)
	return n, status
}

func (s *Socket) readFull(buf []byte) (int, Status, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	// clear any deadline left behind by a cancelled read
	s.conn.SetReadDeadline(time.Time{})

	n, err := io.ReadFull(s.conn, buf)
	return n, s.classify(err), err
}

// Write starts an asynchronous write of buf. The buffer must not be modified
// until the operation completes.
func (s *Socket) Write(buf []byte, op *Operation, cb CompletionFunc) (*Operation, Status) {
	if op == nil {
		op = NewOperation()
	}
	if !s.IsConnected() {
		return op, StatusDisconnected
	}
	if err := op.arm(cb); err != nil {
		return op, StatusError
	}

	go func() {
		s.writeMu.Lock()
		n, err := s.conn.Write(buf)
		s.writeMu.Unlock()
		op.finish(s.classify(err), n, err)
	}()

	return op, StatusPending
}

func (s *Socket) classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, os.ErrDeadlineExceeded):
		return StatusTimedOut
	case isDisconnect(err):
		s.connected.Store(false)
		return StatusDisconnected
	}
	return StatusError
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// Acceptor turns a listener into asynchronous accept operations.
type Acceptor struct {
	listener net.Listener
}

func NewAcceptor(listener net.Listener) *Acceptor {
	return &Acceptor{
		listener: listener,
	}
}

// AcceptOp completes with StatusConnected once a peer has connected.
type AcceptOp struct {
	*Operation
	socket *Socket
}

// Socket is the accepted connection, valid after a StatusConnected result.
func (op *AcceptOp) Socket() *Socket {
	return op.socket
}

// Accept starts waiting for the next connection. Closing the acceptor
// completes any pending accept with StatusDisconnected.
func (a *Acceptor) Accept(cb CompletionFunc) (*AcceptOp, Status) {
	op := &AcceptOp{
		Operation: NewOperation(),
	}
	if err := op.arm(cb); err != nil {
		return op, StatusError
	}

	go func() {
		conn, err := a.listener.Accept()
		if err != nil {
			status := StatusError
			if isDisconnect(err) {
				status = StatusDisconnected
			}
			op.finish(status, 0, err)
			return
		}
		op.socket = NewSocket(conn)
		if !op.finish(StatusConnected, 0, nil) {
			// cancelled while accepting
			op.socket.Close()
		}
	}()

	return op, StatusPending
}

func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

func (a *Acceptor) Close() error {
	return a.listener.Close()
}
