package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kbirk/pipecall/pkg/ipc/pipe"
	"github.com/kbirk/pipecall/pkg/log"
	"github.com/kbirk/pipecall/pkg/serialize"
)

type ListenFunc func(path string) (net.Listener, error)

// ConnectHandler decides whether a new client may stay connected.
type ConnectHandler func(clientID int64) bool
type DisconnectHandler func(clientID int64)

// MessageHandler sees every call payload before it is dispatched.
type MessageHandler func(clientID int64, payload []byte)

type ServerConfig struct {
	// Listen defaults to pipe.Listen.
	Listen       ListenFunc
	ErrHandler   func(error)
	Logger       log.Logger
	MaxFrameSize uint32
}

type Server struct {
	conf        ServerConfig
	collections map[string]*Collection
	middleware  []Middleware
	handler     Handler

	mu           *sync.Mutex
	running      bool
	path         string
	acceptor     *Acceptor
	sessions     map[int64]*session
	clientID     int64
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	onConnect    ConnectHandler
	onDisconnect DisconnectHandler
	onMessage    MessageHandler
}

func NewServer(conf ServerConfig) *Server {
	if conf.Listen == nil {
		conf.Listen = pipe.Listen
	}
	if conf.MaxFrameSize == 0 {
		conf.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Server{
		conf:        conf,
		collections: make(map[string]*Collection),
		sessions:    make(map[int64]*session),
		mu:          &sync.Mutex{},
	}
}

func (s *Server) handleError(err error) {
	s.logError("Encountered error: " + err.Error())
	if s.conf.ErrHandler != nil {
		s.conf.ErrHandler(err)
	}
}

func (s *Server) logDebug(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Debug(msg)
	}
}

func (s *Server) logInfo(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Info(msg)
	}
}

func (s *Server) logWarn(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Warn(msg)
	}
}

func (s *Server) logError(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Error(msg)
	}
}

// RegisterCollection adds a collection. Collections can only be registered
// before Initialize; the registry is read without locking while serving.
func (s *Server) RegisterCollection(c *Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerRunning
	}
	if _, ok := s.collections[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCollection, c.Name())
	}
	s.collections[c.Name()] = c
	return nil
}

// Use appends a middleware. It has no effect once the server is initialized.
func (s *Server) Use(m Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logWarn("Ignoring middleware registered after Initialize")
		return
	}
	s.middleware = append(s.middleware, m)
}

func (s *Server) SetConnectHandler(h ConnectHandler) {
	s.mu.Lock()
	s.onConnect = h
	s.mu.Unlock()
}

func (s *Server) SetDisconnectHandler(h DisconnectHandler) {
	s.mu.Lock()
	s.onDisconnect = h
	s.mu.Unlock()
}

func (s *Server) SetMessageHandler(h MessageHandler) {
	s.mu.Lock()
	s.onMessage = h
	s.mu.Unlock()
}

// Initialize creates the endpoint at path and starts accepting clients.
func (s *Server) Initialize(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerRunning
	}

	l, err := s.conf.Listen(path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	s.path = path
	s.acceptor = NewAcceptor(l)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.handler = buildHandlerFunction(s.middleware, s.invoke)
	s.running = true

	s.wg.Add(1)
	go s.watcher()

	s.logInfo("Listening on " + path)
	return nil
}

// Finalize stops accepting clients, disconnects every session and waits for
// them to finish. Function handlers see their context cancelled.
func (s *Server) Finalize() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrServerNotRunning
	}
	s.running = false
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	s.cancel()
	err := s.acceptor.Close()
	for _, sess := range sessions {
		sess.socket.Close()
	}
	s.wg.Wait()

	s.logInfo("Stopped listening on " + s.path)
	return err
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr is the address the server listens on, or nil before Initialize.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

// ClientCount is the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

const maxAcceptDelay = time.Second

func (s *Server) watcher() {
	defer s.wg.Done()

	var delay time.Duration
	for {
		op, status := s.acceptor.Accept(nil)
		if status != StatusPending {
			s.handleError(fmt.Errorf("failed to start accept: %s", status))
			return
		}
		<-op.Done()

		status, _ = op.Result()
		if status == StatusConnected {
			delay = 0
			s.spawnClient(op.Socket())
			continue
		}
		if !s.isRunning() || status == StatusDisconnected {
			return
		}
		s.handleError(fmt.Errorf("accept failed: %w", op.Err()))

		// back off on persistent errors such as running out of descriptors
		if delay == 0 {
			delay = 5 * time.Millisecond
		} else {
			delay *= 2
		}
		if delay > maxAcceptDelay {
			delay = maxAcceptDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Server) spawnClient(socket *Socket) {
	s.mu.Lock()
	s.clientID++
	id := s.clientID
	onConnect := s.onConnect
	s.mu.Unlock()

	if onConnect != nil && !onConnect(id) {
		s.logInfo(fmt.Sprintf("Connect handler rejected client %d", id))
		socket.Close()
		return
	}

	sess := &session{
		server: s,
		id:     id,
		socket: socket,
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		socket.Close()
		return
	}
	s.sessions[id] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.logDebug(fmt.Sprintf("Client %d connected", id))
	go sess.serve(s.ctx)
}

func (s *Server) killClient(id int64) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	onDisconnect := s.onDisconnect
	s.mu.Unlock()

	if !ok {
		return
	}
	sess.socket.Close()
	s.logDebug(fmt.Sprintf("Client %d disconnected", id))
	if onDisconnect != nil {
		onDisconnect(id)
	}
}

func (s *Server) messageHandler() MessageHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onMessage
}

// Dispatch resolves and runs a call on behalf of clientID. Lookup failures,
// handler errors and handler panics all come back as an error.
func (s *Server) Dispatch(ctx context.Context, clientID int64, className, functionName string, args []Value) (values []Value, err error) {
	handler := s.handler
	if handler == nil {
		s.mu.Lock()
		handler = buildHandlerFunction(s.middleware, s.invoke)
		s.mu.Unlock()
	}

	req := &Request{
		ClientID: clientID,
		Class:    className,
		Function: functionName,
		Args:     args,
	}

	defer func() {
		if r := recover(); r != nil {
			values = nil
			err = fmt.Errorf("%s panicked: %v", req.Name(), r)
		}
	}()

	return handler(ctx, req)
}

func (s *Server) invoke(ctx context.Context, req *Request) ([]Value, error) {
	collection, ok := s.collections[req.Class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, req.Class)
	}
	fn, ok := collection.LookupArgs(req.Function, req.Args)
	if !ok {
		return nil, fmt.Errorf("%w: %s::%s", ErrUnknownFunction, req.Class, NewFunction(req.Function, TypesOf(req.Args), nil))
	}
	return fn.Call(ctx, req.ClientID, req.Args)
}

// session serves one connected client. Calls are handled one at a time: the
// next frame is not read until the previous reply has been written.
type session struct {
	server *Server
	id     int64
	socket *Socket
}

func (sess *session) serve(ctx context.Context) {
	s := sess.server
	defer s.wg.Done()
	defer s.killClient(sess.id)

	header := make([]byte, FrameHeaderSize)
	for {
		_, status := sess.socket.ReadBlocking(header)
		if !sess.readOK(status) {
			return
		}

		size, err := ReadFrameSize(header, s.conf.MaxFrameSize)
		if err != nil {
			s.handleError(fmt.Errorf("client %d: %w", sess.id, err))
			return
		}
		if size == 0 {
			continue
		}

		payload := make([]byte, size)
		_, status = sess.socket.ReadBlocking(payload)
		if !sess.readOK(status) {
			return
		}

		if h := s.messageHandler(); h != nil {
			h(sess.id, payload)
		}

		reply := sess.handle(ctx, payload)
		if reply == nil {
			continue
		}

		op, status := sess.socket.Write(reply.Frame(), nil, nil)
		if status != StatusPending && status != StatusSuccess {
			return
		}
		if status = op.Wait(-1); status != StatusSuccess {
			if status != StatusDisconnected {
				s.handleError(fmt.Errorf("client %d: failed to write reply %d: %s", sess.id, reply.ID, status))
			}
			return
		}
	}
}

func (sess *session) readOK(status Status) bool {
	switch status {
	case StatusSuccess, StatusMoreData:
		return true
	case StatusDisconnected:
		return false
	}
	if sess.server.isRunning() {
		sess.server.handleError(fmt.Errorf("client %d: read failed: %s", sess.id, status))
	}
	return false
}

// handle decodes and runs one call. It returns nil when the payload is too
// damaged to identify the call.
func (sess *session) handle(ctx context.Context, payload []byte) *ReplyMessage {
	s := sess.server

	msg, err := DecodeCall(payload)
	if err != nil {
		s.handleError(fmt.Errorf("client %d: %w", sess.id, err))
		id, ok := peekCallID(payload)
		if !ok {
			return nil
		}
		return errorReply(id, err, 0)
	}

	start := time.Now()
	values, err := s.Dispatch(ctx, sess.id, msg.Class, msg.Function, msg.Args)
	observed := time.Since(start)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logDebug(fmt.Sprintf("Client %d: call %d failed: %v", sess.id, msg.ID, err))
		}
		return errorReply(msg.ID, err, observed)
	}
	if i := firstInvalid(values); i >= 0 {
		err = fmt.Errorf("%s returned invalid value %d: %s", msg.Name(), i, values[i].Type)
		s.handleError(fmt.Errorf("client %d: %w", sess.id, err))
		return errorReply(msg.ID, err, observed)
	}

	return &ReplyMessage{
		ID:       msg.ID,
		Values:   values,
		Observed: observed,
	}
}

// errorReply carries the error text both in the error field and as a single
// Null value for callers that only read values.
func errorReply(id uint64, err error, observed time.Duration) *ReplyMessage {
	text := err.Error()
	if text == "" {
		text = "unknown error"
	}
	return &ReplyMessage{
		ID:       id,
		Error:    text,
		Values:   []Value{Null(text)},
		Observed: observed,
	}
}

// peekCallID recovers the id of a call whose body failed to decode.
func peekCallID(payload []byte) (uint64, bool) {
	reader := serialize.NewReader(payload)
	var disc uint8
	if err := serialize.DeserializeUInt8(&disc, reader); err != nil || disc != MessageCall {
		return 0, false
	}
	var id uint64
	if err := serialize.DeserializeUInt64(&id, reader); err != nil {
		return 0, false
	}
	return id, true
}
