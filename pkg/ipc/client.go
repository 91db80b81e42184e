package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/kbirk/pipecall/pkg/ipc/pipe"
	"github.com/kbirk/pipecall/pkg/log"
)

// ReplyFunc receives the values of a completed call and the execution time the
// server observed. It runs on the client's read goroutine, so it must not block
// for long and must not call Stop.
type ReplyFunc func(values []Value, observed time.Duration)

type DialFunc func(ctx context.Context, path string) (net.Conn, error)

type ClientConfig struct {
	Path string
	// Dial defaults to pipe.Dial.
	Dial        DialFunc
	DialTimeout time.Duration
	// OnDisconnect is called after the server goes away and every pending
	// call has been completed. Without it the process exits.
	OnDisconnect func()
	ErrHandler   func(error)
	Logger       log.Logger
	// FreezeTimeout is how long a call may be outstanding before it is
	// reported as a possible freeze.
	FreezeTimeout time.Duration
	// PollInterval is the wait slice of CallSync.
	PollInterval time.Duration
	MaxFrameSize uint32
	// Exit terminates the process when the connection is lost and no
	// OnDisconnect is set. Defaults to os.Exit.
	Exit func(code int)
}

type pendingCall struct {
	fn        ReplyFunc
	submitted time.Time
}

type Client struct {
	conf     ClientConfig
	socket   *Socket
	watchdog *Watchdog

	mu      *sync.Mutex
	pending map[uint64]*pendingCall
	callID  uint64
	closed  bool

	freezeMu     sync.RWMutex
	freezeCb     FreezeCallback
	appStatePath string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Create connects to the server at path. The process exits if the server
// disconnects.
func Create(path string) (*Client, error) {
	return NewClient(ClientConfig{
		Path: path,
	})
}

// CreateWithDisconnect connects to the server at path and calls onDisconnect
// when the server goes away.
func CreateWithDisconnect(path string, onDisconnect func()) (*Client, error) {
	return NewClient(ClientConfig{
		Path:         path,
		OnDisconnect: onDisconnect,
	})
}

func NewClient(conf ClientConfig) (*Client, error) {
	if conf.Dial == nil {
		conf.Dial = pipe.Dial
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = pipe.DefaultDialTimeout
	}
	if conf.MaxFrameSize == 0 {
		conf.MaxFrameSize = DefaultMaxFrameSize
	}
	if conf.Exit == nil {
		conf.Exit = os.Exit
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.DialTimeout)
	defer cancel()

	conn, err := conf.Dial(ctx, conf.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", conf.Path, err)
	}

	watchdog := NewWatchdog(conf.FreezeTimeout, conf.PollInterval)
	conf.FreezeTimeout = watchdog.FreezeTimeout()
	conf.PollInterval = watchdog.PollInterval()

	c := &Client{
		conf:     conf,
		socket:   NewSocket(conn),
		watchdog: watchdog,
		mu:       &sync.Mutex{},
		pending:  make(map[uint64]*pendingCall),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	c.logDebug("Connected to " + conf.Path)
	go c.worker()

	return c, nil
}

func (c *Client) logDebug(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Debug(msg)
	}
}

func (c *Client) logInfo(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Info(msg)
	}
}

func (c *Client) logWarn(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Warn(msg)
	}
}

func (c *Client) logError(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Error(msg)
	}
}

func (c *Client) handleError(err error) {
	c.logError("Encountered error: " + err.Error())
	if c.conf.ErrHandler != nil {
		c.conf.ErrHandler(err)
	}
}

// SetFreezeCallback installs the function that receives freeze reports.
// appStatePath is copied into every report.
func (c *Client) SetFreezeCallback(cb FreezeCallback, appStatePath string) {
	c.freezeMu.Lock()
	defer c.freezeMu.Unlock()
	c.freezeCb = cb
	c.appStatePath = appStatePath
}

func (c *Client) reportFreeze(report FreezeReport) {
	c.freezeMu.RLock()
	cb := c.freezeCb
	report.AppStatePath = c.appStatePath
	c.freezeMu.RUnlock()

	c.logWarn(report.String())
	if cb != nil {
		cb(report)
	}
}

// Call sends a call and returns its id once the frame has been written. fn
// is invoked exactly once with the reply, or with a single Null value holding
// LostConnectionMessage if the connection is lost first. A nil fn discards
// the reply.
//
// A slow write is never abandoned; every FreezeTimeout spent waiting on it is
// reported to the freeze callback.
func (c *Client) Call(className, functionName string, args []Value, fn ReplyFunc) (uint64, error) {
	if i := firstInvalid(args); i >= 0 {
		return 0, fmt.Errorf("invalid argument %d: %s", i, args[i].Type)
	}

	msg := &CallMessage{
		Class:    className,
		Function: functionName,
		Args:     args,
	}
	if size := msg.ByteSize(); uint64(size) > uint64(c.conf.MaxFrameSize) {
		return 0, fmt.Errorf("%w: %s is %d bytes", ErrFrameTooLarge, msg.Name(), size)
	}

	// register before writing so a fast reply always finds its callback
	submitted := time.Now()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrNotConnected
	}
	c.callID++
	msg.ID = c.callID
	if fn != nil {
		c.pending[msg.ID] = &pendingCall{
			fn:        fn,
			submitted: submitted,
		}
	}
	c.mu.Unlock()

	op, status := c.socket.Write(msg.Frame(), nil, nil)
	if status != StatusSuccess && status != StatusPending {
		c.Cancel(msg.ID)
		return 0, fmt.Errorf("%w: %s: %s", ErrWriteFailed, msg.Name(), status)
	}

	var watch *Watch
	for {
		status = op.Wait(c.conf.FreezeTimeout)
		if status != StatusTimedOut {
			break
		}
		if watch == nil {
			watch = c.watchdog.Start(msg.Name(), KindBlockingWrite, submitted)
		}
		if report, ok := watch.Tick(time.Now()); ok {
			c.reportFreeze(report)
		}
	}

	if status != StatusSuccess {
		c.Cancel(msg.ID)
		op.Cancel()
		if err := op.Err(); err != nil {
			return 0, fmt.Errorf("%w: %s: %s: %v", ErrWriteFailed, msg.Name(), status, err)
		}
		return 0, fmt.Errorf("%w: %s: %s", ErrWriteFailed, msg.Name(), status)
	}

	c.logDebug(fmt.Sprintf("Sent call %d: %s", msg.ID, msg.Name()))
	return msg.ID, nil
}

// CallSync sends a call and blocks until its reply arrives. A lost connection
// yields the single Null value the pending call was completed with. An error
// is returned only if the call could not be sent or the client was stopped
// before the call completed.
func (c *Client) CallSync(className, functionName string, args []Value) ([]Value, error) {
	var (
		sig      = make(chan struct{})
		values   []Value
		observed time.Duration = -1
	)

	start := time.Now()
	id, err := c.Call(className, functionName, args, func(rval []Value, obs time.Duration) {
		// copy off the read goroutine
		values = make([]Value, len(rval))
		copy(values, rval)
		observed = obs
		close(sig)
	})
	if err != nil {
		return nil, err
	}

	watch := c.watchdog.Start(className+"::"+functionName, KindSync, start)
	ticker := time.NewTicker(c.conf.PollInterval)
	defer ticker.Stop()

	called := false
	for !called {
		select {
		case <-sig:
			called = true
		case <-c.done:
			// pending calls are drained before done closes
			select {
			case <-sig:
				called = true
			default:
				c.Cancel(id)
				return nil, ErrClientStopped
			}
		case now := <-ticker.C:
			if report, ok := watch.Tick(now); ok {
				c.reportFreeze(report)
			}
		}
	}

	if report, ok := watch.Finish(time.Now(), observed); ok {
		c.reportFreeze(report)
	}
	return values, nil
}

// Cancel forgets a pending call without invoking its callback. The server is
// not told; a late reply is dropped.
func (c *Client) Cancel(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

// PendingCount is the number of calls waiting for a reply.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stop shuts down the read goroutine and completes every pending call with
// the lost connection result. OnDisconnect is not called. Stop is idempotent.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

// Done is closed once the client has stopped reading replies.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) worker() {
	err := c.readLoop()

	stopped := errors.Is(err, ErrClientStopped)
	switch {
	case stopped:
		c.logDebug("Client stopped")
	case errors.Is(err, ErrNotConnected):
		c.logInfo("Server disconnected")
	default:
		c.handleError(err)
	}

	c.socket.Close()
	c.drain()
	close(c.done)

	if stopped {
		return
	}
	if c.conf.OnDisconnect != nil {
		c.conf.OnDisconnect()
		return
	}
	c.logError("Lost connection to server and no disconnect handler is set, exiting")
	c.conf.Exit(1)
}

func (c *Client) readLoop() error {
	header := make([]byte, FrameHeaderSize)
	for {
		err := c.read(header)
		if err != nil {
			return err
		}

		size, err := ReadFrameSize(header, c.conf.MaxFrameSize)
		if err != nil {
			// the stream cannot be resynchronised past a bad header
			return err
		}
		if size == 0 {
			continue
		}

		payload := make([]byte, size)
		err = c.read(payload)
		if err != nil {
			return err
		}

		c.handleReply(payload)
	}
}

// read fills buf, waiting on the operation or on Stop.
func (c *Client) read(buf []byte) error {
	op, status := c.socket.Read(buf, nil, nil)
	switch status {
	case StatusPending, StatusSuccess:
	case StatusDisconnected:
		return ErrNotConnected
	default:
		return fmt.Errorf("failed to start read: %s", status)
	}

	select {
	case <-op.Done():
	case <-c.stop:
		op.Cancel()
		return ErrClientStopped
	}

	switch status, _ := op.Result(); status {
	case StatusSuccess, StatusMoreData:
		return nil
	case StatusDisconnected:
		return ErrNotConnected
	default:
		select {
		case <-c.stop:
			return ErrClientStopped
		default:
		}
		return fmt.Errorf("unexpected read status %s: %v", status, op.Err())
	}
}

func (c *Client) handleReply(payload []byte) {
	msg, err := DecodeReply(payload)
	if err != nil {
		// framing is intact, only this reply is lost
		c.handleError(fmt.Errorf("dropping reply frame: %w", err))
		return
	}

	c.mu.Lock()
	call, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.logDebug(fmt.Sprintf("Dropping reply for unknown call %d", msg.ID))
		return
	}

	c.logDebug(fmt.Sprintf("Reply for call %d after %s", msg.ID, time.Since(call.submitted)))

	values := msg.Values
	if msg.Error != "" {
		values = []Value{Null(msg.Error)}
	}
	call.fn(values, msg.Observed)
}

// drain completes every pending call with the lost connection result and
// refuses new calls.
func (c *Client) drain() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)
	c.mu.Unlock()

	if len(pending) > 0 {
		c.logWarn(fmt.Sprintf("Completing %d pending calls after losing the connection", len(pending)))
	}
	for _, call := range pending {
		call.fn([]Value{Null(LostConnectionMessage)}, 0)
	}
}
