package ipc

import (
	"fmt"
	"sync"
	"time"
)

// Status is the outcome of an asynchronous pipe operation.
type Status int

const (
	StatusSuccess Status = iota
	StatusPending
	StatusTimedOut
	StatusDisconnected
	StatusError
	StatusMoreData
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPending:
		return "pending"
	case StatusTimedOut:
		return "timed out"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	case StatusMoreData:
		return "more data"
	case StatusConnected:
		return "connected"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CompletionFunc receives the final status of an operation and the number of
// bytes transferred.
type CompletionFunc func(status Status, n int)

// AsyncOp is one outstanding read, write or accept.
type AsyncOp interface {
	// Wait blocks until the operation completes or timeout elapses. A negative
	// timeout waits forever, zero polls.
	Wait(timeout time.Duration) Status
	Done() <-chan struct{}
	Result() (Status, int)
	Cancel()
	IsValid() bool
	Invalidate()
}

// Operation is the AsyncOp used by Socket and Acceptor.
//
// An operation completes exactly once per request. Its CompletionFunc fires at
// most once, and only if the operation is still valid when it completes.
// Arming a new request requires the previous one to be invalidated.
type Operation struct {
	mu       sync.Mutex
	done     chan struct{}
	status   Status
	n        int
	err      error
	valid    bool
	finished bool
	cb       CompletionFunc
	onCancel func()
}

func NewOperation() *Operation {
	return &Operation{}
}

func (o *Operation) arm(cb CompletionFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.valid {
		return ErrOperationInUse
	}
	o.done = make(chan struct{})
	o.status = StatusPending
	o.n = 0
	o.err = nil
	o.valid = true
	o.finished = false
	o.cb = cb
	o.onCancel = nil
	return nil
}

func (o *Operation) setCancel(fn func()) {
	o.mu.Lock()
	o.onCancel = fn
	o.mu.Unlock()
}

// finish completes the operation. Only the first call has any effect.
func (o *Operation) finish(status Status, n int, err error) bool {
	o.mu.Lock()
	if o.finished || o.done == nil {
		o.mu.Unlock()
		return false
	}
	o.finished = true
	o.status = status
	o.n = n
	o.err = err
	var cb CompletionFunc
	if o.valid {
		cb = o.cb
	}
	o.cb = nil
	close(o.done)
	o.mu.Unlock()

	if cb != nil {
		cb(status, n)
	}
	return true
}

func (o *Operation) Wait(timeout time.Duration) Status {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done == nil {
		return StatusError
	}

	if timeout < 0 {
		<-done
	} else if timeout == 0 {
		select {
		case <-done:
		default:
			return StatusTimedOut
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			return StatusTimedOut
		}
	}

	status, _ := o.Result()
	return status
}

// Done is closed when the current request completes. It is nil before the
// operation has ever been armed.
func (o *Operation) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

func (o *Operation) Result() (Status, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.finished {
		return StatusPending, 0
	}
	return o.status, o.n
}

// Err is the transport error behind a StatusError or StatusDisconnected result.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Cancel completes a pending operation with StatusError without firing its
// callback. Cancelling a completed operation only invalidates it.
func (o *Operation) Cancel() {
	o.mu.Lock()
	o.valid = false
	onCancel := o.onCancel
	finished := o.finished
	o.mu.Unlock()

	if finished {
		return
	}
	if onCancel != nil {
		onCancel()
	}
	o.finish(StatusError, 0, ErrOperationCanceled)
}

func (o *Operation) IsValid() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.valid
}

func (o *Operation) Invalidate() {
	o.mu.Lock()
	o.valid = false
	o.mu.Unlock()
}
