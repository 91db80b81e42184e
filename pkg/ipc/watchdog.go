package ipc

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultFreezeTimeout = 15 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
)

// CallKind separates a caller stuck writing to the pipe from a synchronous
// call stuck waiting for its reply.
type CallKind int

const (
	KindBlockingWrite CallKind = iota
	KindSync
)

func (k CallKind) String() string {
	switch k {
	case KindBlockingWrite:
		return "blocking write"
	case KindSync:
		return "sync"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FreezeReport describes a call that has been outstanding abnormally long.
//
// Elapsed is the wall time measured by the caller. Observed is the execution
// time reported by the server, or -1 while no reply has arrived. A large gap
// between the two points at the transport rather than the remote function.
type FreezeReport struct {
	ID           uuid.UUID
	AppStatePath string
	Call         string
	Kind         CallKind
	Elapsed      time.Duration
	Observed     time.Duration
	Final        bool
}

func (r FreezeReport) String() string {
	observed := "unknown"
	if r.Observed >= 0 {
		observed = fmt.Sprintf("%dms", r.Observed.Milliseconds())
	}
	state := "possible freeze"
	if r.Final {
		state = "long call finished"
	}
	return fmt.Sprintf("%s: %s (%s) elapsed %dms, observed %s [%s]", state, r.Call, r.Kind, r.Elapsed.Milliseconds(), observed, r.ID)
}

type FreezeCallback func(FreezeReport)

// Watchdog decides when outstanding calls should be reported. It never touches
// call state; callers feed it timestamps and forward whatever it emits.
type Watchdog struct {
	freezeTimeout time.Duration
	pollInterval  time.Duration
}

func NewWatchdog(freezeTimeout, pollInterval time.Duration) *Watchdog {
	if freezeTimeout <= 0 {
		freezeTimeout = DefaultFreezeTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Watchdog{
		freezeTimeout: freezeTimeout,
		pollInterval:  pollInterval,
	}
}

func (w *Watchdog) FreezeTimeout() time.Duration {
	return w.freezeTimeout
}

func (w *Watchdog) PollInterval() time.Duration {
	return w.pollInterval
}

// Start begins observing one call submitted at start.
func (w *Watchdog) Start(call string, kind CallKind, start time.Time) *Watch {
	return &Watch{
		id:            uuid.New(),
		call:          call,
		kind:          kind,
		start:         start,
		freezeTimeout: w.freezeTimeout,
		pollInterval:  w.pollInterval,
	}
}

// Watch tracks a single call. It is not safe for concurrent use.
type Watch struct {
	id            uuid.UUID
	call          string
	kind          CallKind
	start         time.Time
	freezeTimeout time.Duration
	pollInterval  time.Duration
	long          bool
	reported      int
}

func (w *Watch) Elapsed(now time.Time) time.Duration {
	return now.Sub(w.start)
}

// Tick is called each time a wait slice expires without the call finishing.
// It emits a report every time another freeze timeout of wall time has passed.
func (w *Watch) Tick(now time.Time) (FreezeReport, bool) {
	elapsed := w.Elapsed(now)
	if elapsed >= w.pollInterval {
		w.long = true
	}
	if elapsed < w.freezeTimeout*time.Duration(w.reported+1) {
		return FreezeReport{}, false
	}
	w.reported++
	return w.report(elapsed, -1, false), true
}

// Finish emits a closing report, with the server observed duration, for calls
// that ran longer than one poll interval.
func (w *Watch) Finish(now time.Time, observed time.Duration) (FreezeReport, bool) {
	elapsed := w.Elapsed(now)
	if !w.long && elapsed < w.pollInterval {
		return FreezeReport{}, false
	}
	return w.report(elapsed, observed, true), true
}

// Frozen reports whether at least one freeze report has been emitted.
func (w *Watch) Frozen() bool {
	return w.reported > 0
}

func (w *Watch) report(elapsed, observed time.Duration, final bool) FreezeReport {
	return FreezeReport{
		ID:       w.id,
		Call:     w.call,
		Kind:     w.kind,
		Elapsed:  elapsed,
		Observed: observed,
		Final:    final,
	}
}
