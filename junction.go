// Package junction implements a kernel-event-driven I/O multiplexer
// unifying kqueue (BSD) and epoll (Linux) behind a single cycle engine.
// A Junction owns a ring of Channels and drives them through enter()/exit()
// cycles; see internal/engine for the state machine itself. A Junction
// owns nothing but a notification handle and a ring — no device, no
// queue depth, no protocol state.
package junction

import (
	"fmt"
	"runtime"

	"github.com/ehrlich-b/junction/internal/engine"
	"github.com/ehrlich-b/junction/internal/interfaces"
	"github.com/ehrlich-b/junction/internal/logging"
	"github.com/ehrlich-b/junction/internal/notify"
)

// Options configures a new Junction. A nil Logger or Observer is valid;
// Junction falls back to the package default logger and a no-op observer.
type Options struct {
	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// Junction is the cycle engine's public handle: construct Channels via
// rallocate, acquire(channel) to attach them, and bracket each cycle with
// Enter/Exit.
type Junction struct {
	eng *engine.Engine
	obs interfaces.Observer
}

// New creates a Junction with a platform notifier (kqueue on BSD, epoll on
// Linux, selected by build tag in internal/notify).
func New(opts Options) (*Junction, error) {
	notifier, err := notify.New()
	if err != nil {
		return nil, fmt.Errorf("junction: new: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	obs := opts.Observer
	j := &Junction{
		eng: engine.New(notifier, logger, engineObserver{obs}),
		obs: obs,
	}
	j.eng.SetNotifierFactory(notify.New)
	runtime.SetFinalizer(j, (*Junction).finalize)
	return j, nil
}

func (j *Junction) finalize() {
	j.eng.Void()
}

// engineObserver adapts interfaces.Observer (which also carries
// ObserveQueueDepth, meaningless at the engine layer) onto engine.Observer.
type engineObserver struct {
	obs interfaces.Observer
}

func (e engineObserver) ObserveTransfer(freight string, bytes uint64, latencyNs uint64, success bool) {
	if e.obs != nil {
		e.obs.ObserveTransfer(freight, bytes, latencyNs, success)
	}
}

func (e engineObserver) ObserveTerminate(freight string, cause string) {
	if e.obs != nil {
		e.obs.ObserveTerminate(freight, cause)
	}
}

func (e engineObserver) ObserveWait(willWait bool, latencyNs uint64) {
	if e.obs != nil {
		e.obs.ObserveWait(willWait, latencyNs)
	}
}

// Acquire attaches a pre-created Channel to the Junction's ring,
// distinct from Channel.Acquire(resource), which binds a buffer to an
// already-attached Channel. A Channel belongs to at most one Junction for
// its lifetime: acquiring it into a second Junction, or acquiring it
// twice, fails fast without touching engine state.
func (j *Junction) Acquire(ch *Channel) error {
	if ch.j != nil && ch.j != j {
		return ErrChannelForeign
	}
	ch.j = j
	return engineErr(j.eng.AttachChannel(ch.inner))
}

// Enter opens one cycle: delta drain, subscribe, collect, transform, I/O
// attempt. Returns ErrCycleAlreadyOpen if called while already inside a
// cycle.
func (j *Junction) Enter() error {
	return engineErr(j.eng.Enter())
}

// Transfer returns the Channels with a nonzero events bitmap this cycle.
// Valid only between Enter and Exit.
func (j *Junction) Transfer() []*Channel {
	inner := j.eng.Transfer()
	out := make([]*Channel, len(inner))
	for i, c := range inner {
		out[i] = wrapChannel(c)
	}
	return out
}

// Exit runs the flush phase and closes the cycle.
func (j *Junction) Exit() {
	j.eng.Exit()
}

// Force aborts a blocked collect phase from another goroutine. A no-op if
// no cycle is currently waiting.
func (j *Junction) Force() error {
	return j.eng.Force()
}

// Void clears the ring without emitting termination events, for a
// post-fork child that must disclaim the parent's descriptors.
func (j *Junction) Void() {
	j.eng.Void()
}

// ResizeExoresource resizes the kevent/epoll_event scratch array. Valid
// only outside a cycle.
func (j *Junction) ResizeExoresource(n int) error {
	return engineErr(j.eng.ResizeExoresource(n))
}

// Terminate cascades terminate() across every attached Channel.
func (j *Junction) Terminate() {
	j.eng.RequestTerminate()
}

// Terminated reports whether a requested Terminate has fully drained:
// every Channel has emitted its termination event and left the ring. The
// Junction's own termination is observable only after all of its
// Channels', so this going true is the cascade's final event.
func (j *Junction) Terminated() bool {
	return j.eng.Terminated()
}
