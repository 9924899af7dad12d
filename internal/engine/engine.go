// Package engine implements the Junction cycle: the eight enter()
// phases plus exit()'s flush phase that drive Channel readiness,
// transfer, and termination. Each Channel tracks its transfer
// qualification from both the kernel side and the user side. Phase 4
// subscribes Channels one at a time, each through its own notifier call;
// subscription changes are not batched per cycle. A single engine-wide
// exclusion lock guards the bookkeeping phases and is dropped across the
// kernel-facing ones.
package engine

import (
	"errors"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/junction/internal/notify"
	"github.com/ehrlich-b/junction/internal/port"
	"github.com/ehrlich-b/junction/internal/ring"
)

// waitTimeout bounds the blocking collect wait so a dropped wakeup
// can't hang a cycle forever; it exists purely as a liveness backstop
// and is not meant to be user-observable.
const waitTimeout = 9 * time.Second

var (
	ErrCycleAlreadyOpen          = errors.New("engine: cycle already open")
	ErrResizeDuringCycle         = errors.New("engine: cannot resize exoresource during a cycle")
	ErrAlreadyTerminating        = errors.New("engine: channel is terminating")
	ErrResourceStillTransferable = errors.New("engine: previous resource has not been exhausted")
	ErrForeignChannel            = errors.New("engine: channel belongs to another junction")
)

// Engine drives one Junction's cycle. The zero value is not usable; use
// New.
type Engine struct {
	mu sync.Mutex

	ring     *ring.Ring[Channel]
	transfer ring.TransferList[Channel]
	notifier notify.Notifier

	willWait    bool
	terminating bool
	cycleOpen   bool
	reinit      bool

	newNotifier func() (notify.Notifier, error)

	logger   Logger
	observer Observer
}

// Logger is the minimal logging contract the engine needs (matches
// interfaces.Logger; redeclared here to avoid every caller importing
// internal/interfaces just to pass nil).
type Logger interface {
	Debugf(format string, args ...interface{})
	Printf(format string, args ...interface{})
}

// Observer receives cycle metrics; nil is a valid Observer (all calls
// are nil-checked).
type Observer interface {
	ObserveTransfer(freight string, bytes uint64, latencyNs uint64, success bool)
	ObserveTerminate(freight string, cause string)
	ObserveWait(willWait bool, latencyNs uint64)
}

// New creates an Engine over an already-constructed Notifier.
func New(notifier notify.Notifier, logger Logger, observer Observer) *Engine {
	return &Engine{
		ring:     ring.New[Channel](),
		notifier: notifier,
		logger:   logger,
		observer: observer,
	}
}

// AttachChannel splices ch into the ring (attaching a pre-created
// Channel to the Junction, distinct from binding a resource buffer to
// an already-attached one). ch is marked for subscription on the next
// cycle. A Channel already spliced into a ring cannot be attached again.
func (e *Engine) AttachChannel(ch *Channel) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch.node != nil {
		return ErrForeignChannel
	}
	node := ring.NewNode(ch)
	ch.node = node
	// Qualified through delta, not state, so the next cycle's drain picks
	// the Channel up and phase 4 subscribes it — even when no resource
	// acquisition follows to enqueue it again.
	ch.Delta |= FlagConnected | FlagCtlConnect
	e.ring.Attach(node)
	return nil
}

// Acquire binds resource to ch, handing the engine ownership of its
// bytes until the buffer is fully transferred or the Channel
// terminates.
func (e *Engine) Acquire(ch *Channel, resource []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if (ch.Flags|ch.Delta)&FlagTerminating != 0 {
		return ErrAlreadyTerminating
	}
	if (ch.Flags|ch.Delta)&FlagIteqTransfer != 0 {
		return ErrResourceStillTransferable
	}

	ch.Resource = resource
	ch.Start, ch.Stop = 0, 0

	if ch.node == nil {
		ch.Flags |= FlagIteqTransfer
		return nil
	}
	ch.Delta |= FlagIteqTransfer
	e.moveToDeltaTail(ch.node)
	return nil
}

// Terminate requests shutdown of ch.
func (e *Engine) Terminate(ch *Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ch.node == nil {
		ch.release()
		return
	}
	if ch.Flags&FlagTerminating == 0 {
		ch.Delta |= FlagTerminating
		e.moveToDeltaTail(ch.node)
	}
}

// ForceChannel arms ch's ctl_force flag: the next cycle performs a
// transfer attempt even without kernel readiness.
func (e *Engine) ForceChannel(ch *Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch.node != nil {
		ch.Delta |= FlagCtlForce
		e.moveToDeltaTail(ch.node)
	} else {
		ch.Flags |= FlagCtlForce
	}
}

// moveToDeltaTail re-splices node immediately before the sentinel so
// the delta-drain's backward walk (which stops at the first zero-delta
// node) picks it up this cycle: enqueuing always means splicing
// immediately before the sentinel.
func (e *Engine) moveToDeltaTail(node *ring.Node[Channel]) {
	e.ring.Detach(node)
	e.ring.Attach(node)
}

// Force aborts a blocked collect wait from another goroutine. A no-op
// if no wait is currently outstanding.
func (e *Engine) Force() error {
	e.mu.Lock()
	waiting := e.willWait
	e.mu.Unlock()
	if !waiting {
		return nil
	}
	return e.notifier.Wake()
}

// Void clears the ring without emitting events, for post-fork children
// that must disclaim the parent's kernel resources.
func (e *Engine) Void() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ring.Each(func(n *ring.Node[Channel]) {
		n.Owner.Port.Shatter()
		n.Owner.node = nil
	})
	e.ring = ring.New[Channel]()
}

// ResizeExoresource resizes the kevent/epoll_event scratch array. Only
// valid outside a cycle.
func (e *Engine) ResizeExoresource(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cycleOpen {
		return ErrResizeDuringCycle
	}
	return e.notifier.Resize(n)
}

// SetNotifierFactory installs the constructor used to rebuild the
// notification handle when it turns unusable (post-fork, or closed out
// from under the engine). Without one, a dead handle stays dead.
func (e *Engine) SetNotifierFactory(f func() (notify.Notifier, error)) {
	e.newNotifier = f
}

// RequestTerminate cascades terminate() across every attached Channel.
func (e *Engine) RequestTerminate() {
	e.mu.Lock()
	e.terminating = true
	e.mu.Unlock()
}

// Terminated reports whether a requested terminate has fully drained:
// the ring is empty and every Channel has been released. The Junction's
// own termination event is observable only after all of its Channels'.
func (e *Engine) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminating && e.ring.Empty()
}

// Enter drives one cycle through phases 1-7 and returns. Phase 8
// ("expose") is implicit: the caller now calls Transfer to iterate
// Channels with events set, then Exit to flush.
func (e *Engine) Enter() error {
	if err := e.phase123(); err != nil {
		return err
	}
	e.phase456() // lock dropped for the kernel-facing phases
	e.phase7()
	return nil
}

// phase123 covers "start cycle", "delta drain", and the "wait-flag
// decision", all under the exclusion lock.
func (e *Engine) phase123() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cycleOpen {
		return ErrCycleAlreadyOpen
	}
	e.cycleOpen = true
	e.transfer.Open()

	// A notification handle that died (post-fork, or closed by the user)
	// is rebuilt here, and every ring member is re-marked for
	// subscription so the fresh handle learns the whole population.
	if e.reinit {
		e.reinit = false
		if e.newNotifier != nil {
			if n, err := e.newNotifier(); err == nil {
				_ = e.notifier.Close()
				e.notifier = n
				e.ring.Each(func(node *ring.Node[Channel]) {
					node.Owner.Delta |= FlagCtlConnect
				})
			} else if e.logger != nil {
				e.logger.Printf("engine: notifier reinit: %v", err)
			}
		}
	}

	if e.terminating {
		e.ring.Each(func(n *ring.Node[Channel]) {
			n.Owner.Delta |= FlagTerminating
		})
	}

	// delta drain: walk backward from the sentinel while delta is
	// nonzero, merging into state and splicing onto the transfer list.
	e.ring.EachReverse(func(n *ring.Node[Channel]) bool {
		ch := n.Owner
		if ch.Delta == 0 {
			return true
		}
		ch.Flags |= ch.Delta
		ch.Delta = 0
		e.transfer.Push(n)
		return false
	})

	e.willWait = e.transfer.Empty()
	return nil
}

// phase456 covers "apply delta/subscribe", "collect", and "transform",
// all with the exclusion lock released.
func (e *Engine) phase456() {
	// phase 4: apply delta / subscribe
	e.transfer.Each(func(n *ring.Node[Channel]) {
		ch := n.Owner
		if ch.Flags&FlagCtlConnect != 0 {
			interest := notify.InterestWrite
			if ch.Input() {
				interest = notify.InterestRead
			}
			if err := e.notifier.Subscribe(ch.Port.FD, unsafe.Pointer(n), interest); err != nil {
				ch.Flags |= FlagXteqTerminate
				ch.Events |= EventTerminate
			}
			ch.Flags &^= FlagCtlConnect
		}
		if ch.Flags&FlagCtlForce != 0 {
			ch.Flags |= FlagXteqTransfer
			ch.Flags &^= FlagCtlForce
		}
	})

	// phase 5: collect
	timeout := time.Duration(0)
	if e.willWait {
		timeout = waitTimeout
	}
	start := nowMonotonic()
	events, err := e.notifier.Wait(timeout)
	if e.observer != nil {
		e.observer.ObserveWait(e.willWait, uint64(time.Since(start).Nanoseconds()))
	}
	if err != nil {
		if errors.Is(err, unix.EBADF) {
			e.reinit = true
		}
		if e.logger != nil {
			e.logger.Printf("engine: collect: %v", err)
		}
	}

	// phase 6: transform
	for _, ev := range events {
		node := (*ring.Node[Channel])(ev.UserData)
		if node == nil {
			continue
		}
		ch := node.Owner
		if ev.Kind&(notify.Readable|notify.Writable) != 0 {
			ch.Flags |= FlagXteqTransfer
		}
		if ev.Kind&(notify.EOF|notify.Error) != 0 {
			ch.Flags |= FlagXteqTerminate
		}
		e.transfer.Push(node)
	}
}

// phase7 is "I/O attempt", reacquiring the exclusion lock.
func (e *Engine) phase7() {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The collect wait, if there was one, is over: Force is a no-op again.
	e.willWait = false

	e.transfer.Each(func(n *ring.Node[Channel]) {
		ch := n.Owner
		if ch.Flags&(FlagTerminating|FlagXteqTerminate) != 0 {
			dir := notify.InterestRead
			if !ch.Input() {
				dir = notify.InterestWrite
			}
			_ = e.notifier.Unsubscribe(ch.Port.FD, unsafe.Pointer(n), dir)
			ch.Events |= EventTerminate
			if e.observer != nil {
				e.observer.ObserveTerminate(freightName(ch), string(ch.Port.Cause))
			}
			return
		}
		if ch.Flags&FlagXteqTransfer == 0 || ch.Flags&FlagIteqTransfer == 0 {
			return
		}

		// The window exposes only this cycle's transfer; exit's flush
		// collapses it back into the unobserved region.
		ch.Start = ch.Stop

		buf := ch.Resource[ch.Stop:]
		if len(buf) == 0 {
			ch.Flags &^= FlagIteqTransfer
			return
		}

		start := nowMonotonic()
		var n_ int
		var err error
		if ch.Input() {
			n_, err = ch.Freight.Input(ch.Port, buf)
		} else {
			n_, err = ch.Freight.Output(ch.Port, buf)
		}
		ch.Stop += n_
		ok := err == nil
		if e.observer != nil {
			e.observer.ObserveTransfer(freightName(ch), uint64(n_), uint64(time.Since(start).Nanoseconds()), ok)
		}

		switch {
		case isTransient(err):
			ch.Flags &^= FlagXteqTransfer
		case err != nil || n_ == 0:
			if err == nil {
				ch.Port.Cause = port.CauseEOF
			}
			ch.Flags |= FlagXteqTerminate
			ch.Events |= EventTerminate
		case ch.Stop >= len(ch.Resource):
			ch.Flags &^= FlagIteqTransfer
		}
		ch.Events |= EventTransfer
	})
}

// Exit runs the flush phase: collapse windows, release terminated
// Channels, clear events, and close the transfer list.
func (e *Engine) Exit() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.transfer.Each(func(n *ring.Node[Channel]) {
		ch := n.Owner
		ch.Start = 0
		if ch.Events&EventTerminate != 0 {
			ch.release()
			e.ring.Detach(n)
			ch.node = nil
		} else if ch.Flags&FlagIteqTransfer == 0 {
			ch.Resource = nil
			ch.Start, ch.Stop = 0, 0
		}
		ch.Events = 0
	})

	e.transfer.Close()
	e.cycleOpen = false
}

// Transfer returns every Channel with a nonzero events bitmap this
// cycle, for the user to iterate.
func (e *Engine) Transfer() []*Channel {
	var out []*Channel
	e.transfer.Each(func(n *ring.Node[Channel]) {
		if n.Owner.Events != 0 {
			out = append(out, n.Owner)
		}
	})
	return out
}

func freightName(ch *Channel) string {
	if ch.Freight == nil {
		return "unknown"
	}
	return ch.Freight.Tag()
}

func isTransient(err error) bool {
	return errors.Is(err, errAgain) || errors.Is(err, unix.EINTR)
}
