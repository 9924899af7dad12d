package junction

import (
	"fmt"

	"github.com/ehrlich-b/junction/internal/engine"
	"github.com/ehrlich-b/junction/internal/port"
)

// Channel is a single unidirectional transfer participant bound to one
// Port. It wraps internal/engine.Channel, which owns the state/delta/
// events bitmaps the cycle drives; this wrapper carries the pieces that
// are meaningless inside the engine: the owning Junction, the freight
// variant's public identity, and endpoint() resolution.
type Channel struct {
	inner   *engine.Channel
	j       *Junction
	variant string
}

// wrapChannel recovers (or lazily creates) the public Channel for an
// engine.Channel, using the engine Channel's opaque Link slot to cache the
// back-reference so repeated Transfer() calls don't allocate wrappers.
func wrapChannel(ec *engine.Channel) *Channel {
	if c, ok := ec.Link.(*Channel); ok {
		return c
	}
	c := &Channel{inner: ec}
	ec.Link = c
	return c
}

func newChannel(j *Junction, p *port.Port, fr freightImpl, output bool) *Channel {
	flags := engine.Flag(0)
	if output {
		flags |= engine.FlagPolarityOutput
	}
	ec := &engine.Channel{Port: p, Freight: fr, Flags: flags}
	c := &Channel{inner: ec, j: j, variant: fr.Tag()}
	ec.Link = c
	return c
}

// Acquire binds resource to the Channel as its transfer buffer. Fails if
// the Channel is terminating or still holds an unexhausted resource
// from a prior cycle.
func (c *Channel) Acquire(resource []byte) error {
	return engineErr(c.j.eng.Acquire(c.inner, resource))
}

// AcquireDatagrams binds arr to a Datagrams-variant Channel and acquires its
// backing buffer as the transfer resource in one step. The freight keeps
// arr (not just its bytes) so it can record per-slot Endpoint and length
// alongside each recvfrom/sendto.
func (c *Channel) AcquireDatagrams(arr *DatagramArray) error {
	fr, ok := c.inner.Freight.(*datagramsFreight)
	if !ok {
		return fmt.Errorf("junction: acquire_datagrams: channel variant is %q, not datagrams", c.variant)
	}
	fr.array = arr
	fr.slotSize = arr.slotSize
	return engineErr(c.j.eng.Acquire(c.inner, arr.Bytes()))
}

// Terminate requests shutdown: immediate if unattached, delta-qualified
// (observed within the next two cycles) if attached.
func (c *Channel) Terminate() {
	c.j.eng.Terminate(c.inner)
}

// Force arms a transfer attempt on the next cycle even without kernel
// readiness, synthesizing a (possibly zero-length) transfer event.
func (c *Channel) Force() {
	c.j.eng.ForceChannel(c.inner)
}

// Transfer returns the slice of the resource transferred this cycle, or
// nil if no transfer event is set.
func (c *Channel) Transfer() []byte {
	if c.inner.Events&engine.EventTransfer == 0 {
		return nil
	}
	return c.inner.Window()
}

// Terminated reports whether this cycle's events include tev_terminate.
func (c *Channel) Terminated() bool {
	return c.inner.Events&engine.EventTerminate != 0
}

// Port exposes the Channel's underlying descriptor owner, mainly for
// endpoint() resolution and tests that want to inspect Cause/Errno.
func (c *Channel) Port() *port.Port { return c.inner.Port }

// Input reports polarity: true for input Channels, false for output.
func (c *Channel) Input() bool { return c.inner.Input() }

// Variant names the freight kind this Channel was allocated with
// ("octets", "sockets", "ports", "datagrams").
func (c *Channel) Variant() string { return c.variant }

// Raised converts the Port's recorded (cause, errno) pair into an error
// for callers that want to surface a failure synchronously rather than
// observing it through the termination event. Nil while nothing failed.
func (c *Channel) Raised() error { return c.inner.Port.Raised() }

// ResizeExoresource on a Channel is accepted and does nothing: only the
// Junction owns a kevent/epoll scratch array to resize.
func (c *Channel) ResizeExoresource(int) {}
