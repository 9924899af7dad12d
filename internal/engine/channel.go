package engine

import (
	"github.com/ehrlich-b/junction/internal/interfaces"
	"github.com/ehrlich-b/junction/internal/port"
	"github.com/ehrlich-b/junction/internal/ring"
)

// Channel is the engine-level representation of a unidirectional
// transfer participant: bound to a Port, carrying a user-supplied
// resource window and the state/delta/events bitmaps the cycle drives.
// The root junction package's public Channel type wraps one of these and
// forwards acquire/terminate/force/transfer to the owning Engine.
type Channel struct {
	Port    *port.Port
	Freight interfaces.Freight
	Link    interface{} // user-storage slot; opaque to the engine

	Resource []byte
	Start    int
	Stop     int

	Flags  Flag
	Delta  Flag
	Events Event

	node *ring.Node[Channel]
}

// Attached reports whether the Channel currently belongs to a Junction's
// ring (invariant 1: a Channel belongs to at most one Junction).
func (c *Channel) Attached() bool { return c.node != nil && c.node.Attached() }

// NodeForTesting exposes the ring node backing this Channel, so a test
// harness can synthesize notify.Event{UserData: ...} without touching a
// real kqueue/epoll handle.
func (c *Channel) NodeForTesting() *ring.Node[Channel] { return c.node }

// Input reports whether this Channel is an input (read-direction)
// Channel rather than an output (write-direction) one.
func (c *Channel) Input() bool { return c.Flags&FlagPolarityOutput == 0 }

// Window returns the byte range transferred so far this cycle.
func (c *Channel) Window() []byte { return c.Resource[c.Start:c.Stop] }

func (c *Channel) release() {
	if c.Port != nil {
		dir := port.DirectionInput
		if !c.Input() {
			dir = port.DirectionOutput
		}
		_ = c.Port.Unlatch(dir)
	}
	c.Resource = nil
	c.Link = nil
}
