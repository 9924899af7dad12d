package engine

import (
	"time"

	"golang.org/x/sys/unix"
)

var errAgain = unix.EAGAIN

// nowMonotonic is the engine's single clock read for the latency it
// reports to the Observer.
func nowMonotonic() time.Time { return time.Now() }
