// Package interfaces provides internal interface definitions shared across
// junction's packages. These are separate from the public junction package
// to avoid import cycles between the root package and internal/port,
// internal/engine, and internal/notify.
package interfaces

import "github.com/ehrlich-b/junction/internal/port"

// Freight is the per-variant I/O contract a Channel's freight tag supplies.
// Octets, Sockets, Ports, and Datagrams each implement Freight over the
// Channel's resource window; the engine never knows which variant it is
// driving. All I/O goes through the Port — the descriptor owner is the
// only place that issues syscalls, and it records (cause, errno) on every
// failing attempt.
type Freight interface {
	// Input reads into buf, returning the count transferred this attempt.
	Input(p *port.Port, buf []byte) (n int, err error)
	// Output writes buf, returning the count transferred this attempt.
	Output(p *port.Port, buf []byte) (n int, err error)
	// Unit is the size in bytes of one logical element of the resource
	// (1 for byte streams and datagrams, sizeof(int) for fd arrays).
	Unit() int
	// Tag names the freight variant ("octets", "sockets", "ports",
	// "datagrams"), chosen once at Channel construction.
	Tag() string
}

// Logger is the logging contract Options.Logger accepts; the engine
// itself only calls its Debugf/Printf subset. Implementations must be
// safe for concurrent use.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer receives metrics events from the cycle engine. Implementations
// must be thread-safe: methods are called from inside a cycle under the
// engine's exclusion lock (phase 7) as well as, for ObserveWait, around
// the unlocked collect phase.
type Observer interface {
	ObserveTransfer(freight string, bytes uint64, latencyNs uint64, success bool)
	ObserveTerminate(freight string, cause string)
	ObserveWait(willWait bool, latencyNs uint64)
	ObserveQueueDepth(depth int)
}
