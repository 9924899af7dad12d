// Package port owns kernel descriptors: the only place in junction that
// issues file/socket syscalls directly. A Port wraps exactly one kernel
// resource; each operation builds a request, issues exactly one syscall
// family, and maps the result onto a structured error instead of
// panicking or aborting the caller.
package port

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Kind classifies a descriptor, recovered via an fstat read-back after
// the descriptor is acquired.
type Kind int

const (
	KindUnknown Kind = iota
	KindPipe
	KindFIFO
	KindDevice
	KindTTY
	KindSocket
	KindFile
	KindKqueue
	KindBad
)

// Cause names the syscall family responsible for a Port's last error.
type Cause string

const (
	CauseNone      Cause = "none"
	CauseListen    Cause = "listen"
	CauseConnect   Cause = "connect"
	CauseBind      Cause = "bind"
	CauseAccept    Cause = "accept"
	CauseSocket    Cause = "socket"
	CauseRead      Cause = "read"
	CauseWrite     Cause = "write"
	CauseRecv      Cause = "recv"
	CauseSend      Cause = "send"
	CauseShatter    Cause = "shatter"
	CauseLeak       Cause = "leak"
	CauseVoid       Cause = "void"
	CauseEOF        Cause = "eof"
	CausePipe       Cause = "pipe"
	CauseSocketpair Cause = "socketpair"
	CauseOpen       Cause = "open"
	CauseIdentify   Cause = "identify"
)

const (
	latchInput  int32 = 1 << 0
	latchOutput int32 = 1 << 1
)

// Direction selects which half of a Port a Channel owns.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

// Port owns one kernel descriptor plus the metadata recording its last
// failing syscall. A descriptor shared by two Channels (the input and
// output halves of a bidirectional socket) is represented by one Port
// with both latch bits set; it closes exactly once, when both clear. Pipe
// and Socketpair return one Port per descriptor.
type Port struct {
	FD    int
	Kind  Kind
	Cause Cause
	Errno error

	latch  int32 // atomic; see latchInput/latchOutput
	leaked bool
}

// New wraps an already-open fd, latching it for dirs. The descriptor is
// switched to non-blocking: the engine's transfer attempts run under
// edge-triggered readiness and must see EAGAIN instead of blocking the
// cycle. A no-op for regular files, which are always ready.
func New(fd int, kind Kind, dirs ...Direction) *Port {
	_ = unix.SetNonblock(fd, true)
	p := &Port{FD: fd, Kind: kind, Cause: CauseNone}
	for _, d := range dirs {
		p.latchOn(d)
	}
	return p
}

func (p *Port) latchOn(d Direction) {
	var bit int32
	switch d {
	case DirectionInput:
		bit = latchInput
	case DirectionOutput:
		bit = latchOutput
	}
	for {
		old := atomic.LoadInt32(&p.latch)
		if atomic.CompareAndSwapInt32(&p.latch, old, old|bit) {
			return
		}
	}
}

func (p *Port) fail(cause Cause, err error) error {
	p.Cause = cause
	p.Errno = err
	return fmt.Errorf("port: %s: %w", cause, err)
}

// Raised converts the recorded (cause, errno) pair into an error, for
// callers that want to surface a Channel's failure synchronously instead
// of through the tev_terminate path. Nil while no syscall has failed.
func (p *Port) Raised() error {
	if p.Cause == CauseNone || p.Cause == "" {
		return nil
	}
	if p.Errno == nil {
		return fmt.Errorf("port: %s", p.Cause)
	}
	return fmt.Errorf("port: %s: %w", p.Cause, p.Errno)
}

// Identify classifies fd by fstat, the way the engine validates an
// acquired descriptor before building a Channel over it.
func Identify(fd int) (Kind, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return KindBad, err
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFIFO:
		return KindFIFO, nil
	case unix.S_IFCHR:
		return KindTTY, nil
	case unix.S_IFSOCK:
		return KindSocket, nil
	case unix.S_IFREG:
		return KindFile, nil
	default:
		return KindUnknown, nil
	}
}

// Listen opens a listening socket on address (TCP for ip4/ip6, stream
// UNIX for local paths) and returns a Port latched for input (accepted
// connections arrive on the input side only).
func Listen(network, address string) (*Port, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("port: listen: %w", err)
	}
	fd, err := fdFromListener(ln)
	if err != nil {
		ln.Close()
		return nil, err
	}
	return New(fd, KindSocket, DirectionInput), nil
}

// Connect dials address and returns a Port latched for both directions.
func Connect(network, address string) (*Port, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("port: connect: %w", err)
	}
	fd, err := fdFromConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return New(fd, KindSocket, DirectionInput, DirectionOutput), nil
}

// ListenPacket binds a UDP socket for Datagrams-freight allocation,
// latched both ways since a bound UDP socket both receives and sends.
func ListenPacket(network, address string) (*Port, error) {
	conn, err := net.ListenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("port: listen_packet: %w", err)
	}
	f, ok := conn.(filer)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("port: listen_packet: type %T has no usable fd", conn)
	}
	file, err := f.File()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("port: listen_packet fd: %w", err)
	}
	return New(takeFD(file), KindSocket, DirectionInput, DirectionOutput), nil
}

// BindConnect dials address from a specific local bind address.
func BindConnect(network, bindAddr, connectAddr string) (*Port, error) {
	d := net.Dialer{LocalAddr: mustResolve(network, bindAddr)}
	conn, err := d.Dial(network, connectAddr)
	if err != nil {
		return nil, fmt.Errorf("port: bind_connect: %w", err)
	}
	fd, err := fdFromConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return New(fd, KindSocket, DirectionInput, DirectionOutput), nil
}

// Open opens path with the given flags (O_RDONLY/O_WRONLY/O_APPEND/...),
// used for file-backed Channels which are always transferable.
func Open(path string, flags int, mode uint32) (*Port, error) {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return nil, fmt.Errorf("port: open: %w", err)
	}
	kind, _ := Identify(fd)
	dir := DirectionInput
	if flags&unix.O_WRONLY != 0 || flags&unix.O_RDWR != 0 {
		dir = DirectionOutput
	}
	return New(fd, kind, dir), nil
}

// Pipe creates an anonymous pipe, returning the read-side Port (input)
// and write-side Port (output) as two independent descriptors.
func Pipe() (readP, writeP *Port, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, fmt.Errorf("port: pipe: %w", err)
	}
	return New(fds[0], KindPipe, DirectionInput), New(fds[1], KindPipe, DirectionOutput), nil
}

// Socketpair creates a connected pair of UNIX domain sockets, used for
// bidirectional (octets, spawn, bidirectional) and Ports-freight
// allocation requests. Each endpoint is its own Port, latched both ways
// since a socketpair half is itself bidirectional.
func Socketpair() (a, b *Port, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("port: socketpair: %w", err)
	}
	return New(fds[0], KindSocket, DirectionInput, DirectionOutput),
		New(fds[1], KindSocket, DirectionInput, DirectionOutput), nil
}

// Unlatch decrements the half-close latch for dir. When both directions
// have unlatched, it performs shutdown (for sockets) and close.
func (p *Port) Unlatch(dir Direction) error {
	if p.leaked {
		return nil
	}
	var bit int32
	switch dir {
	case DirectionInput:
		bit = latchInput
	case DirectionOutput:
		bit = latchOutput
	}
	for {
		old := atomic.LoadInt32(&p.latch)
		if old&bit == 0 {
			return nil // already unlatched for this direction
		}
		if atomic.CompareAndSwapInt32(&p.latch, old, old&^bit) {
			break
		}
	}
	if atomic.LoadInt32(&p.latch) != 0 {
		return nil // other direction still latched; descriptor stays open
	}
	if p.Kind == KindSocket {
		_ = unix.Shutdown(p.FD, unix.SHUT_RDWR)
	}
	return unix.Close(p.FD)
}

// Leak marks the descriptor no-close: the user assumes ownership and
// junction will never close it, even when both latches clear.
func (p *Port) Leak() {
	p.leaked = true
}

// Shatter drops the Port's claim without shutdown, used when a Junction
// subscription would otherwise outlive a still-wanted descriptor (e.g.
// void() after fork).
func (p *Port) Shatter() {
	p.Cause = CauseShatter
	atomic.StoreInt32(&p.latch, 0)
	p.leaked = true
}

// filer is satisfied by *net.TCPListener, *net.UnixListener, *net.TCPConn
// and *net.UnixConn: File() dup()s the underlying descriptor and hands
// back an *os.File the caller owns (the original net.Listener/net.Conn
// keeps its own copy and must still be closed by its owner).
type filer interface {
	File() (*os.File, error)
}

func fdFromListener(ln net.Listener) (int, error) {
	f, ok := ln.(filer)
	if !ok {
		return 0, fmt.Errorf("port: listener type %T has no usable fd", ln)
	}
	file, err := f.File()
	if err != nil {
		return 0, fmt.Errorf("port: listener fd: %w", err)
	}
	return takeFD(file), nil
}

func fdFromConn(conn net.Conn) (int, error) {
	f, ok := conn.(filer)
	if !ok {
		return 0, fmt.Errorf("port: conn type %T has no usable fd", conn)
	}
	file, err := f.File()
	if err != nil {
		return 0, fmt.Errorf("port: conn fd: %w", err)
	}
	return takeFD(file), nil
}

// takeFD extracts the raw descriptor from file and detaches it, so
// closing file (required to release its *os.File wrapper) does not close
// the descriptor out from under the new Port.
func takeFD(file *os.File) int {
	fd := int(file.Fd())
	dup, err := unix.Dup(fd)
	file.Close()
	if err != nil {
		return fd
	}
	return dup
}

func mustResolve(network, address string) net.Addr {
	switch network {
	case "tcp", "tcp4", "tcp6":
		addr, _ := net.ResolveTCPAddr(network, address)
		return addr
	case "udp", "udp4", "udp6":
		addr, _ := net.ResolveUDPAddr(network, address)
		return addr
	default:
		addr, _ := net.ResolveUnixAddr(network, address)
		return addr
	}
}
