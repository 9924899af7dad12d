//go:build linux

// Linux readiness backend: edge-triggered epoll with per-event
// data-pointer recovery. It keeps two epoll instances, one for read
// interest and one for write interest, so a flood of readable events
// cannot starve writable ones. The write instance is consulted on every
// second Wait while at least one fd is armed for write interest; whether
// the previous cycle saw writable readiness is not tracked.
package notify

import (
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/junction/internal/wire"
)

const (
	readFlags  = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLET
	writeFlags = unix.EPOLLOUT | unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLET
)

type epollNotifier struct {
	readFD     int
	writeFD    int
	wakeFD     int
	scratchR   []unix.EpollEvent
	scratchW   []unix.EpollEvent
	writeCount int // number of fds currently armed on writeFD
	cycle      int
}

// New creates an epoll-backed Notifier: one epoll instance for read
// interest (which also holds the wake eventfd), one for write interest.
func New() (Notifier, error) {
	readFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	writeFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(readFD)
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(readFD)
		unix.Close(writeFD)
		return nil, os.NewSyscallError("eventfd", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(readFD, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		unix.Close(readFD)
		unix.Close(writeFD)
		unix.Close(wakeFD)
		return nil, os.NewSyscallError("epoll_ctl add wake", err)
	}
	return &epollNotifier{
		readFD:   readFD,
		writeFD:  writeFD,
		wakeFD:   wakeFD,
		scratchR: make([]unix.EpollEvent, DefaultScratchSize),
		scratchW: make([]unix.EpollEvent, DefaultScratchSize),
	}, nil
}

// packEvent/unpackEvent split the 64-bit user-data word x/sys/unix
// represents as two int32 fields (Fd, Pad) back into a pointer, using
// internal/wire's kevent/epoll user-data packing helper.
func packEvent(ev *unix.EpollEvent, p unsafe.Pointer) {
	word := wire.PackPointer(p)
	ev.Fd = int32(word & 0xffffffff)
	ev.Pad = int32(word >> 32)
}

func unpackEvent(ev *unix.EpollEvent) unsafe.Pointer {
	word := uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
	return wire.UnpackPointer(word)
}

func (e *epollNotifier) Subscribe(fd int, userData unsafe.Pointer, interest Interest) error {
	if interest&InterestRead != 0 {
		ev := unix.EpollEvent{Events: uint32(readFlags)}
		packEvent(&ev, userData)
		if err := unix.EpollCtl(e.readFD, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return err
		}
	}
	if interest&InterestWrite != 0 {
		ev := unix.EpollEvent{Events: uint32(writeFlags)}
		packEvent(&ev, userData)
		if err := unix.EpollCtl(e.writeFD, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return err
		}
		e.writeCount++
	}
	return nil
}

func (e *epollNotifier) Unsubscribe(fd int, userData unsafe.Pointer, interest Interest) error {
	if interest&InterestRead != 0 {
		if err := unix.EpollCtl(e.readFD, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
			return err
		}
	}
	if interest&InterestWrite != 0 {
		if err := unix.EpollCtl(e.writeFD, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
			return err
		}
		if e.writeCount > 0 {
			e.writeCount--
		}
	}
	return nil
}

func (e *epollNotifier) Wait(timeout time.Duration) ([]Event, error) {
	var out []Event
	e.cycle++
	haswrites := e.writeCount > 0 && e.cycle%2 == 0
	if haswrites {
		n, err := epollWaitRetry(e.writeFD, e.scratchW, 0)
		if err != nil {
			return out, err
		}
		for i := 0; i < n; i++ {
			out = append(out, Event{UserData: unpackEvent(&e.scratchW[i]), Kind: classify(e.scratchW[i].Events)})
		}
	}

	ms := durationToMillis(timeout)
	// epoll always retries the read-side collect up to three times,
	// regardless of whether the scratch array filled on a prior attempt.
	// The kqueue backend only retries while the scratch array filled;
	// this asymmetry between the two backends is intentional, not a bug.
	for attempt := 0; attempt < 3; attempt++ {
		waitMs := ms
		if attempt > 0 {
			waitMs = 0
		}
		n, err := epollWaitRetry(e.readFD, e.scratchR, waitMs)
		if err != nil {
			return out, err
		}
		for i := 0; i < n; i++ {
			ev := &e.scratchR[i]
			if int(ev.Fd) == e.wakeFD && ev.Pad == 0 {
				var buf [8]byte
				unix.Read(e.wakeFD, buf[:])
				continue
			}
			out = append(out, Event{UserData: unpackEvent(ev), Kind: classify(ev.Events)})
		}
	}
	return out, nil
}

func classify(events uint32) Kind {
	var k Kind
	if events&unix.EPOLLIN != 0 {
		k |= Readable
	}
	if events&unix.EPOLLOUT != 0 {
		k |= Writable
	}
	if events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
		k |= EOF
	}
	if events&unix.EPOLLERR != 0 {
		k |= Error
	}
	return k
}

func epollWaitRetry(fd int, events []unix.EpollEvent, ms int) (int, error) {
	for {
		n, err := unix.EpollWait(fd, events, ms)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func (e *epollNotifier) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(e.wakeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("eventfd write", err)
	}
	return nil
}

func (e *epollNotifier) Resize(n int) error {
	e.scratchR = make([]unix.EpollEvent, n)
	e.scratchW = make([]unix.EpollEvent, n)
	return nil
}

func (e *epollNotifier) Close() error {
	unix.Close(e.wakeFD)
	unix.Close(e.writeFD)
	return os.NewSyscallError("close", unix.Close(e.readFD))
}

func durationToMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int(d.Milliseconds())
}
