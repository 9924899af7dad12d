//go:build darwin || freebsd || dragonfly || netbsd || openbsd

// BSD readiness backend: kqueue with a self-wake EVFILT_USER kevent
// registered at Ident 0 with EV_CLEAR, and a Udata pointer round-trip to
// recover the subscribing Channel. Each Subscribe and Unsubscribe issues
// its own kevent call; subscription changes are not batched per cycle.
package notify

import (
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

type kqueueNotifier struct {
	fd      int
	scratch []unix.Kevent_t
}

// New creates a kqueue-backed Notifier and arms its self-wake event.
func New() (Notifier, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if _, err := unix.Kevent(fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("kevent add wake", err)
	}
	return &kqueueNotifier{
		fd:      fd,
		scratch: make([]unix.Kevent_t, DefaultScratchSize),
	}, nil
}

func setUdata(evt *unix.Kevent_t, p unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Pointer(&evt.Udata)) = p
}

func getUdata(evt *unix.Kevent_t) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&evt.Udata))
}

func (k *kqueueNotifier) Subscribe(fd int, userData unsafe.Pointer, interest Interest) error {
	var changes []unix.Kevent_t
	if interest&InterestRead != 0 {
		evt := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR}
		setUdata(&evt, userData)
		changes = append(changes, evt)
	}
	if interest&InterestWrite != 0 {
		evt := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR}
		setUdata(&evt, userData)
		changes = append(changes, evt)
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(k.fd, changes, nil, nil)
	return err
}

func (k *kqueueNotifier) Unsubscribe(fd int, userData unsafe.Pointer, interest Interest) error {
	var changes []unix.Kevent_t
	if interest&InterestRead != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if interest&InterestWrite != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	if len(changes) == 0 {
		return nil
	}
	// ENOENT/EBADF mean the kernel already dropped the filter (fd closed
	// underneath us); that is not a failure for a Channel unsubscribing
	// during shatter/leak.
	if _, err := unix.Kevent(k.fd, changes, nil, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return err
	}
	return nil
}

func (k *kqueueNotifier) Wait(timeout time.Duration) ([]Event, error) {
	ts := durationToTimespec(timeout)
	var out []Event
	// kqueue only retries collect while the scratch array filled to
	// capacity on the previous attempt, stopping as soon as a wait
	// returns fewer events than the array can hold. The epoll backend
	// always retries up to three times regardless; this asymmetry
	// between the two backends is intentional, not a bug.
	for attempt := 0; attempt < 3; attempt++ {
		var tsp *unix.Timespec
		if attempt == 0 {
			tsp = ts
		} else {
			tsp = &unix.Timespec{}
		}
		n, err := unix.Kevent(k.fd, nil, k.scratch, tsp)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return out, err
		}
		for i := 0; i < n; i++ {
			evt := &k.scratch[i]
			if evt.Ident == 0 && evt.Filter == unix.EVFILT_USER {
				continue // self-wake; no Channel to report
			}
			var kind Kind
			switch evt.Filter {
			case unix.EVFILT_READ:
				kind = Readable
			case unix.EVFILT_WRITE:
				kind = Writable
				if evt.Flags&unix.EV_EOF != 0 {
					kind |= EOF
				}
			}
			if evt.Flags&unix.EV_ERROR != 0 {
				kind |= Error
			}
			out = append(out, Event{UserData: getUdata(evt), Kind: kind})
		}
		if n < len(k.scratch) {
			break
		}
	}
	return out, nil
}

func (k *kqueueNotifier) Wake() error {
	for {
		_, err := unix.Kevent(k.fd, []unix.Kevent_t{{
			Ident:  0,
			Filter: unix.EVFILT_USER,
			Fflags: unix.NOTE_TRIGGER,
		}}, nil, nil)
		if err != unix.EINTR && err != unix.EAGAIN {
			if err != nil {
				return os.NewSyscallError("kevent trigger", err)
			}
			return nil
		}
	}
}

func (k *kqueueNotifier) Resize(n int) error {
	k.scratch = make([]unix.Kevent_t, n)
	return nil
}

func (k *kqueueNotifier) Close() error {
	return os.NewSyscallError("close", unix.Close(k.fd))
}

func durationToTimespec(d time.Duration) *unix.Timespec {
	if d < 0 {
		return nil
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	return &ts
}
