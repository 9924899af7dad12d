package junction

import (
	"time"
	"unsafe"

	"github.com/ehrlich-b/junction/internal/engine"
	"github.com/ehrlich-b/junction/internal/logging"
	"github.com/ehrlich-b/junction/internal/notify"
)

// StubNotifier is a notify.Notifier that never touches kqueue/epoll:
// Subscribe/Unsubscribe are no-ops, Wait returns whatever the test queued
// via Fire, and Wake/Resize/Close are no-ops. A drop-in for the real
// kernel-facing notifier so tests can drive the cycle engine
// deterministically, paired with real (but cheap and local)
// pipe/socketpair Ports.
type StubNotifier struct {
	pending []notify.Event
}

// NewStubNotifier creates an empty StubNotifier.
func NewStubNotifier() *StubNotifier { return &StubNotifier{} }

func (s *StubNotifier) Subscribe(fd int, userData unsafe.Pointer, interest notify.Interest) error {
	return nil
}

func (s *StubNotifier) Unsubscribe(fd int, userData unsafe.Pointer, interest notify.Interest) error {
	return nil
}

func (s *StubNotifier) Wait(timeout time.Duration) ([]notify.Event, error) {
	ev := s.pending
	s.pending = nil
	return ev, nil
}

func (s *StubNotifier) Wake() error      { return nil }
func (s *StubNotifier) Resize(int) error { return nil }
func (s *StubNotifier) Close() error     { return nil }

// Fire queues a synthetic readiness event for ch, returned by the
// Junction's next Enter call. ch must already be attached via a Junction
// built with NewForTesting over this same StubNotifier.
func (s *StubNotifier) Fire(ch *Channel, kind notify.Kind) {
	node := ch.inner.NodeForTesting()
	if node == nil {
		return
	}
	s.pending = append(s.pending, notify.Event{UserData: unsafe.Pointer(node), Kind: kind})
}

// NewForTesting builds a Junction over an arbitrary notify.Notifier
// (typically a *StubNotifier) instead of the real platform one, so tests
// can drive cycles without a live kqueue/epoll handle.
func NewForTesting(notifier notify.Notifier, opts Options) *Junction {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	j := &Junction{obs: opts.Observer}
	j.eng = engine.New(notifier, logger, engineObserver{opts.Observer})
	return j
}
