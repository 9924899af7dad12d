package engine

import (
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/junction/internal/notify"
	"github.com/ehrlich-b/junction/internal/port"
	"github.com/ehrlich-b/junction/internal/ring"
)

// stubNotifier implements notify.Notifier without touching the kernel:
// Subscribe/Unsubscribe are no-ops, and Wait returns whatever nodes the
// test seeded via toFire, marked readable and writable.
type stubNotifier struct {
	toFire []*ring.Node[Channel]
}

func (s *stubNotifier) Subscribe(fd int, userData unsafe.Pointer, interest notify.Interest) error {
	return nil
}
func (s *stubNotifier) Unsubscribe(fd int, userData unsafe.Pointer, interest notify.Interest) error {
	return nil
}
func (s *stubNotifier) Wait(timeout time.Duration) ([]notify.Event, error) {
	events := make([]notify.Event, 0, len(s.toFire))
	for _, n := range s.toFire {
		events = append(events, notify.Event{UserData: unsafe.Pointer(n), Kind: notify.Readable | notify.Writable})
	}
	s.toFire = nil
	return events, nil
}
func (s *stubNotifier) Wake() error      { return nil }
func (s *stubNotifier) Resize(int) error { return nil }
func (s *stubNotifier) Close() error     { return nil }

// rawFreight forwards to the Port's read/write operations: the test's
// Freight implementation, standing in for Octets' real shape.
type rawFreight struct{}

func (rawFreight) Input(p *port.Port, buf []byte) (int, error)  { return p.Read(buf) }
func (rawFreight) Output(p *port.Port, buf []byte) (int, error) { return p.Write(buf) }
func (rawFreight) Unit() int                                    { return 1 }
func (rawFreight) Tag() string                                  { return "raw" }

func TestEngineEchoOverSocketpair(t *testing.T) {
	a, b, err := port.Socketpair()
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Unlatch(port.DirectionInput)
		a.Unlatch(port.DirectionOutput)
		b.Unlatch(port.DirectionInput)
		b.Unlatch(port.DirectionOutput)
	})

	notifier := &stubNotifier{}
	e := New(notifier, nil, nil)

	out := &Channel{Port: a, Freight: rawFreight{}, Flags: FlagPolarityOutput}
	in := &Channel{Port: b, Freight: rawFreight{}}
	e.AttachChannel(out)
	e.AttachChannel(in)

	require.NoError(t, e.Acquire(out, []byte("HELLO")))
	require.NoError(t, e.Acquire(in, make([]byte, 5)))

	notifier.toFire = []*ring.Node[Channel]{out.node, in.node}

	require.NoError(t, e.Enter())

	results := e.Transfer()
	assert.Len(t, results, 2)
	assert.Equal(t, []byte("HELLO"), in.Resource[:in.Stop])
	assert.Equal(t, 5, out.Stop)

	e.Exit()
}

func TestEngineRejectsReentrantCycle(t *testing.T) {
	e := New(&stubNotifier{}, nil, nil)
	require.NoError(t, e.Enter())
	err := e.Enter()
	assert.ErrorIs(t, err, ErrCycleAlreadyOpen)
	e.Exit()
}

func TestEngineTerminateCascade(t *testing.T) {
	r, w, err := port.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Unlatch(port.DirectionInput)
		w.Unlatch(port.DirectionOutput)
	})

	notifier := &stubNotifier{}
	e := New(notifier, nil, nil)
	ch := &Channel{Port: r, Freight: rawFreight{}}
	e.AttachChannel(ch)

	e.RequestTerminate()
	require.NoError(t, e.Enter())
	results := e.Transfer()
	require.Len(t, results, 1)
	assert.Equal(t, EventTerminate, results[0].Events&EventTerminate)
	e.Exit()

	assert.False(t, ch.Attached())
}

func TestEngineForceIsNoopWithoutBlockedWait(t *testing.T) {
	e := New(&stubNotifier{}, nil, nil)
	assert.NoError(t, e.Force())
}
