package port

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeLatchesEachSideIndependently(t *testing.T) {
	r, w, err := Pipe()
	require.NoError(t, err)

	msg := []byte("hi")
	n, err := w.Write(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)

	got := make([]byte, len(msg))
	n, err = r.Read(got)
	require.NoError(t, err)
	assert.Equal(t, msg, got[:n])

	require.NoError(t, w.Unlatch(DirectionOutput))
	require.NoError(t, r.Unlatch(DirectionInput))
}

func TestUnlatchIsIdempotent(t *testing.T) {
	r, w, err := Pipe()
	require.NoError(t, err)
	require.NoError(t, r.Unlatch(DirectionInput))
	require.NoError(t, r.Unlatch(DirectionInput)) // second call must not double-close
	require.NoError(t, w.Unlatch(DirectionOutput))
}

func TestSocketpairBothHalvesBidirectional(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)

	msg := []byte("ping")
	_, err = a.Write(msg)
	require.NoError(t, err)
	got := make([]byte, len(msg))
	n, err := b.Read(got)
	require.NoError(t, err)
	assert.Equal(t, msg, got[:n])

	require.NoError(t, a.Unlatch(DirectionInput))
	require.NoError(t, a.Unlatch(DirectionOutput))
	require.NoError(t, b.Unlatch(DirectionInput))
	require.NoError(t, b.Unlatch(DirectionOutput))
}

func TestLeakSkipsClose(t *testing.T) {
	r, w, err := Pipe()
	require.NoError(t, err)
	r.Leak()
	require.NoError(t, r.Unlatch(DirectionInput)) // no-op: leaked descriptors are never closed
	require.NoError(t, w.Unlatch(DirectionOutput))
}

func TestIdentifyClassifiesPipe(t *testing.T) {
	r, w, err := Pipe()
	require.NoError(t, err)
	defer r.Unlatch(DirectionInput)
	defer w.Unlatch(DirectionOutput)

	kind, err := Identify(r.FD)
	require.NoError(t, err)
	assert.Equal(t, KindFIFO, kind)
}

func TestListenYieldsSocketPort(t *testing.T) {
	ln, err := Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Unlatch(DirectionInput)

	assert.Equal(t, KindSocket, ln.Kind)
}

func TestAcceptOnIdleListenerRecordsCause(t *testing.T) {
	ln, err := Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Unlatch(DirectionInput)

	// Non-blocking listener with nothing queued: the attempt fails and
	// the Port records which syscall family failed.
	_, err = ln.Accept()
	require.Error(t, err)
	assert.Equal(t, CauseAccept, ln.Cause)
	assert.Error(t, ln.Raised())
}

func TestSendRecvFDsOverSocketpair(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Unlatch(DirectionInput)
		a.Unlatch(DirectionOutput)
		b.Unlatch(DirectionInput)
		b.Unlatch(DirectionOutput)
	})

	r, w, err := Pipe()
	require.NoError(t, err)
	defer w.Unlatch(DirectionOutput)
	defer r.Unlatch(DirectionInput)

	require.NoError(t, a.SendFDs([]int{r.FD}))

	fds, err := b.RecvFDs(1)
	require.NoError(t, err)
	require.Len(t, fds, 1)

	passed := New(fds[0], KindFIFO, DirectionInput)
	require.NoError(t, passed.Unlatch(DirectionInput))
}
