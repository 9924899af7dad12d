//go:build integration

// Package integration exercises a real Junction against a live platform
// notifier (kqueue or epoll, picked by build tag in internal/notify).
// Unlike test/unit these tests touch actual kernel descriptors and so are
// gated behind the integration build tag rather than run by default.
package integration

import (
	"net"
	"testing"
	"time"

	"github.com/ehrlich-b/junction"
)

func TestEchoOverRealTCP(t *testing.T) {
	j, err := junction.New(junction.Options{})
	if err != nil {
		t.Fatalf("new junction: %v", err)
	}
	defer j.Void()

	addr := "127.0.0.1:19191"
	res, err := j.Rallocate("sockets,ip4,tcp", junction.AllocParams{Connect: addr})
	if err != nil {
		t.Fatalf("rallocate listener: %v", err)
	}
	listener := res.Input
	j.Acquire(listener)
	if err := listener.Acquire(make([]byte, 16*4)); err != nil {
		t.Fatalf("acquire listener resource: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			t.Errorf("dial: %v", err)
			return
		}
		defer conn.Close()
		if _, err := conn.Write([]byte("ping")); err != nil {
			t.Errorf("write: %v", err)
			return
		}
		buf := make([]byte, 4)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := conn.Read(buf); err != nil {
			t.Errorf("read: %v", err)
		}
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := j.Enter(); err != nil {
			t.Fatalf("enter: %v", err)
		}
		for range j.Transfer() {
		}
		j.Exit()
		select {
		case <-done:
			return
		default:
		}
	}
	t.Error("timed out waiting for echo round trip")
}

func TestDatagramAcquireAndCycleReal(t *testing.T) {
	j, err := junction.New(junction.Options{})
	if err != nil {
		t.Fatalf("new junction: %v", err)
	}
	defer j.Void()

	res, err := j.Rallocate("datagrams,ip4", junction.AllocParams{Connect: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("rallocate datagrams: %v", err)
	}
	arr := junction.NewDatagramArray(2, junction.DefaultDatagramSlotSize)
	if err := res.Input.AcquireDatagrams(arr); err != nil {
		t.Fatalf("acquire_datagrams: %v", err)
	}
	j.Acquire(res.Input)
	j.Acquire(res.Output)

	if err := j.Enter(); err != nil {
		t.Fatalf("enter: %v", err)
	}
	j.Exit()
}

func TestForceWakeAbortsBlockedCollect(t *testing.T) {
	j, err := junction.New(junction.Options{})
	if err != nil {
		t.Fatalf("new junction: %v", err)
	}
	defer j.Void()

	res, err := j.Rallocate("sockets,ip4,tcp", junction.AllocParams{Connect: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("rallocate listener: %v", err)
	}
	j.Acquire(res.Input)
	if err := res.Input.Acquire(make([]byte, 4)); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// First cycle drains the attach delta; the second has an empty
	// transfer list and blocks in the collect wait.
	if err := j.Enter(); err != nil {
		t.Fatalf("enter: %v", err)
	}
	j.Exit()

	done := make(chan error, 1)
	go func() {
		err := j.Enter()
		j.Exit()
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := j.Force(); err != nil {
		t.Fatalf("force: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("enter returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("force did not abort the blocked collect within 1s")
	}
}

func TestTerminateCleansUpRealDescriptors(t *testing.T) {
	j, err := junction.New(junction.Options{})
	if err != nil {
		t.Fatalf("new junction: %v", err)
	}
	defer j.Void()

	res, err := j.Rallocate("octets,spawn,bidirectional", junction.AllocParams{})
	if err != nil {
		t.Fatalf("rallocate: %v", err)
	}
	j.Acquire(res.Input)
	j.Acquire(res.Output)

	j.Terminate()

	if err := j.Enter(); err != nil {
		t.Fatalf("enter: %v", err)
	}
	j.Exit()
}
