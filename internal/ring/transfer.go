package ring

// TransferList is the per-cycle singly linked chain of actionable
// Channels: a Channel is on it iff its node's xnext is non-nil, and the
// sentinel link itself is non-nil exactly while a cycle is open. Pushing
// is idempotent — a Channel already queued this cycle is never queued
// twice.
type TransferList[T any] struct {
	sentinel Node[T]
}

// Open marks the list as belonging to an in-progress cycle. It must be
// called once per cycle before any Push.
func (t *TransferList[T]) Open() { t.sentinel.xnext = &t.sentinel }

// IsOpen reports whether a cycle currently owns this list.
func (t *TransferList[T]) IsOpen() bool { return t.sentinel.xnext != nil }

// Empty reports whether the list is open but has no queued nodes: used
// to decide whether the collect phase should block waiting for kernel
// readiness or return immediately.
func (t *TransferList[T]) Empty() bool { return t.sentinel.xnext == &t.sentinel }

// Push splices n onto the list unless it is already queued. No-op if the
// list is not open.
func (t *TransferList[T]) Push(n *Node[T]) {
	if !t.IsOpen() || n.OnTransferList() {
		return
	}
	n.xnext = t.sentinel.xnext
	t.sentinel.xnext = n
}

// Each visits every queued node in reverse push order (most recently
// pushed first), leaving the list intact.
func (t *TransferList[T]) Each(f func(*Node[T])) {
	for n := t.sentinel.xnext; n != nil && n != &t.sentinel; n = n.xnext {
		f(n)
	}
}

// Close drains every node's xnext link back to nil and marks the list
// shut, ending the cycle: the sentinel link is non-nil exactly while a
// cycle is open.
func (t *TransferList[T]) Close() {
	n := t.sentinel.xnext
	for n != nil && n != &t.sentinel {
		next := n.xnext
		n.xnext = nil
		n = next
	}
	t.sentinel.xnext = nil
}
