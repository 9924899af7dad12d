// Package ring implements the intrusive doubly linked Channel ring and
// the per-cycle singly linked transfer list: the ring's owner is its own
// sentinel node, so iteration never special-cases an empty ring, and a
// Channel's membership is witnessed purely by its link pointers rather
// than by a separate owned collection.
//
// The node type is generic over its owner so the ring can be reused
// without this package depending on the root junction package.
package ring

// Node is one ring member. The zero Node is not usable; use New or
// Sentinel to obtain one.
type Node[T any] struct {
	prev, next *Node[T]
	xnext      *Node[T] // transfer-list link; nil iff not queued for this cycle
	Owner      *T
}

// OnTransferList reports whether this node is currently spliced onto a
// TransferList: exactly the actionable Channels appear there, so this
// doubles as the "is this Channel actionable this cycle" check.
func (n *Node[T]) OnTransferList() bool { return n.xnext != nil }

// NewNode allocates a detached node owning v.
func NewNode[T any](v *T) *Node[T] {
	return &Node[T]{Owner: v}
}

// Ring is the Channel ring; the Junction's engine holds one, and the ring's
// own sentinel node stands in for the Junction.
type Ring[T any] struct {
	sentinel Node[T]
}

// New returns an empty ring, its sentinel linked to itself.
func New[T any]() *Ring[T] {
	r := &Ring[T]{}
	r.sentinel.prev = &r.sentinel
	r.sentinel.next = &r.sentinel
	return r
}

// Sentinel returns the ring's sentinel node (never itself attached to
// anything but the ring — callers use it as the "not a real Channel"
// iteration boundary).
func (r *Ring[T]) Sentinel() *Node[T] { return &r.sentinel }

// Empty reports whether the ring has no members beyond its sentinel.
func (r *Ring[T]) Empty() bool { return r.sentinel.next == &r.sentinel }

// Attach splices n onto the ring immediately before the sentinel
// (equivalent to append at the tail).
func (r *Ring[T]) Attach(n *Node[T]) {
	n.prev = r.sentinel.prev
	n.next = &r.sentinel
	r.sentinel.prev.next = n
	r.sentinel.prev = n
}

// Detach removes n from the ring. It is a no-op if n is already detached.
func (r *Ring[T]) Detach(n *Node[T]) {
	if n.prev == nil || n.next == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

// Attached reports whether n is currently spliced into this ring. The
// sentinel, which owns nothing, never reports itself attached.
func (n *Node[T]) Attached() bool { return n.Owner != nil && n.prev != nil && n.next != nil }

// Each walks the ring front to back, calling f for every member (the
// sentinel excluded). f may detach n from the ring during the call; Each
// has already captured the next pointer before invoking f.
func (r *Ring[T]) Each(f func(*Node[T])) {
	for n := r.sentinel.next; n != &r.sentinel; {
		next := n.next
		f(n)
		n = next
	}
}

// EachReverse walks back-to-front starting just before the sentinel,
// calling visit on each node and stopping as soon as visit returns true
// (visit decides whether that node is processed). This is the
// delta-drain order: walking backward lets
// user code enqueue by splicing immediately before the sentinel, and
// the walk naturally terminates at the first node left over from a
// previous cycle.
func (r *Ring[T]) EachReverse(visit func(*Node[T]) (stop bool)) {
	for n := r.sentinel.prev; n != &r.sentinel; {
		prev := n.prev
		if visit(n) {
			return
		}
		n = prev
	}
}
