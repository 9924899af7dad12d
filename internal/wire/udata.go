// Package wire provides the byte- and pointer-level packing helpers the
// notification shim and DatagramArray need: recovering a Go pointer from a
// kevent/epoll user-data word, and laying out DatagramArray's packed
// {address, payload} records over one backing buffer. Fields are accessed
// at fixed offsets with no reflection.
package wire

import "unsafe"

// PackPointer stores p in a uint64-sized kernel user-data word (kqueue's
// Udata, epoll's data.u64), so the notifier can recover the subscribing
// Channel from a returned kevent/epoll_event.
func PackPointer(p unsafe.Pointer) uint64 {
	return uint64(uintptr(p))
}

// UnpackPointer is PackPointer's inverse.
func UnpackPointer(word uint64) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&word))
}
