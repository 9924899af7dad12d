package ring

import "sync"

// Overflow buffer size thresholds (128KB/256KB/512KB/1MB buckets).
// junction's per-Channel resource windows are user-supplied and usually
// small, but Datagrams channels can be asked to size a single slot well
// past that; this pool holds buffers for that overflow case. Channel
// acquire() binds the caller's own buffer and does not draw on this pool.
const (
	size128k = 128 * 1024
	size256k = 256 * 1024
	size512k = 512 * 1024
	size1m   = 1024 * 1024
)

var scratchPool = struct {
	p128k, p256k, p512k, p1m sync.Pool
}{
	p128k: sync.Pool{New: func() any { b := make([]byte, size128k); return &b }},
	p256k: sync.Pool{New: func() any { b := make([]byte, size256k); return &b }},
	p512k: sync.Pool{New: func() any { b := make([]byte, size512k); return &b }},
	p1m:   sync.Pool{New: func() any { b := make([]byte, size1m); return &b }},
}

// GetScratch returns a pooled buffer of at least size bytes. Sizes above
// 1MB are allocated fresh and not returned by PutScratch.
func GetScratch(size int) []byte {
	switch {
	case size <= size128k:
		return (*scratchPool.p128k.Get().(*[]byte))[:size]
	case size <= size256k:
		return (*scratchPool.p256k.Get().(*[]byte))[:size]
	case size <= size512k:
		return (*scratchPool.p512k.Get().(*[]byte))[:size]
	case size <= size1m:
		return (*scratchPool.p1m.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutScratch returns buf to the pool matching its capacity. Buffers
// whose capacity doesn't match a bucket exactly are dropped.
func PutScratch(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size128k:
		scratchPool.p128k.Put(&buf)
	case size256k:
		scratchPool.p256k.Put(&buf)
	case size512k:
		scratchPool.p512k.Put(&buf)
	case size1m:
		scratchPool.p1m.Put(&buf)
	}
}
