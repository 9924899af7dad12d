package junction

import "time"

// WaitTimeout is the cycle-level liveness bound: bounds a blocked
// collect phase so a dropped wake-up cannot hang a Junction forever.
// Not user-observable under normal operation.
const WaitTimeout = 9 * time.Second

// DefaultExoresourceSize is the initial kevent/epoll_event scratch array
// capacity a new Junction allocates.
const DefaultExoresourceSize = 64

// DefaultDatagramSlotSize is a conventional payload-space size for
// DatagramArray slots. NewDatagramArray always takes the slot size from
// its caller; rallocate does not create DatagramArrays or apply this value.
const DefaultDatagramSlotSize = 1500 // one Ethernet MTU's worth of UDP payload
