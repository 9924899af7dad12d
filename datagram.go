package junction

import "github.com/ehrlich-b/junction/internal/wire"

// DatagramArray is the resource type for Datagrams freight Channels: a
// single backing buffer packed into equal-sized slots (internal/wire.Layout),
// each slot paired with the Endpoint it was received from or will be sent
// to. Slicing aliases the same backing memory; buffer layout and slot
// addressing live in internal/wire, address parsing and formatting stay
// here.
type DatagramArray struct {
	buf      []byte
	records  []wire.Record
	slotSize int
	addrs    []Endpoint
}

// NewDatagramArray packs n slots of slotSize payload bytes each.
func NewDatagramArray(n, slotSize int) *DatagramArray {
	buf, records := wire.Layout(n, slotSize)
	return &DatagramArray{buf: buf, records: records, slotSize: slotSize, addrs: make([]Endpoint, n)}
}

// Bytes exposes the backing buffer, used as the Channel's acquired
// resource.
func (d *DatagramArray) Bytes() []byte { return d.buf }

// Len reports the number of slots.
func (d *DatagramArray) Len() int { return len(d.records) }

// Slot returns slot i's payload-space.
func (d *DatagramArray) Slot(i int) []byte { return d.records[i].Slot(d.buf) }

// SetEndpoint sets slot i's destination address, for an outbound send.
func (d *DatagramArray) SetEndpoint(i int, e Endpoint) { d.addrs[i] = e }

// Endpoint returns slot i's address: the destination for a send, or the
// sender recovered by recvfrom after a receive.
func (d *DatagramArray) Endpoint(i int) Endpoint { return d.addrs[i] }

// SetLen records how many bytes slot i actually holds, for a send where
// the caller filled less than the full slot.
func (d *DatagramArray) SetLen(i, n int) { d.records[i].Len = n }

// Slice returns a view over slots [from, to). The new array aliases the
// same backing memory; the original controls its lifetime.
func (d *DatagramArray) Slice(from, to int) *DatagramArray {
	return &DatagramArray{
		buf:      d.buf,
		records:  d.records[from:to],
		slotSize: d.slotSize,
		addrs:    d.addrs[from:to],
	}
}
