package junction

import (
	"encoding/binary"
	"fmt"

	"github.com/ehrlich-b/junction/internal/engine"
	"github.com/ehrlich-b/junction/internal/port"
)

// freightImpl is the interfaces.Freight vtable (input_op, output_op, unit,
// tag), chosen once at Channel construction and never changed. Every
// operation goes through the Port, which owns the descriptor and records
// (cause, errno) on failure.
type freightImpl interface {
	Input(p *port.Port, buf []byte) (int, error)
	Output(p *port.Port, buf []byte) (int, error)
	Unit() int
	Tag() string
}

// octetsFreight is a plain byte-stream Channel: read/recv in, write/send
// out. Covers TCP, UDP-connected, UNIX-stream, pipe, and plain-file
// descriptors alike, since all of them answer to read(2)/write(2).
type octetsFreight struct{}

func (octetsFreight) Input(p *port.Port, buf []byte) (int, error)  { return p.Read(buf) }
func (octetsFreight) Output(p *port.Port, buf []byte) (int, error) { return p.Write(buf) }
func (octetsFreight) Unit() int                                    { return 1 }
func (octetsFreight) Tag() string                                  { return "octets" }

// intSize is sizeof(int) in the accepted/passed-fd arrays (matches a C int,
// not a Go int, since these arrays cross the kernel boundary as raw fds).
const intSize = 4

// socketsFreight fills a Channel's resource with accepted connection
// fds. Input-only: Output is never called since a Channel allocated
// this way is always a listener's input side.
type socketsFreight struct{}

func (socketsFreight) Input(p *port.Port, buf []byte) (int, error) {
	n := 0
	for n+intSize <= len(buf) {
		fd, err := p.Accept()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		binary.LittleEndian.PutUint32(buf[n:], uint32(fd))
		n += intSize
	}
	return n, nil
}

func (socketsFreight) Output(p *port.Port, buf []byte) (int, error) {
	return 0, fmt.Errorf("junction: sockets freight has no output operation")
}

func (socketsFreight) Unit() int   { return intSize }
func (socketsFreight) Tag() string { return "sockets" }

// portsFreight passes bare file descriptors between processes over a
// UNIX domain socket via SCM_RIGHTS.
type portsFreight struct{}

func (portsFreight) Input(p *port.Port, buf []byte) (int, error) {
	max := len(buf) / intSize
	if max == 0 {
		return 0, nil
	}
	fds, err := p.RecvFDs(max)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, fd := range fds {
		if n+intSize > len(buf) {
			break
		}
		binary.LittleEndian.PutUint32(buf[n:], uint32(fd))
		n += intSize
	}
	return n, nil
}

func (portsFreight) Output(p *port.Port, buf []byte) (int, error) {
	count := len(buf) / intSize
	fds := make([]int, count)
	for i := 0; i < count; i++ {
		fds[i] = int(binary.LittleEndian.Uint32(buf[i*intSize:]))
	}
	if err := p.SendFDs(fds); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (portsFreight) Unit() int   { return intSize }
func (portsFreight) Tag() string { return "ports" }

// datagramsFreight drives one DatagramArray's slots via recvfrom/sendto.
// It keeps a back-reference to the owning engine.Channel so Input/Output
// can recover the current slot index from Stop without the Freight
// interface needing a wider signature.
type datagramsFreight struct {
	array    *DatagramArray
	slotSize int
	ch       *engine.Channel
}

func (d *datagramsFreight) slotIndex() int {
	if d.slotSize == 0 {
		return 0
	}
	return d.ch.Stop / d.slotSize
}

// Input and Output both advance Stop by exactly one slot per call
// regardless of the actual datagram length, so slotIndex stays aligned to
// slot boundaries across cycles; the real received/sent length lives in
// the array's per-slot Record, not in the Stop delta.
func (d *datagramsFreight) Input(p *port.Port, buf []byte) (int, error) {
	if d.array == nil {
		return 0, nil
	}
	idx := d.slotIndex()
	if idx >= d.array.Len() || len(buf) < d.slotSize {
		return 0, nil
	}
	n, from, err := p.RecvFrom(buf[:d.slotSize])
	if err != nil {
		return 0, err
	}
	d.array.records[idx].Len = n
	if from != nil {
		d.array.addrs[idx] = endpointFromSockaddr(from)
	}
	return d.slotSize, nil
}

func (d *datagramsFreight) Output(p *port.Port, buf []byte) (int, error) {
	if d.array == nil {
		return 0, nil
	}
	idx := d.slotIndex()
	if idx >= d.array.Len() || len(buf) < d.slotSize {
		return 0, nil
	}
	n := d.array.records[idx].Len
	if n == 0 {
		n = d.slotSize
	}
	if err := p.SendTo(buf[:n], endpointToSockaddr(d.array.addrs[idx])); err != nil {
		return 0, err
	}
	return d.slotSize, nil
}

func (d *datagramsFreight) Unit() int   { return 1 }
func (d *datagramsFreight) Tag() string { return "datagrams" }
