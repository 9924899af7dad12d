package junction

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/junction/internal/port"
)

// Family distinguishes the address kinds an Endpoint can hold.
type Family int

const (
	FamilyIP4 Family = iota
	FamilyIP6
	FamilyLocal
)

// Endpoint is an immutable address value: IPv4/IPv6 host+port, or a UNIX
// socket path (or, for an anonymous UNIX socket, a peer credential pair).
// This only covers parsing and formatting these three shapes, not
// general address-family parsing.
type Endpoint struct {
	Family Family
	IP     net.IP
	Port   int
	Path   string
	UID     uint32
	GID     uint32
	hasCred bool
}

// String renders the Endpoint as "[interface]:port" for numeric
// addresses, or "directory/filename" for UNIX paths.
func (e Endpoint) String() string {
	switch e.Family {
	case FamilyLocal:
		if e.hasCred {
			return fmt.Sprintf("uid=%d,gid=%d", e.UID, e.GID)
		}
		return e.Path
	default:
		return fmt.Sprintf("[%s]:%d", e.IP.String(), e.Port)
	}
}

// ParseEndpoint re-parses a String() form back into an Endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	if strings.HasPrefix(s, "uid=") {
		var uid, gid uint32
		if _, err := fmt.Sscanf(s, "uid=%d,gid=%d", &uid, &gid); err != nil {
			return Endpoint{}, fmt.Errorf("junction: parse endpoint: %w", err)
		}
		return Endpoint{Family: FamilyLocal, UID: uid, GID: gid, hasCred: true}, nil
	}
	if strings.HasPrefix(s, "[") {
		i := strings.LastIndex(s, "]:")
		if i < 0 {
			return Endpoint{}, fmt.Errorf("junction: parse endpoint: malformed %q", s)
		}
		ip := net.ParseIP(s[1:i])
		if ip == nil {
			return Endpoint{}, fmt.Errorf("junction: parse endpoint: bad address %q", s[1:i])
		}
		port, err := strconv.Atoi(s[i+2:])
		if err != nil {
			return Endpoint{}, fmt.Errorf("junction: parse endpoint: bad port: %w", err)
		}
		fam := FamilyIP4
		if ip.To4() == nil {
			fam = FamilyIP6
		}
		return Endpoint{Family: fam, IP: ip, Port: port}, nil
	}
	return Endpoint{Family: FamilyLocal, Path: s}, nil
}

// endpointFromSockaddr converts a kernel sockaddr (as returned by
// Getsockname/Getpeername/Recvfrom) into an Endpoint.
func endpointFromSockaddr(sa unix.Sockaddr) Endpoint {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return Endpoint{Family: FamilyIP4, IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return Endpoint{Family: FamilyIP6, IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrUnix:
		if a.Name == "" {
			return Endpoint{Family: FamilyLocal}
		}
		return Endpoint{Family: FamilyLocal, Path: a.Name}
	default:
		return Endpoint{Family: FamilyLocal}
	}
}

// endpointToSockaddr converts an Endpoint back into a kernel sockaddr, for
// sendto/connect.
func endpointToSockaddr(e Endpoint) unix.Sockaddr {
	switch e.Family {
	case FamilyIP4:
		sa := &unix.SockaddrInet4{Port: e.Port}
		copy(sa.Addr[:], e.IP.To4())
		return sa
	case FamilyIP6:
		sa := &unix.SockaddrInet6{Port: e.Port}
		copy(sa.Addr[:], e.IP.To16())
		return sa
	default:
		return &unix.SockaddrUnix{Name: e.Path}
	}
}

// Endpoint resolves the relevant address for c: peer for an output
// Channel, local for input; for an anonymous UNIX-domain socket it returns
// the peer credential pair via getpeereid (SO_PEERCRED on Linux).
func (c *Channel) Endpoint() (Endpoint, error) {
	fd := c.inner.Port.FD
	if c.inner.Port.Kind != port.KindSocket {
		return Endpoint{}, fmt.Errorf("junction: endpoint: not a socket channel")
	}
	var sa unix.Sockaddr
	var err error
	if c.Input() {
		sa, err = unix.Getsockname(fd)
	} else {
		sa, err = unix.Getpeername(fd)
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("junction: endpoint: %w", err)
	}
	if u, ok := sa.(*unix.SockaddrUnix); ok && u.Name == "" {
		if uid, gid, ok := peerCredentials(fd); ok {
			return Endpoint{Family: FamilyLocal, UID: uid, GID: gid, hasCred: true}, nil
		}
	}
	return endpointFromSockaddr(sa), nil
}
