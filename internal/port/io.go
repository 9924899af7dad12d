package port

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Read issues read(2) against the Port's descriptor. Transient errors
// (EAGAIN/EINTR) are returned unwrapped so the engine's phase 7 can
// recognize them as io_stop rather than io_terminate.
func (p *Port) Read(buf []byte) (int, error) {
	n, err := unix.Read(p.FD, buf)
	if err != nil {
		p.Cause, p.Errno = CauseRead, err
		return n, err
	}
	return n, nil
}

// Write issues write(2) against the Port's descriptor.
func (p *Port) Write(buf []byte) (int, error) {
	n, err := unix.Write(p.FD, buf)
	if err != nil {
		p.Cause, p.Errno = CauseWrite, err
		return n, err
	}
	return n, nil
}

// Accept accepts one connection on a listening Port, returning the new
// descriptor (already non-blocking and close-on-exec) for the caller to
// wrap or hand off.
func (p *Port) Accept() (int, error) {
	fd, _, err := unix.Accept4(p.FD, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err != nil {
		p.Cause, p.Errno = CauseAccept, err
		return -1, err
	}
	return fd, nil
}

// RecvFDs receives up to max descriptors passed over this Port's UNIX
// domain socket via SCM_RIGHTS, the Ports-freight input operation.
func (p *Port) RecvFDs(max int) ([]int, error) {
	oob := make([]byte, unix.CmsgSpace(max*4))
	buf := make([]byte, 1)
	_, oobn, _, _, err := unix.Recvmsg(p.FD, buf, oob, 0)
	if err != nil {
		p.Cause, p.Errno = CauseRecv, err
		return nil, err
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("port: parse cmsg: %w", err)
	}
	var fds []int
	for _, scm := range scms {
		got, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

// SendFDs passes descriptors over this Port's UNIX domain socket via
// SCM_RIGHTS, the Ports-freight output operation.
func (p *Port) SendFDs(fds []int) error {
	rights := unix.UnixRights(fds...)
	if err := unix.Sendmsg(p.FD, []byte{0}, rights, nil, 0); err != nil {
		p.Cause, p.Errno = CauseSend, err
		return err
	}
	return nil
}

// RecvFrom receives one datagram, the Datagrams-freight input operation.
func (p *Port) RecvFrom(buf []byte) (n int, from unix.Sockaddr, err error) {
	n, from, err = unix.Recvfrom(p.FD, buf, 0)
	if err != nil {
		p.Cause, p.Errno = CauseRecv, err
	}
	return n, from, err
}

// SendTo sends one datagram to addr, the Datagrams-freight output
// operation.
func (p *Port) SendTo(buf []byte, addr unix.Sockaddr) error {
	if err := unix.Sendto(p.FD, buf, 0, addr); err != nil {
		p.Cause, p.Errno = CauseSend, err
		return err
	}
	return nil
}
