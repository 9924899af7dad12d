//go:build linux

package junction

import "golang.org/x/sys/unix"

// peerCredentials resolves getpeereid for an anonymous UNIX-domain socket
// via SO_PEERCRED.
func peerCredentials(fd int) (uid, gid uint32, ok bool) {
	cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0, false
	}
	return cred.Uid, cred.Gid, true
}
