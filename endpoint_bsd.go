//go:build darwin || freebsd || dragonfly || netbsd || openbsd

package junction

import "golang.org/x/sys/unix"

// peerCredentials resolves getpeereid for an anonymous UNIX-domain socket
// via LOCAL_PEERCRED/getpeereid.
func peerCredentials(fd int) (uid, gid uint32, ok bool) {
	cred, err := unix.GetsockoptXucred(fd, 0 /*SOL_LOCAL*/, 1 /*LOCAL_PEERCRED*/)
	if err != nil {
		return 0, 0, false
	}
	return cred.Uid, uint32(cred.Groups[0]), true
}
