// File: internal/bootstrap/listener.go
// Author: momentics <momentics@gmail.com>
//
// Side-channel TCP plumbing: a listener bound to a deterministic
// per-rank port plus a TCP_NODELAY tweak applied through the raw file
// descriptor, the same unix.SetsockoptInt pattern the teacher's
// internal/transport/transport_linux.go uses, reached via
// github.com/higebu/netfd since net.TCPConn does not expose its fd
// directly.

package bootstrap

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"

	"github.com/momentics/ringallreduce/api"
)

// listenAddr builds the deterministic bootstrap listen address for rank
// on host, combining the tunable base port with the rank per spec §4.2.
func listenAddr(host string, basePort, rank int) string {
	return fmt.Sprintf("%s:%d", host, basePort+rank)
}

// listen opens the side-channel listener for this rank.
func listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeBootstrapFailed, "binding bootstrap listener", err)
	}
	return ln, nil
}

// tuneConn disables Nagle's algorithm on the side-channel connection so
// the small fixed-width handshake records are not held back by the
// kernel waiting to coalesce writes.
func tuneConn(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	fd := netfd.GetFdFromConn(tcpConn)
	if fd < 0 {
		return api.NewError(api.ErrCodeBootstrapFailed, "extracting bootstrap connection fd")
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return api.Wrap(api.ErrCodeBootstrapFailed, "setsockopt TCP_NODELAY on bootstrap connection", err)
	}
	return nil
}
