package reactor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const listenBacklog = 1024

// listener is a bind/accept endpoint. It lives on the
// leader and holds the per-endpoint handler; a singly linked list of
// listeners hangs off Server.
type listener struct {
	addr    string
	fd      int
	handler Handler

	follower *ioThread // set when the leader picks it up
	next     *listener
}

// newListener opens a non-blocking listening socket bound to addr with
// backlog 1024, working at the raw-fd level so the resulting socket can
// be registered directly on an epoll loop.
func newListener(addr string, h Handler) (*listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}

	domain := unix.AF_INET
	sockaddr := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sockaddr.Addr[:], ip4)
	} else {
		domain = unix.AF_INET6
	}

	var sa unix.Sockaddr = sockaddr
	if domain == unix.AF_INET6 {
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		if tcpAddr.IP != nil {
			copy(sa6.Addr[:], tcpAddr.IP.To16())
		}
		sa = sa6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}

	return &listener{addr: addr, fd: fd, handler: h}, nil
}

func (ln *listener) close() {
	unix.Close(ln.fd)
}
