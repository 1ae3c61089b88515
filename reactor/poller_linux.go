package reactor

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// loop is the event-loop primitive an IO Thread owns: an epoll instance
// plus an eventfd-based cross-thread wakeup (readiness add/remove,
// cross-thread wakeup, timed-break driver), grounded on the evio-style
// poller found in the retrieval pack (see DESIGN.md) and adapted from raw
// syscalls to golang.org/x/sys/unix. The actual payload of a wakeup (which
// mailbox has new items) lives in the mailboxes themselves; the loop only
// needs to know that *a* wakeup happened, so it carries no note queue of
// its own.
type loop struct {
	epfd   int
	wakefd int

	mu     sync.Mutex
	closed bool
}

const wakeToken = -1 // fd value used to identify the wake eventfd in epoll_wait results

func newLoop() (*loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	l := &loop{epfd: epfd, wakefd: wakefd}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeToken)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, l.wakefd, &ev); err != nil {
		unix.Close(l.epfd)
		unix.Close(l.wakefd)
		return nil, err
	}
	return l, nil
}

func (l *loop) addRead(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)})
}

func (l *loop) addReadWrite(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)})
}

func (l *loop) modRead(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)})
}

func (l *loop) modReadWrite(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)})
}

func (l *loop) remove(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// signal wakes the loop out of epoll_wait. The write to an eventfd
// coalesces: multiple signals between wakes collapse into a single wake.
func (l *loop) signal() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(l.wakefd, buf[:])
}

// wait blocks for up to timeoutMs and invokes iter for every ready fd with
// its readiness mask, plus once for the wake token if the loop was
// signaled. iter returning false requests the loop to stop.
func (l *loop) wait(timeoutMs int, iter func(fd int, mask uint32, woken bool) bool) {
	events := make([]unix.EpollEvent, 128)
	n, err := unix.EpollWait(l.epfd, events, timeoutMs)
	if err != nil {
		return
	}
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == wakeToken {
			var buf [8]byte
			unix.Read(l.wakefd, buf[:])
			if !iter(0, 0, true) {
				return
			}
			continue
		}
		if !iter(fd, events[i].Events, false) {
			return
		}
	}
}

func (l *loop) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	unix.Close(l.epfd)
	unix.Close(l.wakefd)
}
