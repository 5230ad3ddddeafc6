package netresolve

import (
	"golang.org/x/sys/unix"
)

// The default reactor: an epoll set owned by the context, used when the
// application doesn't attach a loop of its own. The epoll file descriptor
// can be exposed to an outer poll loop through Context.EpollFD, or driven
// directly in blocking mode.
type epollLoop struct {
	fd    int
	count int
}

func newEpollLoop() (*epollLoop, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollLoop{fd: fd}, nil
}

func epollEvents(events Events) uint32 {
	var ev uint32
	if events&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func eventsFromEpoll(ev uint32) Events {
	var events Events
	if ev&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if ev&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if ev&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}

func (l *epollLoop) WatchFD(fd int, events Events, cookie interface{}) (interface{}, error) {
	event := unix.EpollEvent{Events: epollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(l.fd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return nil, err
	}
	l.count++
	return nil, nil
}

func (l *epollLoop) UnwatchFD(fd int, handle interface{}) error {
	if err := unix.EpollCtl(l.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}
	l.count--
	return nil
}

func (l *epollLoop) close() {
	unix.Close(l.fd)
	l.fd = -1
}

// Wait for events on the internal epoll set and route them into the owning
// queries. A negative timeout blocks, zero polls.
func (c *Context) dispatchEvents(timeoutMS int) error {
	events := make([]unix.EpollEvent, 10)

	n, err := unix.EpollWait(c.epoll.fd, events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		c.DispatchFD(int(events[i].Fd), eventsFromEpoll(events[i].Events))
	}
	return nil
}

// EpollFD returns the file descriptor of the internal epoll set, lazily
// creating the set if the context has no reactor attached yet. Poll it for
// reading in an outer event loop and call DispatchReady when it fires. Do
// not add descriptors to it.
func (c *Context) EpollFD() (int, error) {
	if c.external != nil {
		return -1, BadRequestError{Reason: "context uses an external reactor"}
	}
	if c.epoll == nil {
		loop, err := newEpollLoop()
		if err != nil {
			return -1, err
		}
		c.epoll = loop
	}
	return c.epoll.fd, nil
}

// DispatchReady drains ready events from the internal epoll set without
// blocking.
func (c *Context) DispatchReady() error {
	if c.epoll == nil {
		return nil
	}
	return c.dispatchEvents(0)
}
