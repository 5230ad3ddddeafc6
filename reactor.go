package netresolve

import (
	"time"

	"golang.org/x/sys/unix"
)

// Events is a set of file descriptor readiness conditions.
type Events uint32

const (
	EventRead Events = 1 << iota
	EventWrite
	// EventError and EventHangup are only ever delivered, never requested.
	EventError
	EventHangup
)

// Reactor is the I/O multiplexer a context registers file descriptors with.
// WatchFD remembers the cookie and returns an opaque handle that is passed
// back to UnwatchFD. The embedder routes readiness events back into the
// context with Context.DispatchFD.
//
// A reactor instance is single-threaded from the engine's point of view.
type Reactor interface {
	WatchFD(fd int, events Events, cookie interface{}) (handle interface{}, err error)
	UnwatchFD(fd int, handle interface{}) error
}

// ReactorFuncs adapts a pair of watch/unwatch functions to the Reactor
// interface, for event loops that are not naturally expressed as a type.
type ReactorFuncs struct {
	Watch   func(fd int, events Events, cookie interface{}) (interface{}, error)
	Unwatch func(fd int, handle interface{}) error
}

func (r ReactorFuncs) WatchFD(fd int, events Events, cookie interface{}) (interface{}, error) {
	return r.Watch(fd, events, cookie)
}

func (r ReactorFuncs) UnwatchFD(fd int, handle interface{}) error {
	return r.Unwatch(fd, handle)
}

// A source is one file descriptor registration owned by a query.
type source struct {
	query  *Query
	fd     int
	events Events
	handle interface{}
}

func (c *Context) watch(q *Query, fd int, events Events) error {
	src := &source{query: q, fd: fd, events: events}
	handle, err := c.reactor().WatchFD(fd, events, src)
	if err != nil {
		return IOError{FD: fd, Err: err}
	}
	src.handle = handle
	c.sources[fd] = src
	q.sources[fd] = src
	logger(q).WithField("fd", fd).Debug("added file descriptor")
	return nil
}

func (c *Context) unwatch(q *Query, fd int) {
	src, ok := c.sources[fd]
	if !ok || src.query != q {
		return
	}
	if err := c.reactor().UnwatchFD(fd, src.handle); err != nil {
		logger(q).WithField("fd", fd).WithError(err).Error("failed to unregister file descriptor")
	}
	delete(c.sources, fd)
	delete(q.sources, fd)
	logger(q).WithField("fd", fd).Debug("removed file descriptor")
}

// DispatchFD routes one readiness event into the query owning the file
// descriptor. External event loops call this from their callbacks; the
// built-in epoll loop calls it from DispatchReady. It reports whether the
// event was consumed by a query.
func (c *Context) DispatchFD(fd int, events Events) bool {
	src, ok := c.sources[fd]
	if !ok {
		return false
	}
	return src.query.dispatch(fd, events)
}

// A timer is just a monotone timerfd registered like any other descriptor.
func newTimerFD(d time.Duration) (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, err
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	spec := unix.ItimerSpec{Value: ts}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// An immediately-readable eventfd, used to defer a state transition until
// the stack unwinds into the reactor loop.
func newEventFD() (int, error) {
	return unix.Eventfd(1, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
}

func (q *Query) addTimeout(d time.Duration) int {
	fd, err := newTimerFD(d)
	if err != nil {
		logger(q).WithError(err).Error("failed to create timer")
		return -1
	}
	if err := q.ctx.watch(q, fd, EventRead); err != nil {
		unix.Close(fd)
		logger(q).WithError(err).Error("failed to watch timer")
		return -1
	}
	return fd
}

func (q *Query) dropTimeout(fd *int) {
	if *fd == -1 {
		return
	}
	q.ctx.unwatch(q, *fd)
	unix.Close(*fd)
	*fd = -1
}
