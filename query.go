package netresolve

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type state int

const (
	stateNone state = iota
	stateSetup
	stateWaiting
	stateWaitingMore
	stateResolved
	stateConnecting
	stateDone
	stateError
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateNone:
		return "none"
	case stateSetup:
		return "setup"
	case stateWaiting:
		return "waiting"
	case stateWaitingMore:
		return "waiting-more"
	case stateResolved:
		return "resolved"
	case stateConnecting:
		return "connecting"
	case stateDone:
		return "done"
	case stateError:
		return "error"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DoneFunc is the completion callback of a query. It is invoked exactly
// once; err is nil on success and an empty path list distinguishes failure.
type DoneFunc func(q *Query, err error)

// Query is one in-flight resolution request walking the backend chain of
// its context.
type Query struct {
	ctx      *Context
	request  Request
	response Response

	state  state
	cursor int // position in the context's backend chain

	// Private data slot of the backend currently owning the query.
	data        interface{}
	backendDone bool // cleanup already ran for the current backend

	sources   map[int]*source
	timeoutFD int
	partialFD int
	delayedFD int

	callback  DoneFunc
	completed bool
	timedOut  bool
	err       error
	userData  interface{}

	conn *connectState
}

func (c *Context) newQuery(t RequestType, opts []Option) (*Query, error) {
	if c.chainErr != nil {
		return nil, c.chainErr
	}
	q := &Query{
		ctx:         c,
		request:     c.defaults,
		sources:     make(map[int]*source),
		timeoutFD:   -1,
		partialFD:   -1,
		delayedFD:   -1,
		backendDone: true,
	}
	q.request.Type = t
	q.request.apply(opts)
	if c.forceFamily != FamilyUnspec {
		q.request.Family = c.forceFamily
	}
	if err := q.request.validate(); err != nil {
		return nil, err
	}
	if c.external == nil {
		if _, err := c.EpollFD(); err != nil {
			return nil, err
		}
	}
	c.queries[q] = struct{}{}
	logger(q).Debug("query created")
	return q, nil
}

func (q *Query) start() {
	if len(q.ctx.chain) == 0 {
		q.complete(ErrNoData)
		return
	}
	q.setState(stateSetup)
}

func (q *Query) currentBackend() *backendEntry {
	if q.ctx == nil || q.cursor >= len(q.ctx.chain) {
		return nil
	}
	return q.ctx.chain[q.cursor]
}

func (q *Query) setState(s state) {
	old := q.state
	if s == old {
		return
	}
	q.state = s

	logger(q).WithFields(logrus.Fields{"from": old.String(), "to": s.String()}).Debug("state")

	switch s {
	case stateSetup:
		backend := q.currentBackend()
		if q.request.DNSSRVLookup && q.request.Protocol == ProtocolAny {
			q.request.Protocol = ProtocolTCP
		}
		setup := backend.setup(q.request.Type)
		if setup == nil {
			q.setState(stateFailed)
			return
		}
		backend.metrics.query.Add(1)
		q.backendDone = false
		setup(q, backend.settings)
		if q.state == stateSetup {
			if q.request.Timeout > 0 {
				q.setState(stateWaiting)
			} else {
				q.setState(stateFailed)
			}
		}
		if q.state == stateError {
			q.setState(stateFailed)
		}
	case stateWaiting:
		if q.request.Timeout > 0 {
			q.timeoutFD = q.addTimeout(q.request.Timeout)
		}
	case stateWaitingMore:
		// The backend has committed results; only the partial window
		// bounds the rest of the collection.
		q.dropTimeout(&q.timeoutFD)
		if q.request.PartialTimeout > 0 {
			q.partialFD = q.addTimeout(q.request.PartialTimeout)
		} else {
			q.setState(stateConnecting)
		}
	case stateResolved:
		if old == stateSetup {
			// The backend finished inside its setup routine. Defer the
			// transition until the stack unwinds into the reactor by
			// posting an immediately-readable event.
			fd, err := newEventFD()
			if err != nil {
				logger(q).WithError(err).Error("failed to create eventfd")
				q.setState(stateConnecting)
				return
			}
			q.delayedFD = fd
			if err := q.ctx.watch(q, fd, EventRead); err != nil {
				unix.Close(fd)
				q.delayedFD = -1
				logger(q).WithError(err).Error("failed to watch eventfd")
				q.setState(stateConnecting)
			}
		}
	case stateConnecting:
		q.cleanupBackend()

		// Mandatory backends past the cursor are always consulted, with
		// the accumulated paths kept.
		for next := q.cursor + 1; next < len(q.ctx.chain); next++ {
			if q.ctx.chain[next].mandatory {
				q.cursor = next
				q.setState(stateSetup)
				return
			}
		}

		if q.request.Type == RequestReverse && q.response.ServiceName == "" && q.request.Port != 0 {
			q.SetServiceName(q.ctx.serviceList().NameByPort(q.request.Port, q.request.Protocol))
		}

		if q.conn != nil {
			q.connectStart()
		} else {
			q.setState(stateDone)
		}
	case stateDone:
		if q.conn != nil {
			q.connectCleanup()
		}
		q.complete(nil)
	case stateError:
		// Converted to stateFailed by the caller of the backend.
	case stateFailed:
		if backend := q.currentBackend(); backend != nil {
			backend.metrics.failure.Add(1)
		}

		// A mandatory backend failing after an earlier success doesn't
		// discard the committed paths; resume the scan for further
		// mandatory backends instead of falling through.
		if len(q.response.Paths) > 0 {
			logger(q).Debug("mandatory backend failed after committed results")
			q.setState(stateConnecting)
			return
		}
		q.cleanupBackend()

		// Fall through to the next backend in the chain.
		if q.cursor+1 < len(q.ctx.chain) {
			q.cursor++
			q.setState(stateSetup)
			return
		}
		q.complete(q.failure())
	}
}

func (q *Query) failure() error {
	if q.timedOut {
		name := ""
		if backend := q.currentBackend(); backend != nil {
			name = backend.name
		}
		return TimeoutError{Backend: name}
	}
	return ErrNoData
}

// dispatch hands one file descriptor event to the query. It reports whether
// the event was consumed.
func (q *Query) dispatch(fd int, events Events) bool {
	backend := q.currentBackend()

	switch q.state {
	case stateWaitingMore:
		if fd == q.partialFD {
			logger(q).Debug("partial result window elapsed")
			q.dropTimeout(&q.partialFD)
			q.setState(stateConnecting)
			return true
		}
		fallthrough
	case stateWaiting:
		if fd == q.timeoutFD {
			logger(q).Debug("request timed out")
			q.dropTimeout(&q.timeoutFD)
			q.timedOut = true
			q.setState(stateFailed)
			return true
		}
		if backend == nil || backend.disp == nil {
			return false
		}
		before := len(q.response.Paths)
		backend.disp.Dispatch(q, fd, events)
		switch q.state {
		case stateResolved:
			q.dropTimeout(&q.partialFD)
			q.setState(stateConnecting)
		case stateError:
			q.setState(stateFailed)
		case stateWaiting:
			if len(q.response.Paths) > before {
				q.setState(stateWaitingMore)
			}
		}
		return true
	case stateResolved:
		if fd == q.delayedFD {
			q.dropTimeout(&q.delayedFD)
			q.setState(stateConnecting)
			return true
		}
		return false
	case stateConnecting:
		return q.connectDispatch(fd, events)
	default:
		return false
	}
}

// Finish is called by the active backend when it is done producing
// results. Results emitted before the call are committed.
func (q *Query) Finish() {
	if backend := q.currentBackend(); backend != nil {
		backend.metrics.resolved.Add(1)
	}
	switch q.state {
	case stateSetup, stateWaiting, stateWaitingMore:
		q.setState(stateResolved)
	}
}

// Fail is called by the active backend when it cannot produce results. The
// engine falls through to the next backend in the chain.
func (q *Query) Fail() {
	switch q.state {
	case stateSetup, stateWaiting, stateWaitingMore:
		q.setState(stateError)
	}
}

func (q *Query) cleanupBackend() {
	q.dropTimeout(&q.delayedFD)
	q.dropTimeout(&q.timeoutFD)
	q.dropTimeout(&q.partialFD)

	if q.backendDone {
		return
	}
	q.backendDone = true
	if backend := q.currentBackend(); backend != nil && backend.clean != nil {
		backend.clean.Cleanup(q)
	}
	q.data = nil
}

func (q *Query) complete(err error) {
	if q.completed {
		return
	}
	q.completed = true
	q.err = err
	if q.callback != nil {
		q.callback(q, err)
	}
}

// Wait drives the internal reactor until the query completes and returns
// its final status. It is only available when no external reactor is
// attached.
func (q *Query) Wait() error {
	if q.ctx.external != nil {
		return BadRequestError{Reason: "blocking wait with an external reactor"}
	}
	for !q.completed {
		if err := q.ctx.dispatchEvents(-1); err != nil {
			return IOError{FD: q.ctx.epoll.fd, Err: err}
		}
	}
	return q.err
}

// Err returns the final status of a completed query.
func (q *Query) Err() error {
	return q.err
}

// Free cancels the query if still running and releases everything it owns.
// No callback fires afterwards and no descriptors registered by the query
// remain in the reactor.
func (q *Query) Free() {
	if q.ctx == nil {
		return
	}
	q.completed = true
	q.cleanupBackend()
	if q.conn != nil {
		q.connectCleanup()
	}
	for fd := range q.sources {
		q.ctx.unwatch(q, fd)
	}
	delete(q.ctx.queries, q)
	q.state = stateNone
	q.response = Response{}
	q.ctx = nil
}

// Request returns the request driving this query. Backends read their
// inputs from it.
func (q *Query) Request() *Request {
	return &q.request
}

// SetData attaches backend-private data to the query for the duration of
// the current backend. The slot is cleared after cleanup.
func (q *Query) SetData(data interface{}) {
	q.data = data
}

// Data retrieves the backend-private data slot.
func (q *Query) Data() interface{} {
	return q.data
}

// SetUserData attaches a caller-owned value to the query.
func (q *Query) SetUserData(data interface{}) {
	q.userData = data
}

// UserData retrieves the value attached with SetUserData.
func (q *Query) UserData() interface{} {
	return q.userData
}

// WatchFD registers a file descriptor owned by the active backend with the
// reactor. It must be unregistered before the backend finishes.
func (q *Query) WatchFD(fd int, events Events) error {
	return q.ctx.watch(q, fd, events)
}

// UnwatchFD removes a registration added with WatchFD.
func (q *Query) UnwatchFD(fd int) {
	q.ctx.unwatch(q, fd)
}

// WatchTimeout arms a one-shot monotone timer and registers it like a file
// descriptor. It returns the timer's descriptor, -1 on failure.
func (q *Query) WatchTimeout(d time.Duration) int {
	return q.addTimeout(d)
}

// DropTimeout disarms and closes a timer returned by WatchTimeout.
func (q *Query) DropTimeout(fd int) {
	if fd == -1 {
		return
	}
	q.ctx.unwatch(q, fd)
	unix.Close(fd)
}
