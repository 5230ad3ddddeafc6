package netresolve

import (
	"time"

	"golang.org/x/sys/unix"
)

// How long to wait for the first connect attempt before starting the next
// path in parallel.
const firstConnectTimeout = time.Second

// SocketFunc receives the socket opened for one path by the bind/connect
// helper. The receiver owns the descriptor.
type SocketFunc func(q *Query, idx int, fd int)

type connectState struct {
	cb   SocketFunc
	bind bool

	idx     int         // next path to attempt
	pending map[int]int // in-progress connects, fd to path index
	timerFD int
}

// QueryConnect resolves a node and service and connects a socket to the
// first path that answers, using non-blocking connect attempts and trying
// later paths in parallel after a short delay. The connected socket is
// handed to cb in blocking mode.
func (c *Context) QueryConnect(node, service string, cb SocketFunc, done DoneFunc, opts ...Option) (*Query, error) {
	opts = append([]Option{WithNodeName(node), WithServiceName(service)}, opts...)
	q, err := c.newQuery(RequestForward, opts)
	if err != nil {
		return nil, err
	}
	q.callback = done
	q.conn = &connectState{cb: cb, pending: make(map[int]int), timerFD: -1}
	q.start()
	return q, nil
}

// QueryBind resolves a node and service and binds a socket to the first
// path that accepts it. The socket is handed to cb.
func (c *Context) QueryBind(node, service string, cb SocketFunc, done DoneFunc, opts ...Option) (*Query, error) {
	opts = append([]Option{WithNodeName(node), WithServiceName(service)}, opts...)
	q, err := c.newQuery(RequestForward, opts)
	if err != nil {
		return nil, err
	}
	q.callback = done
	q.conn = &connectState{cb: cb, bind: true, pending: make(map[int]int), timerFD: -1}
	q.start()
	return q, nil
}

// Connect is the blocking form of QueryConnect. It returns a connected
// socket for the given node and service.
func (c *Context) Connect(node, service string, opts ...Option) (int, error) {
	sock := -1
	q, err := c.QueryConnect(node, service, func(q *Query, idx, fd int) { sock = fd }, nil, opts...)
	if err != nil {
		return -1, err
	}
	defer q.Free()
	if err := q.Wait(); err != nil {
		return -1, err
	}
	if sock == -1 {
		return -1, ErrNoData
	}
	return sock, nil
}

// Bind is the blocking form of QueryBind. It returns a bound socket for the
// given node and service.
func (c *Context) Bind(node, service string, opts ...Option) (int, error) {
	sock := -1
	q, err := c.QueryBind(node, service, func(q *Query, idx, fd int) { sock = fd }, nil, opts...)
	if err != nil {
		return -1, err
	}
	defer q.Free()
	if err := q.Wait(); err != nil {
		return -1, err
	}
	if sock == -1 {
		return -1, ErrNoData
	}
	return sock, nil
}

func pathSocket(path *Path) (int, unix.Sockaddr, error) {
	sa, err := path.Sockaddr()
	if err != nil {
		return -1, nil, err
	}
	socktype := int(path.Socktype)
	if socktype == 0 {
		socktype = int(SocktypeStream)
	}
	fd, err := unix.Socket(int(path.Family), socktype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, path.Protocol)
	if err != nil {
		return -1, nil, err
	}
	return fd, sa, nil
}

// Entered from CONNECTING once the chain is exhausted.
func (q *Query) connectStart() {
	s := q.conn

	if s.bind {
		for i := range q.response.Paths {
			path := &q.response.Paths[i]
			fd, sa, err := pathSocket(path)
			if err != nil {
				continue
			}
			if err := unix.Bind(fd, sa); err != nil {
				unix.Close(fd)
				continue
			}
			q.deliverSocket(i, fd)
			return
		}
		q.connectFailed()
		return
	}

	q.connectNext()
}

// Start the next connect attempt. Called initially, when the first-connect
// timer elapses, and when the last pending attempt fails.
func (q *Query) connectNext() {
	s := q.conn

	for s.idx < len(q.response.Paths) {
		i := s.idx
		s.idx++
		path := &q.response.Paths[i]

		fd, sa, err := pathSocket(path)
		if err != nil {
			continue
		}
		err = unix.Connect(fd, sa)
		if err == nil {
			q.deliverSocket(i, fd)
			return
		}
		if err == unix.EINPROGRESS {
			if err := q.ctx.watch(q, fd, EventWrite); err != nil {
				unix.Close(fd)
				continue
			}
			s.pending[fd] = i
			if s.timerFD == -1 && s.idx < len(q.response.Paths) {
				s.timerFD = q.addTimeout(firstConnectTimeout)
			}
			return
		}
		unix.Close(fd)
	}

	if len(s.pending) == 0 {
		q.connectFailed()
	}
}

func (q *Query) connectDispatch(fd int, events Events) bool {
	s := q.conn
	if s == nil {
		return false
	}

	if fd == s.timerFD {
		q.dropTimeout(&s.timerFD)
		q.connectNext()
		return true
	}

	idx, ok := s.pending[fd]
	if !ok {
		return false
	}
	q.ctx.unwatch(q, fd)
	delete(s.pending, fd)

	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soerr == 0 {
		q.deliverSocket(idx, fd)
		return true
	}
	unix.Close(fd)
	if len(s.pending) == 0 {
		q.connectNext()
	}
	return true
}

func (q *Query) deliverSocket(idx, fd int) {
	unix.SetNonblock(fd, false)
	q.connectCleanup()
	if q.conn.cb != nil {
		q.conn.cb(q, idx, fd)
	}
	q.setState(stateDone)
}

// The helper could not produce a socket from any path.
func (q *Query) connectFailed() {
	q.connectCleanup()
	q.state = stateFailed
	q.complete(ErrNoData)
}

// Close losers and disarm the first-connect timer.
func (q *Query) connectCleanup() {
	s := q.conn
	if s == nil {
		return
	}
	q.dropTimeout(&s.timerFD)
	for fd := range s.pending {
		q.ctx.unwatch(q, fd)
		unix.Close(fd)
	}
	s.pending = make(map[int]int)
}
