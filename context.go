package netresolve

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

func getenvBool(name string, def bool) bool {
	value := os.Getenv(name)
	if value == "" {
		return def
	}
	switch strings.ToLower(value) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}

func getenvInt(name string, def int) int {
	value := os.Getenv(name)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

// Context holds a configured backend chain, default request options and the
// reactor binding shared by its queries. A context and everything it owns
// must only be touched by one goroutine at a time.
type Context struct {
	chain    []*backendEntry
	chainErr error

	defaults    Request
	forceFamily Family

	external Reactor
	epoll    *epollLoop

	sources  map[int]*source
	queries  map[*Query]struct{}
	services *ServiceList
}

// NewContext returns a context configured from the environment:
// NETRESOLVE_BACKENDS, NETRESOLVE_FLAG_DEFAULT_LOOPBACK,
// NETRESOLVE_FORCE_FAMILY, NETRESOLVE_CLAMP_TTL, NETRESOLVE_REQUEST_TIMEOUT,
// NETRESOLVE_RESULT_TIMEOUT and NETRESOLVE_VERBOSE.
func NewContext() *Context {
	if getenvBool("NETRESOLVE_VERBOSE", false) {
		Log.SetLevel(logrus.DebugLevel)
	}

	c := &Context{
		sources: make(map[int]*source),
		queries: make(map[*Query]struct{}),
	}

	c.forceFamily = FamilyFromString(os.Getenv("NETRESOLVE_FORCE_FAMILY"))
	c.defaults = Request{
		DefaultLoopback: getenvBool("NETRESOLVE_FLAG_DEFAULT_LOOPBACK", false),
		ClampTTL:        getenvInt("NETRESOLVE_CLAMP_TTL", -1),
		Timeout:         time.Duration(getenvInt("NETRESOLVE_REQUEST_TIMEOUT", 15000)) * time.Millisecond,
		PartialTimeout:  time.Duration(getenvInt("NETRESOLVE_RESULT_TIMEOUT", 5000)) * time.Millisecond,
	}

	if err := c.SetBackendString(os.Getenv("NETRESOLVE_BACKENDS")); err != nil {
		c.chainErr = err
	}

	return c
}

// Close cancels all queries, releases the backend chain and the internal
// reactor. The context must not be used afterwards.
func (c *Context) Close() {
	for q := range c.queries {
		q.Free()
	}
	c.chain = nil
	if c.epoll != nil {
		c.epoll.close()
		c.epoll = nil
	}
}

// SetOptions merges options into the defaults applied to every new request.
func (c *Context) SetOptions(opts ...Option) {
	c.defaults.apply(opts)
}

// AttachReactor binds an external event loop to the context. It must be
// called before the first query; feeding events back is the embedder's job
// via DispatchFD.
func (c *Context) AttachReactor(r Reactor) error {
	if c.epoll != nil || len(c.sources) > 0 {
		return BadRequestError{Reason: "reactor already bound"}
	}
	c.external = r
	return nil
}

func (c *Context) reactor() Reactor {
	if c.external != nil {
		return c.external
	}
	return c.epoll
}

// busy reports whether any query is suspended in the reactor.
func (c *Context) busy() bool {
	for q := range c.queries {
		switch q.state {
		case stateWaiting, stateWaitingMore:
			return true
		}
	}
	return false
}

func (c *Context) serviceList() *ServiceList {
	if c.services == nil {
		c.services = LoadServices("")
	}
	return c.services
}

// QueryForward starts a forward query translating a node and/or service
// name into paths. The callback may be nil when the caller waits with
// Query.Wait instead.
func (c *Context) QueryForward(node, service string, done DoneFunc, opts ...Option) (*Query, error) {
	opts = append([]Option{WithNodeName(node), WithServiceName(service)}, opts...)
	q, err := c.newQuery(RequestForward, opts)
	if err != nil {
		return nil, err
	}
	q.callback = done
	q.start()
	return q, nil
}

// QueryReverse starts a reverse query translating an address and optional
// port into names.
func (c *Context) QueryReverse(address net.IP, done DoneFunc, opts ...Option) (*Query, error) {
	var addressOpt Option
	if ip4 := address.To4(); ip4 != nil {
		addressOpt = WithIP4Address(ip4)
	} else {
		addressOpt = WithIP6Address(address)
	}
	opts = append([]Option{addressOpt}, opts...)
	q, err := c.newQuery(RequestReverse, opts)
	if err != nil {
		return nil, err
	}
	q.callback = done
	q.start()
	return q, nil
}

// QueryDNS starts a raw DNS query for an owner name, class and record type.
func (c *Context) QueryDNS(name string, class, rrtype uint16, done DoneFunc, opts ...Option) (*Query, error) {
	opts = append([]Option{WithDNSName(name), WithDNSClass(class), WithDNSType(rrtype)}, opts...)
	q, err := c.newQuery(RequestDNS, opts)
	if err != nil {
		return nil, err
	}
	q.callback = done
	q.start()
	return q, nil
}
