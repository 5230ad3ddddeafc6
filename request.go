package netresolve

import (
	"net"
	"time"
)

// RequestType tags a request as forward, reverse or raw DNS.
type RequestType int

const (
	RequestForward RequestType = iota
	RequestReverse
	RequestDNS
)

func (t RequestType) String() string {
	switch t {
	case RequestForward:
		return "forward"
	case RequestReverse:
		return "reverse"
	case RequestDNS:
		return "dns"
	default:
		return "unknown"
	}
}

// Request holds the typed options of one query. A zero value means
// "unspecified" for every filter field.
type Request struct {
	Type RequestType

	// Forward keys
	NodeName    string
	ServiceName string

	// Filters
	Family   Family
	Socktype Socktype
	Protocol int
	Ifindex  int

	// Reverse keys
	Address net.IP
	Port    int

	// Raw DNS keys
	DNSName  string
	DNSClass uint16
	DNSType  uint16

	// Flags
	DefaultLoopback bool
	DNSSRVLookup    bool
	DNSSearch       bool

	// ClampTTL caps emitted TTLs when non-negative.
	ClampTTL int

	// Timeout bounds the total wait on one backend; PartialTimeout bounds
	// the follow-on window after the first result.
	Timeout        time.Duration
	PartialTimeout time.Duration
}

// Option mutates a request. Options are accepted both by the query
// constructors and by Context.SetOptions, where they become defaults merged
// into every new request.
type Option func(*Request)

func WithNodeName(name string) Option {
	return func(r *Request) { r.NodeName = name }
}

func WithServiceName(service string) Option {
	return func(r *Request) { r.ServiceName = service }
}

func WithFamily(family Family) Option {
	return func(r *Request) { r.Family = family }
}

func WithSocktype(socktype Socktype) Option {
	return func(r *Request) { r.Socktype = socktype }
}

func WithProtocol(protocol int) Option {
	return func(r *Request) { r.Protocol = protocol }
}

func WithIfindex(ifindex int) Option {
	return func(r *Request) { r.Ifindex = ifindex }
}

// WithIP4Address sets the reverse-lookup key to an IPv4 address.
func WithIP4Address(ip net.IP) Option {
	return func(r *Request) {
		r.Family = FamilyIP4
		r.Address = ip.To4()
	}
}

// WithIP6Address sets the reverse-lookup key to an IPv6 address.
func WithIP6Address(ip net.IP) Option {
	return func(r *Request) {
		r.Family = FamilyIP6
		r.Address = ip.To16()
	}
}

func WithPort(port int) Option {
	return func(r *Request) { r.Port = port }
}

func WithDNSName(name string) Option {
	return func(r *Request) { r.DNSName = name }
}

func WithDNSClass(class uint16) Option {
	return func(r *Request) { r.DNSClass = class }
}

func WithDNSType(rrtype uint16) Option {
	return func(r *Request) { r.DNSType = rrtype }
}

// WithDefaultLoopback controls whether an empty node name means loopback
// (true) or the any-address (false).
func WithDefaultLoopback(loopback bool) Option {
	return func(r *Request) { r.DefaultLoopback = loopback }
}

// WithSRVLookup makes forward queries perform DNS SRV indirection.
func WithSRVLookup(srv bool) Option {
	return func(r *Request) { r.DNSSRVLookup = srv }
}

// WithDNSSearch makes raw DNS queries follow the resolver search list.
func WithDNSSearch(search bool) Option {
	return func(r *Request) { r.DNSSearch = search }
}

// WithClampTTL caps the TTL of every emitted path. A negative value turns
// clamping off.
func WithClampTTL(seconds int) Option {
	return func(r *Request) { r.ClampTTL = seconds }
}

func WithTimeout(timeout time.Duration) Option {
	return func(r *Request) { r.Timeout = timeout }
}

func WithPartialTimeout(timeout time.Duration) Option {
	return func(r *Request) { r.PartialTimeout = timeout }
}

func (r *Request) apply(opts []Option) {
	for _, opt := range opts {
		opt(r)
	}
}

// validate rejects malformed requests before the chain is consulted.
func (r *Request) validate() error {
	switch r.Type {
	case RequestReverse:
		switch r.Family {
		case FamilyIP4:
			if len(r.Address) != net.IPv4len {
				return BadRequestError{Reason: "reverse query needs a 4-byte address"}
			}
		case FamilyIP6:
			if len(r.Address) != net.IPv6len {
				return BadRequestError{Reason: "reverse query needs a 16-byte address"}
			}
		default:
			return BadRequestError{Reason: "reverse query needs an address family"}
		}
	case RequestDNS:
		if r.DNSName == "" {
			return BadRequestError{Reason: "dns query needs an owner name"}
		}
	}
	return nil
}
