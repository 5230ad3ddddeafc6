package netresolve

import (
	"net"
	"strconv"
	"strings"
)

// Backend is the marker interface of a resolution backend. A backend
// additionally implements whichever capability interfaces apply to it: one
// setup entry point per request type, and optionally Dispatch and Cleanup.
//
// A setup entry point is called once when the engine enters the backend. It
// must either finish synchronously (emit results and call Finish, or call
// Fail), or register at least one file descriptor or timer on the query and
// return, leaving the query waiting.
type Backend interface {
	backend()
}

// BaseBackend is embedded by backend implementations to satisfy Backend.
type BaseBackend struct{}

func (BaseBackend) backend() {}

// ForwardResolver answers forward (name to address) requests.
type ForwardResolver interface {
	QueryForward(q *Query, settings []string)
}

// ReverseResolver answers reverse (address to name) requests.
type ReverseResolver interface {
	QueryReverse(q *Query, settings []string)
}

// DNSResolver answers raw DNS requests.
type DNSResolver interface {
	QueryDNS(q *Query, settings []string)
}

// Dispatcher receives readiness events for every descriptor the backend
// registered on the query. Each call must make progress and leave the query
// waiting, finished or failed.
type Dispatcher interface {
	Dispatch(q *Query, fd int, events Events)
}

// Cleaner releases backend-owned resources. Called exactly once per setup,
// on any terminal transition or when the query is freed. Remaining
// descriptor registrations must be dropped here.
type Cleaner interface {
	Cleanup(q *Query)
}

// ParseAddress parses a numeric host address with an optional `%interface`
// scope suffix, given as an interface name or a numeric index.
func ParseAddress(s string) (ip net.IP, family Family, ifindex int, ok bool) {
	host := s
	if i := strings.IndexByte(s, '%'); i >= 0 {
		host = s[:i]
		zone := s[i+1:]
		if iface, err := net.InterfaceByName(zone); err == nil {
			ifindex = iface.Index
		} else {
			n, err := strconv.Atoi(zone)
			if err != nil {
				return nil, FamilyUnspec, 0, false
			}
			ifindex = n
		}
	}
	ip = net.ParseIP(host)
	if ip == nil {
		return nil, FamilyUnspec, 0, false
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, FamilyIP4, ifindex, true
	}
	return ip, FamilyIP6, ifindex, true
}

// ParsePath parses the literal path form used by the exec backend protocol:
// `<ip>[%<iface>] <socktype> <protocol> <port> <priority> <weight>`.
func ParsePath(s string) (Path, bool) {
	fields := strings.Fields(s)
	if len(fields) != 6 {
		return Path{}, false
	}
	ip, family, ifindex, ok := ParseAddress(fields[0])
	if !ok {
		return Path{}, false
	}
	socktype := SocktypeFromString(fields[1])
	protocol := protocolFromString(fields[2])
	port, err := strconv.Atoi(fields[3])
	if err != nil {
		return Path{}, false
	}
	priority, err := strconv.Atoi(fields[4])
	if err != nil {
		return Path{}, false
	}
	weight, err := strconv.Atoi(fields[5])
	if err != nil {
		return Path{}, false
	}
	return Path{
		Family:   family,
		Address:  ip,
		Ifindex:  ifindex,
		Socktype: socktype,
		Protocol: protocol,
		Port:     port,
		Priority: priority,
		Weight:   weight,
		TTL:      TTLInfinite,
	}, true
}

// The capability set of one loaded backend, resolved once at chain load.
type backendEntry struct {
	name      string
	mandatory bool
	settings  []string
	impl      Backend
	metrics   *BackendMetrics

	forward ForwardResolver
	reverse ReverseResolver
	dns     DNSResolver
	disp    Dispatcher
	clean   Cleaner
}

func newBackendEntry(name string, mandatory bool, settings []string, impl Backend) *backendEntry {
	e := &backendEntry{
		name:      name,
		mandatory: mandatory,
		settings:  settings,
		impl:      impl,
		metrics:   NewBackendMetrics(name),
	}
	e.forward, _ = impl.(ForwardResolver)
	e.reverse, _ = impl.(ReverseResolver)
	e.dns, _ = impl.(DNSResolver)
	e.disp, _ = impl.(Dispatcher)
	e.clean, _ = impl.(Cleaner)
	return e
}

// setup returns the setup entry point for a request type, nil if the
// backend doesn't implement it.
func (e *backendEntry) setup(t RequestType) func(*Query, []string) {
	switch t {
	case RequestForward:
		if e.forward != nil {
			return e.forward.QueryForward
		}
	case RequestReverse:
		if e.reverse != nil {
			return e.reverse.QueryReverse
		}
	case RequestDNS:
		if e.dns != nil {
			return e.dns.QueryDNS
		}
	}
	return nil
}
