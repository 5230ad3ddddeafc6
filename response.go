package netresolve

import (
	"net"
)

// Response is the accumulated result of a query: paths in insertion order
// plus the optional canonical node name, service name and raw DNS answer.
// The engine never sorts or de-duplicates; backends that may produce
// duplicates do their own suppression.
type Response struct {
	Paths       []Path
	NodeName    string
	ServiceName string
	DNSAnswer   []byte
	Security    Security
}

// AddPath appends one endpoint to the response. Paths that violate the
// request's family or interface filter are dropped. When the request names
// a service but the path carries no transport, the path is expanded across
// the service directory like AddAddress.
func (q *Query) AddPath(path Path) {
	if q.backendDone {
		logger(q).Error("backend emitted a path after cleanup")
		return
	}
	if path.Socktype == SocktypeAny && path.Protocol == ProtocolAny && path.Port == 0 && path.Family != FamilyUnix {
		q.AddAddress(path.Family, path.Address, path.Ifindex)
		return
	}
	q.addPath(path)
}

func (q *Query) addPath(path Path) {
	request := &q.request

	if request.Family != FamilyUnspec && request.Family != path.Family {
		return
	}
	if request.Ifindex != 0 && path.Ifindex != 0 && request.Ifindex != path.Ifindex {
		return
	}
	switch path.Family {
	case FamilyIP4:
		if len(path.Address) != net.IPv4len {
			if ip4 := path.Address.To4(); ip4 != nil {
				path.Address = ip4
			} else {
				return
			}
		}
	case FamilyIP6:
		if len(path.Address) != net.IPv6len {
			return
		}
	}
	if path.Ifindex != 0 && path.Family != FamilyIP6 {
		path.Ifindex = 0
	}
	if request.ClampTTL >= 0 && (path.TTL == TTLInfinite || path.TTL > request.ClampTTL) {
		path.TTL = request.ClampTTL
	}
	path.Security = q.response.Security

	q.response.Paths = append(q.response.Paths, path)
	logger(q).WithField("path", pathString(&path)).Debug("added path")
}

// AddAddress appends one path per (socktype, protocol, port) expansion the
// service directory produces for the request's service name.
func (q *Query) AddAddress(family Family, address net.IP, ifindex int) {
	q.AddAddressTTL(family, address, ifindex, TTLInfinite)
}

// AddAddressTTL is AddAddress for sources that expire their records.
func (q *Query) AddAddressTTL(family Family, address net.IP, ifindex, ttl int) {
	if q.backendDone {
		logger(q).Error("backend emitted a path after cleanup")
		return
	}
	request := &q.request
	for _, expansion := range q.ctx.serviceList().Query(request.ServiceName, request.Socktype, request.Protocol, request.Port) {
		q.addPath(Path{
			Family:   family,
			Address:  address,
			Ifindex:  ifindex,
			Socktype: expansion.Socktype,
			Protocol: expansion.Protocol,
			Port:     expansion.Port,
			TTL:      ttl,
		})
	}
}

// SetCanonicalName records the canonical node name. Last writer wins.
func (q *Query) SetCanonicalName(name string) {
	q.response.NodeName = name
}

// SetServiceName records the service name of a reverse lookup. Last writer
// wins.
func (q *Query) SetServiceName(name string) {
	q.response.ServiceName = name
}

// SetDNSAnswer records the raw DNS answer of a dns request. Last writer
// wins.
func (q *Query) SetDNSAnswer(answer []byte) {
	q.response.DNSAnswer = append([]byte(nil), answer...)
}

// SetSecurity raises the security level of subsequently added paths. The
// level is monotone: once secure it cannot be downgraded by a later
// backend.
func (q *Query) SetSecurity(level Security) {
	if level > q.response.Security {
		q.response.Security = level
	}
}

// Paths returns the accumulated endpoint list in insertion order.
func (q *Query) Paths() []Path {
	return q.response.Paths
}

// NodeName returns the canonical node name of a forward query or the node
// name of a reverse query. For a completed forward query without a
// canonical answer it falls back to the request's node name, or
// "localhost" when the node was empty.
func (q *Query) NodeName() string {
	if q.response.NodeName != "" {
		return q.response.NodeName
	}
	if q.state != stateDone || q.request.Type != RequestForward {
		return ""
	}
	if q.request.NodeName != "" {
		return q.request.NodeName
	}
	return "localhost"
}

// ServiceName returns the service name of a completed reverse query.
func (q *Query) ServiceName() string {
	return q.response.ServiceName
}

// DNSAnswer returns the raw answer of a completed dns query.
func (q *Query) DNSAnswer() []byte {
	return q.response.DNSAnswer
}

// Security returns the security level of the response.
func (q *Query) Security() Security {
	return q.response.Security
}
