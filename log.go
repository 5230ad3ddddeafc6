package netresolve

import (
	"github.com/sirupsen/logrus"
)

// Log is the logger used by the library. It defaults to the standard logrus
// logger at Info level; set NETRESOLVE_VERBOSE or change the level directly
// to see per-query state transitions and backend activity.
var Log = logrus.New()

// Returns a logger annotated with query details.
func logger(q *Query) *logrus.Entry {
	fields := logrus.Fields{
		"type": q.request.Type.String(),
	}
	switch q.request.Type {
	case RequestForward:
		fields["node"] = q.request.NodeName
		fields["service"] = q.request.ServiceName
	case RequestReverse:
		fields["address"] = q.request.Address
	case RequestDNS:
		fields["name"] = q.request.DNSName
	}
	if b := q.currentBackend(); b != nil {
		fields["backend"] = b.name
	}
	return Log.WithFields(fields)
}
