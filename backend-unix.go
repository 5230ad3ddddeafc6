package netresolve

import (
	"strings"
)

func init() {
	RegisterBackend("unix", func() Backend { return &unixBackend{} })
}

// The unix backend answers forward queries whose node name is an absolute
// filesystem path with a single UNIX socket path.
type unixBackend struct {
	BaseBackend
}

func (b *unixBackend) QueryForward(q *Query, settings []string) {
	request := q.Request()

	if request.Family != FamilyUnix && request.Family != FamilyUnspec {
		q.Fail()
		return
	}
	if !strings.HasPrefix(request.NodeName, "/") {
		q.Fail()
		return
	}

	q.AddPath(Path{
		Family:   FamilyUnix,
		Path:     request.NodeName,
		Socktype: request.Socktype,
		TTL:      TTLInfinite,
	})
	q.Finish()
}
