package netresolve

import (
	"fmt"
	"strings"
)

const (
	packageName    = "netresolve"
	packageVersion = "1.0.0"
)

// One line of the diagnostic response dump and the exec backend protocol.
func pathString(path *Path) string {
	if path.Family == FamilyUnix {
		return fmt.Sprintf("unix %s %s", path.Path, path.Socktype)
	}
	return fmt.Sprintf("path %s %s %s %d %d %d",
		path.Host(), path.Socktype, protocolToString(path.Protocol),
		path.Port, path.Priority, path.Weight)
}

// RequestString renders the request in the line format consumed by exec
// backend subprocesses: one line per parameter, terminated by a blank line.
func (q *Query) RequestString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "request %s %s\n", packageName, packageVersion)
	if q.request.NodeName != "" {
		fmt.Fprintf(&b, "node %s\n", q.request.NodeName)
	}
	if q.request.ServiceName != "" {
		fmt.Fprintf(&b, "service %s\n", q.request.ServiceName)
	}
	b.WriteString("\n")
	return b.String()
}

// ResponseString renders the accumulated response as the diagnostic text
// dump: one line per path, terminated by a blank line.
func (q *Query) ResponseString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "response %s %s\n", packageName, packageVersion)
	for i := range q.response.Paths {
		b.WriteString(pathString(&q.response.Paths[i]))
		b.WriteString("\n")
	}
	if q.response.NodeName != "" {
		fmt.Fprintf(&b, "name %s\n", q.response.NodeName)
	}
	if q.response.ServiceName != "" {
		fmt.Fprintf(&b, "service %s\n", q.response.ServiceName)
	}
	b.WriteString("\n")
	return b.String()
}
