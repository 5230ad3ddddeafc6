package netresolve

import (
	"expvar"
	"fmt"
)

// Get an *expvar.Int with the given path.
func getVarInt(base string, id string, name string) *expvar.Int {
	fullname := fmt.Sprintf("netresolve.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

// Get an *expvar.Map with the given path.
func getVarMap(base string, id string, name string) *expvar.Map {
	fullname := fmt.Sprintf("netresolve.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Map)
	}
	return expvar.NewMap(fullname)
}

// BackendMetrics holds expvar counters for one backend in a chain.
type BackendMetrics struct {
	// Number of queries that entered the backend
	query *expvar.Int
	// Number of queries the backend resolved
	resolved *expvar.Int
	// Number of queries that fell through to the next backend
	failure *expvar.Int
}

func NewBackendMetrics(name string) *BackendMetrics {
	return &BackendMetrics{
		query:    getVarInt("backend", name, "query"),
		resolved: getVarInt("backend", name, "resolved"),
		failure:  getVarInt("backend", name, "failure"),
	}
}
