package netresolve

import (
	"strings"
)

// BackendFactory constructs a fresh backend instance for one context.
type BackendFactory func() Backend

var backendFactories = map[string]BackendFactory{}

// RegisterBackend makes a backend available to backend-chain strings under
// the given name. The built-in backends register themselves; applications
// may add their own.
func RegisterBackend(name string, factory BackendFactory) {
	backendFactories[name] = factory
}

// DefaultBackends is the chain used when none is configured.
const DefaultBackends = "unix|any|loopback|numerichost|hosts|hostname|mdns|dns"

// SetBackendString replaces the backend chain of the context. The format is
// `name[:arg]*`, `|`-separated, with a leading `+` marking a backend
// mandatory. An empty string selects the default chain. The chain cannot be
// replaced while a query is suspended in the reactor.
func (c *Context) SetBackendString(s string) error {
	if c.busy() {
		return BadRequestError{Reason: "backend chain replaced while queries are waiting"}
	}
	if s == "" {
		s = DefaultBackends
	}

	var chain []*backendEntry
	for _, element := range strings.Split(s, "|") {
		settings := strings.Split(element, ":")
		name := settings[0]
		mandatory := strings.HasPrefix(name, "+")
		if mandatory {
			name = name[1:]
		}
		if name == "" {
			continue
		}
		factory, ok := backendFactories[name]
		if !ok {
			if mandatory {
				return ConfigError{Backend: name, Reason: "no such backend"}
			}
			Log.WithField("backend", name).Warn("skipping unknown backend")
			continue
		}
		chain = append(chain, newBackendEntry(name, mandatory, settings[1:], factory()))
	}

	c.chain = chain
	c.chainErr = nil
	return nil
}
