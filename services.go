package netresolve

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// A protocol descriptor pairs a socket type with an IP protocol. Descriptors
// marked as a default pair are the only ones consulted when the caller
// specifies neither a socket type nor a protocol. Order matches glibc's
// getaddrinfo() implementation.
type protocolDescriptor struct {
	socktype    Socktype
	protocol    int
	defaultPair bool
	name        string
}

var protocolDescriptors = []protocolDescriptor{
	{SocktypeStream, ProtocolTCP, true, "tcp"},
	{SocktypeDgram, ProtocolUDP, true, "udp"},
	{SocktypeDgram, ProtocolDCCP, false, "dccp"},
	{SocktypeDgram, ProtocolUDPLite, false, "udplite"},
	{SocktypeStream, ProtocolSCTP, false, "sctp"},
	{SocktypeSeqpacket, ProtocolSCTP, false, "sctp"},
}

func protocolFromString(s string) int {
	for _, descriptor := range protocolDescriptors {
		if s == descriptor.name {
			return descriptor.protocol
		}
	}
	return 0
}

// ServiceEntry is one parsed line of a services file: a service name bound
// to a port for one protocol.
type ServiceEntry struct {
	Name     string
	Protocol int
	Port     int
}

// ServiceList is the service directory of a context. It maps service names
// and numeric ports to (socktype, protocol, port) expansions, preserving the
// order of the file it was loaded from.
type ServiceList struct {
	entries []ServiceEntry
}

// ServiceExpansion is one (socktype, protocol, port) triple produced for a
// service name.
type ServiceExpansion struct {
	Name     string
	Socktype Socktype
	Protocol int
	Port     int
}

// LoadServices reads a services file in the usual `name port/proto aliases`
// format. An empty path consults NETRESOLVE_SERVICES, then
// /etc/netresolve/services, then /etc/services.
func LoadServices(path string) *ServiceList {
	services := new(ServiceList)

	var paths []string
	if path != "" {
		paths = []string{path}
	} else if env := os.Getenv("NETRESOLVE_SERVICES"); env != "" {
		paths = []string{env}
	} else {
		paths = []string{"/etc/netresolve/services", "/etc/services"}
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			services.readLine(scanner.Text())
		}
		f.Close()
		break
	}

	return services
}

func (s *ServiceList) readLine(line string) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return
	}
	portProto := strings.SplitN(fields[1], "/", 2)
	if len(portProto) != 2 {
		return
	}
	port, err := strconv.Atoi(portProto[0])
	if err != nil || port == 0 {
		return
	}
	protocol := protocolFromString(portProto[1])
	if protocol == 0 {
		return
	}
	s.entries = append(s.entries, ServiceEntry{Name: fields[0], Protocol: protocol, Port: port})
	for _, alias := range fields[2:] {
		s.entries = append(s.entries, ServiceEntry{Name: alias, Protocol: protocol, Port: port})
	}
}

// Expand a port across the protocol descriptors compatible with the given
// socktype/protocol filter. With both left unspecified only default pairs
// contribute.
func expandPort(name string, socktype Socktype, protocol, port int, emit func(ServiceExpansion)) {
	for _, descriptor := range protocolDescriptors {
		if socktype != SocktypeAny && socktype != descriptor.socktype {
			continue
		}
		if protocol != ProtocolAny && protocol != descriptor.protocol {
			continue
		}
		if (socktype == SocktypeAny || protocol == ProtocolAny) && !descriptor.defaultPair {
			continue
		}
		emit(ServiceExpansion{Name: name, Socktype: descriptor.socktype, Protocol: descriptor.protocol, Port: port})
	}
}

// Query resolves a service name or numeric port, plus an optional
// socktype/protocol filter, into an ordered list of expansions. The output
// order is derived from the file order and the protocol descriptor table.
func (s *ServiceList) Query(name string, socktype Socktype, protocol, port int) []ServiceExpansion {
	var out []ServiceExpansion
	emit := func(e ServiceExpansion) { out = append(out, e) }

	// A numeric service name is used as the port directly.
	if name != "" && port == 0 {
		if n, err := strconv.Atoi(name); err == nil {
			expandPort(name, socktype, protocol, n, emit)
			return out
		}
	}

	for _, entry := range s.entries {
		if name != "" && name != entry.Name {
			continue
		}
		if protocol != ProtocolAny && protocol != entry.Protocol {
			continue
		}
		if (port != 0 || name == "") && port != entry.Port {
			continue
		}
		expandPort(entry.Name, socktype, entry.Protocol, entry.Port, emit)
	}

	if len(out) == 0 {
		fallback := ""
		if port != 0 {
			fallback = strconv.Itoa(port)
		}
		expandPort(fallback, socktype, protocol, port, emit)
	}

	return out
}

// NameByPort returns the first service name matching a port and optional
// protocol filter, or the empty string.
func (s *ServiceList) NameByPort(port, protocol int) string {
	for _, entry := range s.entries {
		if entry.Port != port {
			continue
		}
		if protocol != ProtocolAny && protocol != entry.Protocol {
			continue
		}
		return entry.Name
	}
	return ""
}
