package netresolve

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/unix"
)

// Family identifies the address family of a path.
type Family int

const (
	FamilyUnspec Family = unix.AF_UNSPEC
	FamilyIP4    Family = unix.AF_INET
	FamilyIP6    Family = unix.AF_INET6
	FamilyUnix   Family = unix.AF_UNIX
)

func (f Family) String() string {
	switch f {
	case FamilyIP4:
		return "ip4"
	case FamilyIP6:
		return "ip6"
	case FamilyUnix:
		return "unix"
	default:
		return "any"
	}
}

// FamilyFromString parses a family name as used in configuration and the
// NETRESOLVE_FORCE_FAMILY environment variable.
func FamilyFromString(s string) Family {
	switch strings.ToLower(s) {
	case "ip4", "inet", "ipv4":
		return FamilyIP4
	case "ip6", "inet6", "ipv6":
		return FamilyIP6
	case "unix", "local":
		return FamilyUnix
	default:
		return FamilyUnspec
	}
}

// Socktype identifies the socket type of a path.
type Socktype int

const (
	SocktypeAny       Socktype = 0
	SocktypeStream    Socktype = unix.SOCK_STREAM
	SocktypeDgram     Socktype = unix.SOCK_DGRAM
	SocktypeSeqpacket Socktype = unix.SOCK_SEQPACKET
	SocktypeRaw       Socktype = unix.SOCK_RAW
)

func (t Socktype) String() string {
	switch t {
	case SocktypeStream:
		return "stream"
	case SocktypeDgram:
		return "dgram"
	case SocktypeSeqpacket:
		return "seqpacket"
	case SocktypeRaw:
		return "raw"
	case SocktypeAny:
		return "any"
	default:
		return "unknown"
	}
}

// SocktypeFromString parses a socket type name.
func SocktypeFromString(s string) Socktype {
	switch strings.ToLower(s) {
	case "stream":
		return SocktypeStream
	case "dgram":
		return SocktypeDgram
	case "seqpacket":
		return SocktypeSeqpacket
	case "raw":
		return SocktypeRaw
	default:
		return SocktypeAny
	}
}

// IP protocols used by the built-in protocol descriptor table.
const (
	ProtocolAny     = 0
	ProtocolTCP     = unix.IPPROTO_TCP
	ProtocolUDP     = unix.IPPROTO_UDP
	ProtocolSCTP    = unix.IPPROTO_SCTP
	ProtocolDCCP    = unix.IPPROTO_DCCP
	ProtocolUDPLite = unix.IPPROTO_UDPLITE
)

func protocolToString(protocol int) string {
	switch protocol {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolSCTP:
		return "sctp"
	case ProtocolDCCP:
		return "dccp"
	case ProtocolUDPLite:
		return "udplite"
	case ProtocolAny:
		return "any"
	default:
		return "unknown"
	}
}

// Security indicates whether a result was obtained over a validated channel,
// e.g. carried the DNSSEC authenticated-data bit.
type Security int

const (
	SecurityInsecure Security = iota
	SecuritySecure
)

// TTLInfinite marks a path whose source does not expire it.
const TTLInfinite = -1

// Path is one endpoint produced by a backend: an address, the transport on
// top of it, and auxiliary SRV and DNSSEC information.
type Path struct {
	Family   Family
	Address  net.IP // 4 or 16 bytes, keyed by Family
	Path     string // UNIX socket path, FamilyUnix only
	Ifindex  int    // link-local IPv6 scope, 0 otherwise
	Socktype Socktype
	Protocol int
	Port     int
	Priority int
	Weight   int
	TTL      int // seconds, TTLInfinite if the source doesn't expire it
	Security Security
}

// Sockaddr materializes the path as a socket address suitable for bind and
// connect, with the port in network order and the ifindex in the IPv6 scope
// field.
func (p *Path) Sockaddr() (unix.Sockaddr, error) {
	switch p.Family {
	case FamilyIP4:
		ip := p.Address.To4()
		if ip == nil {
			return nil, BadRequestError{Reason: fmt.Sprintf("not an IPv4 address: %s", p.Address)}
		}
		sa := &unix.SockaddrInet4{Port: p.Port}
		copy(sa.Addr[:], ip)
		return sa, nil
	case FamilyIP6:
		ip := p.Address.To16()
		if ip == nil || p.Address.To4() != nil {
			return nil, BadRequestError{Reason: fmt.Sprintf("not an IPv6 address: %s", p.Address)}
		}
		sa := &unix.SockaddrInet6{Port: p.Port, ZoneId: uint32(p.Ifindex)}
		copy(sa.Addr[:], ip)
		return sa, nil
	case FamilyUnix:
		return &unix.SockaddrUnix{Name: p.Path}, nil
	default:
		return nil, BadRequestError{Reason: fmt.Sprintf("no socket address for family %s", p.Family)}
	}
}

// Host returns the address with the interface scope attached, the format
// accepted back by the numerichost backend.
func (p *Path) Host() string {
	if p.Family == FamilyUnix {
		return p.Path
	}
	if p.Ifindex != 0 {
		return fmt.Sprintf("%s%%%d", p.Address, p.Ifindex)
	}
	return p.Address.String()
}

func familyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIP4
	}
	if ip.To16() != nil {
		return FamilyIP6
	}
	return FamilyUnspec
}
