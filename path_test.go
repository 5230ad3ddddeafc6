package netresolve

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustIP(t *testing.T, s string) net.IP {
	ip := net.ParseIP(s)
	require.NotNil(t, ip)
	return ip
}

func TestParseAddress(t *testing.T) {
	ip, family, ifindex, ok := ParseAddress("192.0.2.1")
	require.True(t, ok)
	require.Equal(t, FamilyIP4, family)
	require.Equal(t, net.IP{192, 0, 2, 1}, ip)
	require.Equal(t, 0, ifindex)

	ip, family, ifindex, ok = ParseAddress("fe80::1%42")
	require.True(t, ok)
	require.Equal(t, FamilyIP6, family)
	require.Equal(t, mustIP(t, "fe80::1"), ip)
	require.Equal(t, 42, ifindex)

	_, _, _, ok = ParseAddress("not-an-address")
	require.False(t, ok)

	_, _, _, ok = ParseAddress("fe80::1%bogus0")
	require.False(t, ok)
}

func TestParsePath(t *testing.T) {
	path, ok := ParsePath("192.0.2.1 stream tcp 80 10 20")
	require.True(t, ok)
	require.Equal(t, FamilyIP4, path.Family)
	require.Equal(t, net.IP{192, 0, 2, 1}, path.Address)
	require.Equal(t, SocktypeStream, path.Socktype)
	require.Equal(t, ProtocolTCP, path.Protocol)
	require.Equal(t, 80, path.Port)
	require.Equal(t, 10, path.Priority)
	require.Equal(t, 20, path.Weight)

	_, ok = ParsePath("192.0.2.1 stream tcp 80")
	require.False(t, ok)
	_, ok = ParsePath("junk stream tcp 80 0 0")
	require.False(t, ok)
}

func TestFamilyStrings(t *testing.T) {
	require.Equal(t, FamilyIP4, FamilyFromString("ip4"))
	require.Equal(t, FamilyIP6, FamilyFromString("ipv6"))
	require.Equal(t, FamilyUnix, FamilyFromString("unix"))
	require.Equal(t, FamilyUnspec, FamilyFromString("whatever"))

	require.Equal(t, "ip4", FamilyIP4.String())
	require.Equal(t, "unix", FamilyUnix.String())
	require.Equal(t, "any", FamilyUnspec.String())
}

func TestHostFormat(t *testing.T) {
	path := Path{Family: FamilyIP6, Address: mustIP(t, "fe80::1"), Ifindex: 3}
	require.Equal(t, "fe80::1%3", path.Host())

	path = Path{Family: FamilyIP4, Address: net.IP{192, 0, 2, 1}}
	require.Equal(t, "192.0.2.1", path.Host())

	path = Path{Family: FamilyUnix, Path: "/run/x.sock"}
	require.Equal(t, "/run/x.sock", path.Host())
}
