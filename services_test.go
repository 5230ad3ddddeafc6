package netresolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeServices(t *testing.T, content string) string {
	name := filepath.Join(t.TempDir(), "services")
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
	return name
}

func TestServicesNumeric(t *testing.T) {
	services := LoadServices(writeServices(t, ""))

	// Fully specified filter: exactly one expansion.
	out := services.Query("80", SocktypeStream, ProtocolTCP, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "80", Socktype: SocktypeStream, Protocol: ProtocolTCP, Port: 80},
	}, out)

	// Nothing specified: only the default pairs contribute.
	out = services.Query("80", SocktypeAny, ProtocolAny, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "80", Socktype: SocktypeStream, Protocol: ProtocolTCP, Port: 80},
		{Name: "80", Socktype: SocktypeDgram, Protocol: ProtocolUDP, Port: 80},
	}, out)
}

func TestServicesFile(t *testing.T) {
	services := LoadServices(writeServices(t, `
# comment
http 80/tcp www www-http # trailing comment
https 443/tcp
domain 53/tcp
domain 53/udp
bogus x/tcp
`))

	out := services.Query("http", SocktypeAny, ProtocolAny, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "http", Socktype: SocktypeStream, Protocol: ProtocolTCP, Port: 80},
	}, out)

	// Aliases resolve like the primary name.
	out = services.Query("www", SocktypeAny, ProtocolAny, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "www", Socktype: SocktypeStream, Protocol: ProtocolTCP, Port: 80},
	}, out)

	// File order is preserved across protocols.
	out = services.Query("domain", SocktypeAny, ProtocolAny, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "domain", Socktype: SocktypeStream, Protocol: ProtocolTCP, Port: 53},
		{Name: "domain", Socktype: SocktypeDgram, Protocol: ProtocolUDP, Port: 53},
	}, out)

	// Protocol filter selects the matching entry only.
	out = services.Query("domain", SocktypeAny, ProtocolUDP, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "domain", Socktype: SocktypeDgram, Protocol: ProtocolUDP, Port: 53},
	}, out)
}

func TestServicesUnknownName(t *testing.T) {
	services := LoadServices(writeServices(t, "http 80/tcp\n"))

	// Unknown non-numeric name without a port: expansion of port 0.
	out := services.Query("nosuch", SocktypeStream, ProtocolTCP, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "", Socktype: SocktypeStream, Protocol: ProtocolTCP, Port: 0},
	}, out)
}

func TestServicesNoService(t *testing.T) {
	services := LoadServices(writeServices(t, "http 80/tcp\n"))

	// No service at all: default pairs with port 0.
	out := services.Query("", SocktypeAny, ProtocolAny, 0)
	require.Equal(t, []ServiceExpansion{
		{Name: "", Socktype: SocktypeStream, Protocol: ProtocolTCP, Port: 0},
		{Name: "", Socktype: SocktypeDgram, Protocol: ProtocolUDP, Port: 0},
	}, out)
}

func TestServicesNameByPort(t *testing.T) {
	services := LoadServices(writeServices(t, "http 80/tcp\ndomain 53/udp\n"))

	require.Equal(t, "http", services.NameByPort(80, ProtocolAny))
	require.Equal(t, "domain", services.NameByPort(53, ProtocolUDP))
	require.Equal(t, "", services.NameByPort(53, ProtocolTCP))
	require.Equal(t, "", services.NameByPort(9999, ProtocolAny))
}

func TestServicesStableOrder(t *testing.T) {
	content := "a 1/tcp\nb 2/udp\nc 3/tcp\n"
	first := LoadServices(writeServices(t, content)).Query("", SocktypeAny, ProtocolAny, 1)
	second := LoadServices(writeServices(t, content)).Query("", SocktypeAny, ProtocolAny, 1)
	require.Equal(t, first, second)
}
