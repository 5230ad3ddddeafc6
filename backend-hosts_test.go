package netresolve

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeHosts(t *testing.T, content string) string {
	name := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
	return name
}

func TestHostsForward(t *testing.T) {
	file := writeHosts(t, `
127.0.0.1 localhost
192.0.2.1 testhost testalias # comment
2001:db8::1 testhost
`)

	ctx := newTestContext(t, "hosts:"+file)
	q, err := ctx.QueryForward("testhost", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	paths := q.Paths()
	require.Len(t, paths, 2)
	require.Equal(t, net.IP{192, 0, 2, 1}, paths[0].Address)
	require.Equal(t, FamilyIP4, paths[0].Family)
	require.Equal(t, net.ParseIP("2001:db8::1"), paths[1].Address)
	require.Equal(t, FamilyIP6, paths[1].Family)

	// Aliases resolve too.
	q2, err := ctx.QueryForward("testalias", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q2.Free()
	require.NoError(t, q2.Wait())
	require.Len(t, q2.Paths(), 1)
}

func TestHostsUnknown(t *testing.T) {
	file := writeHosts(t, "192.0.2.1 testhost\n")

	ctx := newTestContext(t, "hosts:"+file)
	q, err := ctx.QueryForward("nosuchhost", "80", nil)
	require.NoError(t, err)
	defer q.Free()
	require.ErrorIs(t, q.Wait(), ErrNoData)
}

func TestHostsReverseRoundtrip(t *testing.T) {
	file := writeHosts(t, "192.0.2.1 testhost\n2001:db8::7 sixhost\n")

	ctx := newTestContext(t, "hosts:"+file)

	q, err := ctx.QueryForward("testhost", "", nil)
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())
	require.NotEmpty(t, q.Paths())

	r, err := ctx.QueryReverse(q.Paths()[0].Address, nil)
	require.NoError(t, err)
	defer r.Free()
	require.NoError(t, r.Wait())
	require.Equal(t, "testhost", r.NodeName())
}

func TestHostsReversePort(t *testing.T) {
	hosts := writeHosts(t, "192.0.2.1 testhost\n")
	services := writeServices(t, "http 80/tcp\n")
	t.Setenv("NETRESOLVE_SERVICES", services)

	ctx := newTestContext(t, "hosts:"+hosts)
	q, err := ctx.QueryReverse(net.IP{192, 0, 2, 1}, nil, WithPort(80), WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())
	require.Equal(t, "testhost", q.NodeName())
	require.Equal(t, "http", q.ServiceName())
}
