package netresolve

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Resolve, bind and listen on a loopback socket, then resolve and connect
// to it, and verify the two ends pass data.
func TestBindConnect(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)
	ctx.SetOptions(WithFamily(FamilyIP4), WithSocktype(SocktypeStream), WithProtocol(ProtocolTCP))

	sockServer, err := ctx.Bind("", "0", WithDefaultLoopback(true))
	require.NoError(t, err)
	defer unix.Close(sockServer)
	require.NoError(t, unix.Listen(sockServer, 10))

	sa, err := unix.Getsockname(sockServer)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	sockClient, err := ctx.Connect("127.0.0.1", fmt.Sprintf("%d", port))
	require.NoError(t, err)
	defer unix.Close(sockClient)

	sockAccept, _, err := unix.Accept(sockServer)
	require.NoError(t, err)
	defer unix.Close(sockAccept)

	out := []byte("asdf\n")
	n, err := unix.Write(sockClient, out)
	require.NoError(t, err)
	require.Equal(t, len(out), n)

	in := make([]byte, 16)
	n, err = unix.Read(sockAccept, in)
	require.NoError(t, err)
	require.Equal(t, out, in[:n])
}

func TestConnectNoListener(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)
	ctx.SetOptions(WithFamily(FamilyIP4), WithSocktype(SocktypeStream), WithProtocol(ProtocolTCP))

	// Port 1 on loopback is almost certainly closed; the helper must
	// report failure rather than hand out a socket.
	_, err := ctx.Connect("127.0.0.1", "1")
	require.Error(t, err)
}

func TestSockaddrView(t *testing.T) {
	path := Path{
		Family:  FamilyIP6,
		Address: mustIP(t, "fe80::1"),
		Ifindex: 4,
		Port:    443,
	}
	sa, err := path.Sockaddr()
	require.NoError(t, err)
	sa6 := sa.(*unix.SockaddrInet6)
	require.Equal(t, 443, sa6.Port)
	require.Equal(t, uint32(4), sa6.ZoneId)

	path = Path{Family: FamilyUnix, Path: "/run/test.sock"}
	sa, err = path.Sockaddr()
	require.NoError(t, err)
	require.Equal(t, "/run/test.sock", sa.(*unix.SockaddrUnix).Name)
}
