package netresolve

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Builds a context with an isolated backend chain. Backends named here are
// registered globally, so test chains use unique names.
var testBackendSeq int

func registerTestBackend(t *testing.T, b Backend) string {
	testBackendSeq++
	name := fmt.Sprintf("test-%d", testBackendSeq)
	RegisterBackend(name, func() Backend { return b })
	return name
}

type funcBackend struct {
	BaseBackend
	forward  func(q *Query, settings []string)
	dispatch func(q *Query, fd int, events Events)
	cleanup  func(q *Query)
}

func (b *funcBackend) QueryForward(q *Query, settings []string) { b.forward(q, settings) }

func (b *funcBackend) Dispatch(q *Query, fd int, events Events) {
	if b.dispatch != nil {
		b.dispatch(q, fd, events)
	}
}

func (b *funcBackend) Cleanup(q *Query) {
	if b.cleanup != nil {
		b.cleanup(q)
	}
}

func newTestContext(t *testing.T, backends string) *Context {
	ctx := NewContext()
	t.Cleanup(ctx.Close)
	require.NoError(t, ctx.SetBackendString(backends))
	return ctx
}

func TestNumericIP6WithScope(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)

	q, err := ctx.QueryForward("1:2:3:4:5:6:7:8%999999", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	paths := q.Paths()
	require.Len(t, paths, 1)
	require.Equal(t, FamilyIP6, paths[0].Family)
	require.Equal(t, net.ParseIP("1:2:3:4:5:6:7:8"), paths[0].Address)
	require.Equal(t, 999999, paths[0].Ifindex)
	require.Equal(t, SocktypeStream, paths[0].Socktype)
	require.Equal(t, ProtocolTCP, paths[0].Protocol)
	require.Equal(t, 80, paths[0].Port)
}

func TestNumericIP4(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)

	q, err := ctx.QueryForward("1.2.3.4", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	paths := q.Paths()
	require.Len(t, paths, 1)
	require.Equal(t, FamilyIP4, paths[0].Family)
	require.Equal(t, net.IP{1, 2, 3, 4}, paths[0].Address)
	require.Equal(t, SocktypeStream, paths[0].Socktype)
	require.Equal(t, ProtocolTCP, paths[0].Protocol)
	require.Equal(t, 80, paths[0].Port)
}

func TestLoopbackDefaulting(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)

	q, err := ctx.QueryForward("", "", nil,
		WithDefaultLoopback(true), WithSocktype(SocktypeStream))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	paths := q.Paths()
	require.Len(t, paths, 2)
	require.Equal(t, FamilyIP4, paths[0].Family)
	require.Equal(t, net.IP{127, 0, 0, 1}, paths[0].Address)
	require.Equal(t, FamilyIP6, paths[1].Family)
	require.Equal(t, net.IPv6loopback, paths[1].Address)
}

func TestAnyAddress(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)

	q, err := ctx.QueryForward("", "", nil, WithSocktype(SocktypeStream))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	paths := q.Paths()
	require.Len(t, paths, 2)
	require.Equal(t, FamilyIP4, paths[0].Family)
	require.Equal(t, net.IPv4zero.To4(), paths[0].Address)
	require.Equal(t, FamilyIP6, paths[1].Family)
	require.Equal(t, net.IPv6unspecified, paths[1].Address)
}

func TestUnixPath(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)

	q, err := ctx.QueryForward("/tmp/s", "", nil, WithSocktype(SocktypeStream))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	paths := q.Paths()
	require.Len(t, paths, 1)
	require.Equal(t, FamilyUnix, paths[0].Family)
	require.Equal(t, "/tmp/s", paths[0].Path)
	require.Equal(t, SocktypeStream, paths[0].Socktype)
}

func TestFamilyFilter(t *testing.T) {
	name := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.AddAddress(FamilyIP4, net.IP{192, 0, 2, 1}, 0)
			q.AddAddress(FamilyIP6, net.ParseIP("2001:db8::1"), 0)
			q.Finish()
		},
	})

	for _, tt := range []struct {
		family Family
		want   []Family
	}{
		{FamilyIP4, []Family{FamilyIP4}},
		{FamilyIP6, []Family{FamilyIP6}},
		{FamilyUnspec, []Family{FamilyIP4, FamilyIP6}},
	} {
		ctx := newTestContext(t, name)
		q, err := ctx.QueryForward("test", "80", nil,
			WithFamily(tt.family), WithProtocol(ProtocolTCP))
		require.NoError(t, err)
		require.NoError(t, q.Wait())
		var families []Family
		for _, path := range q.Paths() {
			families = append(families, path.Family)
		}
		require.Equal(t, tt.want, families)
		q.Free()
	}
}

func TestQueryIdempotence(t *testing.T) {
	ctx := newTestContext(t, DefaultBackends)

	resolve := func() []Path {
		q, err := ctx.QueryForward("1.2.3.4", "80", nil)
		require.NoError(t, err)
		defer q.Free()
		require.NoError(t, q.Wait())
		return append([]Path(nil), q.Paths()...)
	}

	first := resolve()
	second := resolve()
	require.Equal(t, first, second)
}

func TestChainFallThrough(t *testing.T) {
	var order []string
	failing := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			order = append(order, "failing")
			q.Fail()
		},
	})
	answering := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			order = append(order, "answering")
			q.AddAddress(FamilyIP4, net.IP{192, 0, 2, 7}, 0)
			q.Finish()
		},
	})

	ctx := newTestContext(t, failing+"|"+answering)
	q, err := ctx.QueryForward("test", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	require.Equal(t, []string{"failing", "answering"}, order)
	require.Len(t, q.Paths(), 1)
	require.Equal(t, net.IP{192, 0, 2, 7}, q.Paths()[0].Address)
}

func TestMandatoryBackend(t *testing.T) {
	answering := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.AddAddress(FamilyIP4, net.IP{192, 0, 2, 1}, 0)
			q.Finish()
		},
	})
	mandatory := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.AddAddress(FamilyIP4, net.IP{192, 0, 2, 2}, 0)
			q.Finish()
		},
	})

	// The mandatory backend runs even though the first one sufficed, and
	// its paths come after the first one's.
	ctx := newTestContext(t, answering+"|+"+mandatory)
	q, err := ctx.QueryForward("test", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())

	paths := q.Paths()
	require.Len(t, paths, 2)
	require.Equal(t, net.IP{192, 0, 2, 1}, paths[0].Address)
	require.Equal(t, net.IP{192, 0, 2, 2}, paths[1].Address)

	// Without the mandatory flag the second backend is skipped.
	ctx2 := newTestContext(t, answering+"|"+mandatory)
	q2, err := ctx2.QueryForward("test", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q2.Free()
	require.NoError(t, q2.Wait())
	require.Len(t, q2.Paths(), 1)
}

func TestMandatoryBackendFailureKeepsPaths(t *testing.T) {
	answering := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.AddAddress(FamilyIP4, net.IP{192, 0, 2, 1}, 0)
			q.Finish()
		},
	})
	failing := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) { q.Fail() },
	})

	ctx := newTestContext(t, answering+"|+"+failing)
	q, err := ctx.QueryForward("test", "80", nil, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()

	// The mandatory backend failing doesn't discard the committed result.
	require.NoError(t, q.Wait())
	require.Len(t, q.Paths(), 1)
}

func TestNoData(t *testing.T) {
	failing := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) { q.Fail() },
	})

	ctx := newTestContext(t, failing)
	q, err := ctx.QueryForward("test", "", nil)
	require.NoError(t, err)
	defer q.Free()
	require.ErrorIs(t, q.Wait(), ErrNoData)
	require.Empty(t, q.Paths())
}

func TestCallbackFiresExactlyOnce(t *testing.T) {
	name := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.AddAddress(FamilyIP4, net.IP{192, 0, 2, 1}, 0)
			q.Finish()
		},
	})

	ctx := newTestContext(t, name)
	calls := 0
	q, err := ctx.QueryForward("test", "80", func(q *Query, err error) {
		calls++
		require.NoError(t, err)
	}, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()
	require.NoError(t, q.Wait())
	require.Equal(t, 1, calls)
}

func TestRequestTimeout(t *testing.T) {
	hanging := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.SetData(q.WatchTimeout(10 * time.Second))
		},
		cleanup: func(q *Query) {
			q.DropTimeout(q.Data().(int))
		},
	})

	ctx := newTestContext(t, hanging)
	start := time.Now()
	q, err := ctx.QueryForward("test", "", nil,
		WithTimeout(100*time.Millisecond), WithPartialTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer q.Free()

	err = q.Wait()
	var timeout TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Empty(t, q.Paths())
}

func TestPartialResultWindow(t *testing.T) {
	// Emits one path from a dispatch and then goes quiet; the partial
	// window must close the query with that path committed.
	emitting := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.SetData(q.WatchTimeout(10 * time.Millisecond))
		},
		dispatch: func(q *Query, fd int, events Events) {
			if q.Data().(int) == -1 {
				return
			}
			q.DropTimeout(fd)
			q.SetData(-1)
			q.AddAddress(FamilyIP4, net.IP{192, 0, 2, 9}, 0)
		},
		cleanup: func(q *Query) {
			if fd := q.Data().(int); fd != -1 {
				q.DropTimeout(fd)
			}
		},
	})

	ctx := newTestContext(t, emitting)
	start := time.Now()
	q, err := ctx.QueryForward("test", "80", nil,
		WithProtocol(ProtocolTCP),
		WithTimeout(5*time.Second), WithPartialTimeout(100*time.Millisecond))
	require.NoError(t, err)
	defer q.Free()

	require.NoError(t, q.Wait())
	require.Len(t, q.Paths(), 1)
	require.Less(t, time.Since(start), time.Second)
}

func TestCancellation(t *testing.T) {
	hanging := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.SetData(q.WatchTimeout(10 * time.Second))
		},
		cleanup: func(q *Query) {
			q.DropTimeout(q.Data().(int))
		},
	})

	ctx := newTestContext(t, hanging)
	called := false
	q, err := ctx.QueryForward("test", "", func(q *Query, err error) { called = true })
	require.NoError(t, err)

	q.Free()
	require.False(t, called)
	require.Empty(t, ctx.sources)
	require.Empty(t, ctx.queries)
}

func TestBackendChainReplacedWhileWaiting(t *testing.T) {
	hanging := registerTestBackend(t, &funcBackend{
		forward: func(q *Query, settings []string) {
			q.SetData(q.WatchTimeout(10 * time.Second))
		},
		cleanup: func(q *Query) {
			q.DropTimeout(q.Data().(int))
		},
	})

	ctx := newTestContext(t, hanging)
	q, err := ctx.QueryForward("test", "", nil)
	require.NoError(t, err)
	defer q.Free()

	require.Error(t, ctx.SetBackendString(DefaultBackends))
}

func TestExternalReactorBridge(t *testing.T) {
	// A minimal poll based loop standing in for an application event loop.
	watched := make(map[int]Events)
	reactor := ReactorFuncs{
		Watch: func(fd int, events Events, cookie interface{}) (interface{}, error) {
			watched[fd] = events
			return fd, nil
		},
		Unwatch: func(fd int, handle interface{}) error {
			delete(watched, handle.(int))
			return nil
		},
	}

	ctx := NewContext()
	defer ctx.Close()
	require.NoError(t, ctx.AttachReactor(reactor))
	require.NoError(t, ctx.SetBackendString(DefaultBackends))

	completed := false
	q, err := ctx.QueryForward("1.2.3.4", "80", func(q *Query, err error) {
		require.NoError(t, err)
		completed = true
	}, WithProtocol(ProtocolTCP))
	require.NoError(t, err)
	defer q.Free()

	deadline := time.Now().Add(5 * time.Second)
	for !completed && time.Now().Before(deadline) {
		var pollfds []unixPollFD
		for fd, events := range watched {
			pollfds = append(pollfds, unixPollFD{fd: fd, events: events})
		}
		ready := pollWait(pollfds, 100)
		for _, r := range ready {
			ctx.DispatchFD(r.fd, r.revents)
		}
	}
	require.True(t, completed)
	require.Len(t, q.Paths(), 1)
	require.Equal(t, net.IP{1, 2, 3, 4}, q.Paths()[0].Address)
}
