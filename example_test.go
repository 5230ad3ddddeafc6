package netresolve_test

import (
	"fmt"

	netresolve "github.com/crossdistro/netresolve"
)

func Example_forward() {
	// Build a context with the default backend chain
	ctx := netresolve.NewContext()
	defer ctx.Close()

	// Resolve a node and service
	q, _ := ctx.QueryForward("localhost", "80", nil,
		netresolve.WithSocktype(netresolve.SocktypeStream))
	defer q.Free()
	q.Wait()

	for _, path := range q.Paths() {
		fmt.Println(path.Host(), path.Port)
	}
	// Output:
	// 127.0.0.1 80
	// ::1 80
}

func Example_chain() {
	// Resolve against the hosts file only, falling back to recursive DNS
	// which is consulted even on success because it is marked mandatory
	ctx := netresolve.NewContext()
	defer ctx.Close()
	ctx.SetBackendString("hosts|+dns")

	q, _ := ctx.QueryForward("example.com", "https", nil)
	defer q.Free()
	q.Wait()

	for _, path := range q.Paths() {
		fmt.Println(path.Host())
	}
}

func Example_callback() {
	ctx := netresolve.NewContext()
	defer ctx.Close()

	// The completion callback fires once the chain is done
	q, _ := ctx.QueryForward("127.0.0.1", "53", func(q *netresolve.Query, err error) {
		if err != nil {
			fmt.Println("lookup failed:", err)
			return
		}
		fmt.Println(len(q.Paths()), "paths")
	}, netresolve.WithProtocol(netresolve.ProtocolUDP))
	defer q.Free()
	q.Wait()
	// Output:
	// 1 paths
}
