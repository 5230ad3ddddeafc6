package netresolve

import (
	"net"
	"os"
)

func init() {
	RegisterBackend("hostname", func() Backend { return &hostnameBackend{} })
}

// The hostname backend answers forward queries for the system hostname with
// the addresses of the local interfaces, preferring non-loopback,
// non-link-local ones.
type hostnameBackend struct {
	BaseBackend
}

func interfaceAddresses() []Path {
	var paths []Path

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP
			path := Path{Address: ip, TTL: TTLInfinite}
			if ip4 := ip.To4(); ip4 != nil {
				path.Family = FamilyIP4
				path.Address = ip4
			} else {
				path.Family = FamilyIP6
				if ip.IsLinkLocalUnicast() {
					path.Ifindex = iface.Index
				}
			}
			paths = append(paths, path)
		}
	}
	return paths
}

func (b *hostnameBackend) QueryForward(q *Query, settings []string) {
	hostname, err := os.Hostname()
	if err != nil || q.Request().NodeName != hostname {
		q.Fail()
		return
	}

	paths := interfaceAddresses()

	count := 0
	for _, path := range paths {
		if path.Address.IsLoopback() || path.Ifindex != 0 {
			continue
		}
		q.AddAddress(path.Family, path.Address, 0)
		count++
	}
	if count == 0 {
		for _, path := range paths {
			q.AddAddress(path.Family, path.Address, path.Ifindex)
			count++
		}
	}
	if count == 0 {
		q.Fail()
		return
	}

	q.SetCanonicalName(hostname)
	q.Finish()
}
