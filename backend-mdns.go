package netresolve

import (
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/sys/unix"
)

func init() {
	RegisterBackend("mdns", func() Backend { return &mdnsBackend{} })
}

var mdnsGroup = [4]byte{224, 0, 0, 251}

const mdnsPort = 5353

// The mdns backend performs one-shot multicast DNS resolution of `.local`
// names. It sends a query with the unicast-response bit to the IPv4 mDNS
// group from an ephemeral port and collects the replies; the partial-result
// window of the engine bounds how long late responders are given.
type mdnsBackend struct {
	BaseBackend
}

type mdnsState struct {
	fd  int
	ids map[uint16]bool // outstanding question ids
}

func (b *mdnsBackend) QueryForward(q *Query, settings []string) {
	request := q.Request()
	name := strings.TrimSuffix(request.NodeName, ".")
	if name == "" || !strings.HasSuffix(name, ".local") {
		q.Fail()
		return
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		q.Fail()
		return
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{}); err != nil {
		unix.Close(fd)
		q.Fail()
		return
	}

	s := &mdnsState{fd: fd, ids: make(map[uint16]bool)}

	group := &unix.SockaddrInet4{Port: mdnsPort, Addr: mdnsGroup}
	var types []uint16
	if request.Family == FamilyIP4 || request.Family == FamilyUnspec {
		types = append(types, dns.TypeA)
	}
	if request.Family == FamilyIP6 || request.Family == FamilyUnspec {
		types = append(types, dns.TypeAAAA)
	}
	sent := 0
	for _, rrtype := range types {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(name), rrtype)
		// Ask for a unicast response, RFC 6762 section 5.4.
		msg.Question[0].Qclass = dns.ClassINET | 1<<15
		out, err := msg.Pack()
		if err != nil {
			continue
		}
		if err := unix.Sendto(fd, out, 0, group); err != nil {
			continue
		}
		s.ids[msg.Id] = true
		sent++
	}
	if sent == 0 {
		unix.Close(fd)
		q.Fail()
		return
	}
	if err := q.WatchFD(fd, EventRead); err != nil {
		unix.Close(fd)
		q.Fail()
		return
	}
	q.SetData(s)
}

func (b *mdnsBackend) Dispatch(q *Query, fd int, events Events) {
	s := q.Data().(*mdnsState)
	if fd != s.fd {
		q.Fail()
		return
	}

	buf := make([]byte, 65535)
	n, _, err := unix.Recvfrom(fd, buf, 0)
	if err == unix.EAGAIN {
		return
	}
	if err != nil || n <= 0 {
		q.Fail()
		return
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(buf[:n]); err != nil || !msg.Response {
		return
	}
	if !s.ids[msg.Id] && msg.Id != 0 {
		// mDNS responders may answer with id 0; anything else must match.
		return
	}

	name := dns.Fqdn(strings.TrimSuffix(q.Request().NodeName, "."))
	for _, rr := range msg.Answer {
		if !strings.EqualFold(rr.Header().Name, name) {
			continue
		}
		switch record := rr.(type) {
		case *dns.A:
			q.AddAddressTTL(FamilyIP4, record.A.To4(), 0, int(record.Hdr.Ttl))
		case *dns.AAAA:
			q.AddAddressTTL(FamilyIP6, record.AAAA, 0, int(record.Hdr.Ttl))
		}
	}
	delete(s.ids, msg.Id)

	// All questions answered; otherwise the partial window collects the
	// stragglers.
	if len(s.ids) == 0 && len(q.Paths()) > 0 {
		q.Finish()
	}
}

func (b *mdnsBackend) Cleanup(q *Query) {
	s, ok := q.Data().(*mdnsState)
	if !ok {
		return
	}
	if s.fd != -1 {
		q.UnwatchFD(s.fd)
		unix.Close(s.fd)
		s.fd = -1
	}
}
