package netresolve

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/sys/unix"
)

func init() {
	RegisterBackend("dns", func() Backend { return &dnsBackend{} })
}

// The dns backend resolves queries over recursive DNS. Servers come from
// /etc/resolv.conf unless the chain lists addresses (`dns:192.0.2.1`). Each
// outstanding question is one connected non-blocking UDP socket registered
// with the reactor; answers are matched back by descriptor.
//
// Forward queries ask for A and AAAA records subject to the family filter,
// or perform SRV indirection first when the request asks for it. Reverse
// queries ask for PTR. Raw DNS queries can walk the resolver search list.
type dnsBackend struct {
	BaseBackend
}

type dnsState struct {
	conf    *dns.ClientConfig
	pending map[int]*dnsQuestion
	// Remaining owner names to try for a raw DNS query following the
	// search list.
	names []string
}

type dnsQuestion struct {
	msg *dns.Msg
	// Transport details inherited from an SRV answer.
	port, priority, weight int
	srv                    bool
}

func newDNSState(settings []string) (*dnsState, error) {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		conf = &dns.ClientConfig{Port: "53"}
	}
	if len(settings) > 0 {
		conf.Servers = settings
	}
	if len(conf.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers")
	}
	return &dnsState{conf: conf, pending: make(map[int]*dnsQuestion)}, nil
}

// Open a socket to the first configured server and send the question.
func (s *dnsState) send(q *Query, question *dnsQuestion) error {
	server := net.ParseIP(s.conf.Servers[0])
	if server == nil {
		return fmt.Errorf("bad nameserver: %s", s.conf.Servers[0])
	}
	port := 53
	fmt.Sscanf(s.conf.Port, "%d", &port)

	var (
		fd  int
		sa  unix.Sockaddr
		err error
	)
	if ip4 := server.To4(); ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
		fd, err = unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	} else {
		sa6 := &unix.SockaddrInet6{Port: port}
		copy(sa6.Addr[:], server.To16())
		sa = sa6
		fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	}
	if err != nil {
		return err
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return err
	}
	out, err := question.msg.Pack()
	if err != nil {
		unix.Close(fd)
		return err
	}
	if _, err := unix.Write(fd, out); err != nil {
		unix.Close(fd)
		return err
	}
	if err := q.WatchFD(fd, EventRead); err != nil {
		unix.Close(fd)
		return err
	}
	s.pending[fd] = question
	return nil
}

func newQuestion(name string, rrtype uint16) *dnsQuestion {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), rrtype)
	msg.RecursionDesired = true
	msg.SetEdns0(4096, true)
	return &dnsQuestion{msg: msg}
}

// Ask for the address records matching the family filter, inheriting any
// SRV transport details.
func (s *dnsState) sendAddressQuestions(q *Query, name string, srv *dnsQuestion) int {
	request := q.Request()
	sent := 0

	if request.Family == FamilyIP4 || request.Family == FamilyUnspec {
		question := newQuestion(name, dns.TypeA)
		if srv != nil {
			question.port, question.priority, question.weight = srv.port, srv.priority, srv.weight
			question.srv = true
		}
		if err := s.send(q, question); err == nil {
			sent++
		}
	}
	if request.Family == FamilyIP6 || request.Family == FamilyUnspec {
		question := newQuestion(name, dns.TypeAAAA)
		if srv != nil {
			question.port, question.priority, question.weight = srv.port, srv.priority, srv.weight
			question.srv = true
		}
		if err := s.send(q, question); err == nil {
			sent++
		}
	}
	return sent
}

func (b *dnsBackend) QueryForward(q *Query, settings []string) {
	request := q.Request()
	if request.NodeName == "" || strings.HasPrefix(request.NodeName, "/") {
		q.Fail()
		return
	}
	s, err := newDNSState(settings)
	if err != nil {
		logger(q).WithError(err).Debug("dns backend unavailable")
		q.Fail()
		return
	}
	q.SetData(s)

	sent := 0
	if request.DNSSRVLookup && request.ServiceName != "" {
		name := fmt.Sprintf("_%s._%s.%s", request.ServiceName,
			protocolToString(request.Protocol), dns.Fqdn(request.NodeName))
		question := newQuestion(name, dns.TypeSRV)
		question.srv = true
		if err := s.send(q, question); err == nil {
			sent++
		}
	} else {
		sent = s.sendAddressQuestions(q, request.NodeName, nil)
	}
	if sent == 0 {
		q.Fail()
	}
}

func (b *dnsBackend) QueryReverse(q *Query, settings []string) {
	request := q.Request()
	arpa, err := dns.ReverseAddr(request.Address.String())
	if err != nil {
		q.Fail()
		return
	}
	s, err := newDNSState(settings)
	if err != nil {
		q.Fail()
		return
	}
	q.SetData(s)
	if err := s.send(q, newQuestion(arpa, dns.TypePTR)); err != nil {
		q.Fail()
	}
}

func (b *dnsBackend) QueryDNS(q *Query, settings []string) {
	request := q.Request()
	s, err := newDNSState(settings)
	if err != nil {
		q.Fail()
		return
	}
	q.SetData(s)

	if request.DNSSearch {
		s.names = s.conf.NameList(request.DNSName)
	} else {
		s.names = []string{dns.Fqdn(request.DNSName)}
	}
	if !s.sendRawQuestion(q) {
		q.Fail()
	}
}

func (s *dnsState) sendRawQuestion(q *Query) bool {
	request := q.Request()
	for len(s.names) > 0 {
		name := s.names[0]
		s.names = s.names[1:]
		msg := new(dns.Msg)
		msg.SetQuestion(name, request.DNSType)
		msg.Question[0].Qclass = request.DNSClass
		msg.RecursionDesired = true
		msg.SetEdns0(4096, true)
		if err := s.send(q, &dnsQuestion{msg: msg}); err == nil {
			return true
		}
	}
	return false
}

func (b *dnsBackend) Dispatch(q *Query, fd int, events Events) {
	s := q.Data().(*dnsState)
	question, ok := s.pending[fd]
	if !ok {
		q.Fail()
		return
	}

	buf := make([]byte, 65535)
	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN {
		return
	}
	if err != nil || n <= 0 {
		s.close(q, fd)
		if len(s.pending) == 0 {
			q.Fail()
		}
		return
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(buf[:n]); err != nil || msg.Id != question.msg.Id {
		// Not our answer, keep waiting.
		return
	}
	s.close(q, fd)

	b.handleResponse(q, s, question, msg, buf[:n])

	if len(s.pending) == 0 {
		switch q.Request().Type {
		case RequestDNS:
			if q.response.DNSAnswer == nil {
				q.Fail()
				return
			}
		case RequestReverse:
			if q.response.NodeName == "" {
				q.Fail()
				return
			}
		default:
			if len(q.Paths()) == 0 {
				q.Fail()
				return
			}
		}
		q.Finish()
	}
}

func (s *dnsState) close(q *Query, fd int) {
	q.UnwatchFD(fd)
	unix.Close(fd)
	delete(s.pending, fd)
}

func socktypeForProtocol(protocol int) Socktype {
	for _, descriptor := range protocolDescriptors {
		if descriptor.protocol == protocol {
			return descriptor.socktype
		}
	}
	return SocktypeAny
}

func (b *dnsBackend) handleResponse(q *Query, s *dnsState, question *dnsQuestion, msg *dns.Msg, raw []byte) {
	request := q.Request()

	if request.Type == RequestDNS {
		if msg.Rcode == dns.RcodeNameError && s.sendRawQuestion(q) {
			return
		}
		q.SetDNSAnswer(raw)
		return
	}

	if msg.Rcode != dns.RcodeSuccess {
		return
	}
	if msg.AuthenticatedData {
		q.SetSecurity(SecuritySecure)
	}

	// The canonical name is the target of the last CNAME in the chain.
	for _, rr := range msg.Answer {
		if cname, ok := rr.(*dns.CNAME); ok {
			q.SetCanonicalName(strings.TrimSuffix(cname.Target, "."))
		}
	}

	for _, rr := range msg.Answer {
		switch record := rr.(type) {
		case *dns.A:
			b.addRecord(q, question, FamilyIP4, record.A.To4(), int(record.Hdr.Ttl))
		case *dns.AAAA:
			b.addRecord(q, question, FamilyIP6, record.AAAA, int(record.Hdr.Ttl))
		case *dns.PTR:
			q.SetCanonicalName(strings.TrimSuffix(record.Ptr, "."))
		case *dns.SRV:
			target := &dnsQuestion{
				port:     int(record.Port),
				priority: int(record.Priority),
				weight:   int(record.Weight),
				srv:      true,
			}
			s.sendAddressQuestions(q, record.Target, target)
		}
	}
}

func (b *dnsBackend) addRecord(q *Query, question *dnsQuestion, family Family, address net.IP, ttl int) {
	if question.srv {
		q.AddPath(Path{
			Family:   family,
			Address:  address,
			Socktype: socktypeForProtocol(q.Request().Protocol),
			Protocol: q.Request().Protocol,
			Port:     question.port,
			Priority: question.priority,
			Weight:   question.weight,
			TTL:      ttl,
		})
		return
	}
	q.AddAddressTTL(family, address, 0, ttl)
}

func (b *dnsBackend) Cleanup(q *Query) {
	s, ok := q.Data().(*dnsState)
	if !ok {
		return
	}
	for fd := range s.pending {
		q.UnwatchFD(fd)
		unix.Close(fd)
	}
	s.pending = make(map[int]*dnsQuestion)
}
