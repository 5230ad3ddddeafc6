package netresolve

import (
	"bufio"
	"net"
	"os"
	"strings"
)

func init() {
	RegisterBackend("hosts", func() Backend { return &hostsBackend{} })
}

// The hosts backend resolves forward and reverse queries against a
// hosts-file database, /etc/hosts unless the chain names another file
// (`hosts:/path/to/file`). The file is parsed once per context.
type hostsBackend struct {
	BaseBackend
	nodes  []hostsNode
	loaded bool
}

type hostsNode struct {
	name    string
	family  Family
	address net.IP
	ifindex int
}

func (b *hostsBackend) load(settings []string) {
	if b.loaded {
		return
	}
	b.loaded = true

	filename := "/etc/hosts"
	if len(settings) > 0 && settings[0] != "" {
		filename = settings[0]
	}

	f, err := os.Open(filename)
	if err != nil {
		Log.WithField("file", filename).WithError(err).Warn("failed to read hosts file")
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, family, ifindex, ok := ParseAddress(fields[0])
		if !ok {
			continue
		}
		for _, name := range fields[1:] {
			b.nodes = append(b.nodes, hostsNode{name: name, family: family, address: ip, ifindex: ifindex})
		}
	}
}

func (b *hostsBackend) QueryForward(q *Query, settings []string) {
	b.load(settings)

	node := q.Request().NodeName
	count := 0
	for _, entry := range b.nodes {
		if node != "" && node != entry.name {
			continue
		}
		q.AddAddress(entry.family, entry.address, entry.ifindex)
		count++
	}

	if count == 0 {
		q.Fail()
		return
	}
	q.Finish()
}

func (b *hostsBackend) QueryReverse(q *Query, settings []string) {
	b.load(settings)

	request := q.Request()
	for _, entry := range b.nodes {
		if entry.family != request.Family {
			continue
		}
		if !entry.address.Equal(request.Address) {
			continue
		}
		if request.Ifindex != 0 && entry.ifindex != 0 && request.Ifindex != entry.ifindex {
			continue
		}
		q.SetCanonicalName(entry.name)
		q.AddAddress(entry.family, entry.address, entry.ifindex)
		q.Finish()
		return
	}
	q.Fail()
}
