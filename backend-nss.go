package netresolve

import (
	"strings"
)

func init() {
	RegisterBackend("nss", func() Backend { return &nssBackend{} })
}

// The nss backend consults a libc name-service source named in its
// settings, e.g. `nss:myhostname`. Pure Go cannot load NSS modules
// directly, so the lookup is delegated to getent restricted to that source;
// its `ahosts` output is parsed back into paths.
type nssBackend struct {
	BaseBackend
}

func (b *nssBackend) QueryForward(q *Query, settings []string) {
	if len(settings) == 0 || q.Request().NodeName == "" {
		q.Fail()
		return
	}
	argv := []string{"getent", "-s", settings[0], "ahosts", q.Request().NodeName}
	p, err := startSubprocess(q, argv, "")
	if err != nil {
		logger(q).WithError(err).Error("failed to start getent")
		q.Fail()
		return
	}
	q.SetData(p)
}

func (b *nssBackend) Dispatch(q *Query, fd int, events Events) {
	p := q.Data().(*subprocess)

	if fd != p.stdoutFD() {
		q.Fail()
		return
	}
	lines, eof, err := p.readLines(q)
	if err != nil {
		q.Fail()
		return
	}
	for _, line := range lines {
		b.handleLine(q, line)
	}
	if eof {
		if len(q.Paths()) == 0 {
			q.Fail()
			return
		}
		q.Finish()
	}
}

// One `ahosts` line: `<address> <socktype> [<canonical name>]`. The same
// address repeats once per socket type; only the STREAM line is used to
// avoid duplicate paths.
func (b *nssBackend) handleLine(q *Query, line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[1] != "STREAM" {
		return
	}
	ip, family, ifindex, ok := ParseAddress(fields[0])
	if !ok {
		return
	}
	q.AddAddress(family, ip, ifindex)
	if len(fields) > 2 {
		q.SetCanonicalName(fields[2])
	}
}

func (b *nssBackend) Cleanup(q *Query) {
	if p, ok := q.Data().(*subprocess); ok {
		p.cleanup(q)
	}
}
