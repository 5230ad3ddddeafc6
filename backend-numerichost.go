package netresolve

func init() {
	RegisterBackend("numerichost", func() Backend { return &numerichostBackend{} })
}

// The numerichost backend answers queries for literal addresses, including
// the `%interface` scope suffix for link-local IPv6.
type numerichostBackend struct {
	BaseBackend
}

func (b *numerichostBackend) QueryForward(q *Query, settings []string) {
	ip, family, ifindex, ok := ParseAddress(q.Request().NodeName)
	if !ok {
		q.Fail()
		return
	}

	q.AddAddress(family, ip, ifindex)
	q.Finish()
}

func (b *numerichostBackend) QueryReverse(q *Query, settings []string) {
	request := q.Request()
	if request.Address == nil {
		q.Fail()
		return
	}

	q.AddAddress(request.Family, request.Address, request.Ifindex)
	q.Finish()
}
