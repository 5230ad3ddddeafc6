/*
Package netresolve translates node and service names into ranked lists of
transport endpoints by running a chain of independent resolution backends
over a single shared I/O reactor.

A Context holds the configured backend chain and default request options.
Queries walk the chain in order; each backend either answers synchronously,
fails so that the engine falls through to the next one, or registers file
descriptors and timers with the reactor and continues asynchronously. Partial
answers are merged across wake-ups of the same backend within a bounded
window, and the accumulated paths are delivered through a completion callback
or a blocking wait.

	ctx := netresolve.NewContext()
	defer ctx.Close()

	q, err := ctx.QueryForward("example.com", "80", nil)
	if err != nil {
		// ...
	}
	defer q.Free()
	if err := q.Wait(); err != nil {
		// ...
	}
	for _, path := range q.Paths() {
		// ...
	}

Without an attached reactor the context runs its own epoll loop and Wait
drives it until the query completes. Applications with their own event loop
attach it with AttachReactor and feed readiness events back through
Context.DispatchFD.
*/
package netresolve
