// recover.go provides deferred panic capture helpers.
// Use these in HTTP handlers, goroutines, or other code outside of Context.

package bugsnag

import "context"

// Recover captures a panic, reports it, and returns the recovered value.
// Unlike AutoNotify, Recover does NOT re-panic after reporting.
//
// Use in defer:
//
//	func handler(ctx context.Context) {
//	    defer client.Recover(ctx)
//	    // code that might panic
//	}
func (c *Client) Recover(ctx context.Context, opts ...EventOption) any {
	r := recover()
	if r == nil {
		return nil
	}

	c.notify(ctx, newPanicInfo(r), notifyParams{reason: ReasonHandledPanic}, opts)
	return r
}

// AutoNotify captures a panic, reports it synchronously as unhandled, and
// re-panics with the same value.
//
//	defer client.AutoNotify(ctx)
func (c *Client) AutoNotify(ctx context.Context, opts ...EventOption) {
	r := recover()
	if r == nil {
		return
	}

	c.notify(ctx, newPanicInfo(r), notifyParams{
		reason:    ReasonUnhandledPanic,
		unhandled: true,
		sync:      true,
	}, opts)
	panic(r)
}
