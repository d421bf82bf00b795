// scope.go provides Client.Context, a guarded block that reports failures.

package bugsnag

import "context"

// ContextOption configures Client.Context. Every EventOption is a ContextOption.
type ContextOption interface {
	applyContext(*contextConfig)
}

type contextConfig struct {
	swallow bool
	events  []EventOption
}

func (o EventOption) applyContext(c *contextConfig) {
	c.events = append(c.events, o)
}

type swallowOption bool

func (s swallowOption) applyContext(c *contextConfig) {
	c.swallow = bool(s)
}

// WithSwallow controls whether Context suppresses the failure after reporting
// it (default: true). With false, the error is returned or the panic resumed.
func WithSwallow(swallow bool) ContextOption {
	return swallowOption(swallow)
}

// Context runs fn. A returned error or a panic is reported once with the
// event options in opts applied, then suppressed unless WithSwallow(false) is
// given, in which case the same error is returned or the same value re-panicked.
// A nil return produces no event.
func (c *Client) Context(ctx context.Context, fn func(ctx context.Context) error, opts ...ContextOption) (err error) {
	cfg := contextConfig{swallow: true}
	for _, opt := range opts {
		opt.applyContext(&cfg)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		c.notify(ctx, newPanicInfo(r), notifyParams{reason: ReasonHandledPanic}, cfg.events)
		if !cfg.swallow {
			panic(r)
		}
		err = nil
	}()

	if err = fn(ctx); err != nil {
		c.notify(ctx, newExcInfo(err, callers(1)), notifyParams{reason: ReasonHandledException}, cfg.events)
		if cfg.swallow {
			return nil
		}
		return err
	}
	return nil
}
