// client.go provides the Client and its construction options.

package bugsnag

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BeforeNotifyFunc is called with every event before delivery. It may mutate
// the event; returning ErrCancelNotify drops it.
type BeforeNotifyFunc func(ctx context.Context, event *Event) error

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	configuration  *Configuration
	overrides      []func(*Configuration)
	installSysHook *bool
	sink           Sink
	slot           *HookSlot
}

func override(fn func(*Configuration)) Option {
	return func(o *clientOptions) {
		o.overrides = append(o.overrides, fn)
	}
}

// WithConfiguration uses a pre-built configuration. It cannot be combined
// with options that set individual configuration fields.
func WithConfiguration(cfg *Configuration) Option {
	return func(o *clientOptions) {
		o.configuration = cfg
	}
}

// WithAPIKey sets Configuration.APIKey.
func WithAPIKey(apiKey string) Option {
	return override(func(c *Configuration) { c.APIKey = apiKey })
}

// WithEndpoint sets Configuration.Endpoint.
func WithEndpoint(endpoint string) Option {
	return override(func(c *Configuration) { c.Endpoint = endpoint })
}

// WithUseSSL sets Configuration.UseSSL.
func WithUseSSL(useSSL bool) Option {
	return override(func(c *Configuration) { c.UseSSL = useSSL })
}

// WithAsynchronous sets Configuration.Asynchronous.
func WithAsynchronous(asynchronous bool) Option {
	return override(func(c *Configuration) { c.Asynchronous = asynchronous })
}

// WithAutoNotify sets Configuration.AutoNotify.
func WithAutoNotify(autoNotify bool) Option {
	return override(func(c *Configuration) { c.AutoNotify = autoNotify })
}

// WithReleaseStage sets Configuration.ReleaseStage.
func WithReleaseStage(stage string) Option {
	return override(func(c *Configuration) { c.ReleaseStage = stage })
}

// WithAppVersion sets Configuration.AppVersion.
func WithAppVersion(version string) Option {
	return override(func(c *Configuration) { c.AppVersion = version })
}

// WithInstallSysHook controls whether New installs the client into the hook
// slot. It may be combined with WithConfiguration.
func WithInstallSysHook(install bool) Option {
	return func(o *clientOptions) {
		o.installSysHook = &install
	}
}

// WithSink replaces the default HTTP sink.
func WithSink(sink Sink) Option {
	return func(o *clientOptions) {
		o.sink = sink
	}
}

// WithHookSlot sets the slot the client installs into (default: SystemHooks()).
func WithHookSlot(slot *HookSlot) Option {
	return func(o *clientOptions) {
		o.slot = slot
	}
}

// Client reports errors and panics to the configured sink.
type Client struct {
	// Configuration is read on every notification and may be mutated.
	Configuration *Configuration

	sink      Sink
	slot      *HookSlot
	startTime time.Time

	mu           sync.Mutex
	installed    bool
	hook         *Hook
	prevHook     *Hook
	beforeNotify []BeforeNotifyFunc

	breadcrumbs breadcrumbBuffer
	inflight    inflight
}

// New creates a Client. Without WithConfiguration a DefaultConfiguration is
// used, with field options applied on top. Unless disabled, the client is
// installed as the exception hook.
func New(opts ...Option) (*Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.configuration != nil && len(o.overrides) > 0 {
		return nil, ErrConflictingOptions
	}

	cfg := o.configuration
	if cfg == nil {
		cfg = DefaultConfiguration()
		for _, fn := range o.overrides {
			fn(cfg)
		}
		if o.installSysHook != nil {
			cfg.InstallSysHook = *o.installSysHook
		}
	}

	install := cfg.InstallSysHook
	if o.installSysHook != nil {
		install = *o.installSysHook
	}

	c := &Client{
		Configuration: cfg,
		sink:          o.sink,
		slot:          o.slot,
		startTime:     time.Now(),
	}
	if c.sink == nil {
		c.sink = NewHTTPSink(cfg)
	}
	if c.slot == nil {
		c.slot = SystemHooks()
	}

	if install {
		c.InstallSysHook()
	}
	return c, nil
}

// OnBeforeNotify registers a callback run before each delivery, in
// registration order.
func (c *Client) OnBeforeNotify(fn BeforeNotifyFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeNotify = append(c.beforeNotify, fn)
}

// Notify reports err. Delivery failures are logged, never returned.
func (c *Client) Notify(ctx context.Context, err error, opts ...EventOption) {
	if err == nil {
		c.Configuration.logger().Debug("ignoring notify with nil error")
		return
	}
	info := newExcInfo(err, callers(1))
	c.notify(ctx, info, notifyParams{reason: ReasonHandledException}, opts)
}

// NotifyExcInfo reports the exception described by info, as handed to an
// exception hook.
func (c *Client) NotifyExcInfo(ctx context.Context, info ExcInfo, opts ...EventOption) {
	if info.Trace == nil {
		info.Trace = callers(1)
	}
	c.notify(ctx, info, notifyParams{reason: ReasonHandledException}, opts)
}

// notifyParams carries how an event was captured.
type notifyParams struct {
	reason    string
	unhandled bool

	// sync forces delivery on the calling goroutine, used when the process
	// is about to crash.
	sync bool
}

func (c *Client) notify(ctx context.Context, info ExcInfo, params notifyParams, opts []EventOption) {
	cfg := c.Configuration
	log := cfg.logger()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("recovered panic while building notification")
		}
	}()

	if !cfg.ShouldNotify() {
		log.WithField("release_stage", cfg.ReleaseStage).Debug("release stage not in notify release stages, dropping event")
		return
	}

	event := c.buildEvent(ctx, info, params, opts)
	log = log.WithField("event_id", event.ID).WithField("error_class", event.ErrorClass())

	if cfg.ShouldIgnore(event.ErrorClass()) {
		log.Debug("error class is ignored, dropping event")
		return
	}

	c.mu.Lock()
	callbacks := append([]BeforeNotifyFunc(nil), c.beforeNotify...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		if err := fn(ctx, event); err != nil {
			if errors.Is(err, ErrCancelNotify) {
				log.Debug("notification cancelled by callback")
				return
			}
			log.WithError(err).Warn("before notify callback failed")
		}
	}

	NewFilter(DefaultFilterConfig(cfg.ParamsFilters)).FilterEvent(event)

	if cfg.APIKey == "" {
		log.WithError(ErrMissingAPIKey).Warn("dropping notification")
		return
	}

	payload := &Payload{
		APIKey:   cfg.APIKey,
		Notifier: Notifier,
		Events:   []*Event{event},
	}
	c.LeaveBreadcrumb(event.ErrorClass(), map[string]any{"message": event.Message()}, BreadcrumbError)

	if cfg.Asynchronous && !params.sync {
		c.inflight.add()
		go func() {
			defer c.inflight.done()
			c.deliver(context.WithoutCancel(ctx), payload)
		}()
		return
	}
	c.deliver(ctx, payload)
}

// buildEvent creates the event for info with defaults, context data and
// caller options applied in that order.
func (c *Client) buildEvent(ctx context.Context, info ExcInfo, params notifyParams, opts []EventOption) *Event {
	cfg := c.Configuration

	trace := info.Trace
	if err, ok := info.Value.(error); ok {
		if pcs := errorTrace(err); len(pcs) > 0 {
			trace = pcs
		}
	}

	event := &Event{
		ID:             uuid.NewString(),
		PayloadVersion: payloadVersion,
		Exceptions: []Exception{{
			ErrorClass: info.ErrorClass(),
			Message:    info.Message(),
			Stacktrace: stackFrames(trace, cfg.ProjectPackages),
		}},
		Severity:       SeverityError,
		SeverityReason: &SeverityReason{Type: params.reason},
		Unhandled:      params.unhandled,
		App: AppInfo{
			ReleaseStage: cfg.ReleaseStage,
			Version:      cfg.AppVersion,
		},
		Device: DeviceInfo{
			Hostname:        cfg.Hostname,
			OSName:          runtime.GOOS,
			RuntimeVersions: map[string]string{"go": runtime.Version()},
			Time:            time.Now().UTC(),
		},
		MetaData:    MetaData{},
		Breadcrumbs: c.breadcrumbs.Snapshot(),
		Err:         info.Err(),
	}
	event.MetaData.Add("runtime", CaptureRuntimeState(c.startTime).MetaData())

	applyContext(ctx, event)
	for _, opt := range opts {
		opt(event)
	}
	return event
}

// deliver writes the payload to the sink, logging failures.
func (c *Client) deliver(ctx context.Context, payload *Payload) {
	log := c.Configuration.logger()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("recovered panic while delivering notification")
		}
	}()

	if err := c.sink.Write(ctx, payload); err != nil {
		log.WithError(err).Warn("failed to deliver notification")
	}
}

// Flush waits for in-flight asynchronous deliveries, then flushes the sink.
func (c *Client) Flush(ctx context.Context) error {
	select {
	case <-c.inflight.idle():
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.sink.Flush(ctx)
}

// Close uninstalls the exception hook, waits for in-flight deliveries and
// closes the sink.
func (c *Client) Close() error {
	c.UninstallSysHook()
	<-c.inflight.idle()
	return c.sink.Close()
}

// inflight counts asynchronous deliveries. add may be called while other
// goroutines wait on idle.
type inflight struct {
	mu      sync.Mutex
	n       int
	drained chan struct{}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.drained = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.drained)
		f.drained = nil
	}
}

// idle returns a channel that is closed when the count next reaches zero.
func (f *inflight) idle() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return closedChan
	}
	return f.drained
}
