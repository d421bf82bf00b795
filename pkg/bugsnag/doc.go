// Package bugsnag provides a lightweight notifier that reports errors and
// uncaught panics to a Bugsnag-compatible error-tracking service.
//
// A Client owns a Configuration and turns errors into events, which are
// serialized as JSON and delivered over HTTP. Delivery is best-effort: a
// broken reporting path is logged and never surfaces to the host application.
//
// # Core Components
//
//   - Configuration: API key, endpoint, transport flags and notify filters
//   - Client: Notify, NotifyExcInfo, Context, Excepthook, InstallSysHook
//   - HookSlot: the process-wide uncaught panic hook with save/restore semantics
//   - Breadcrumbs: recent activity recorded with LeaveBreadcrumb and attached to events
//   - Event and Payload: the wire representation sent to the service
//   - Sink: destination for payloads (HTTP by default; async, multi, noop,
//     stderr and cxdb under sinks/)
//
// # Quick Start
//
//	client, err := bugsnag.New(bugsnag.WithAPIKey("<api key>"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Notify(ctx, err, bugsnag.WithMetaData("account", map[string]any{"id": 42}))
//
// Guarded blocks report anything that escapes them:
//
//	err = client.Context(ctx, func(ctx context.Context) error {
//	    return doWork(ctx)
//	}, bugsnag.WithSwallow(false))
//
// Go has no runtime-level hook for uncaught panics, so goroutines opt in by
// deferring HandleUncaught (or starting through Go). The installed client
// reports the panic, chains to the previously installed hook and the panic
// then continues to crash the process as usual:
//
//	func main() {
//	    defer bugsnag.HandleUncaught()
//	    ...
//	}
package bugsnag
