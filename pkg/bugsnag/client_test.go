package bugsnag

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// Initialisation

func TestNew_NoConfiguration(t *testing.T) {
	client, err := New(WithInstallSysHook(false), WithHookSlot(NewHookSlot()))
	require.NoError(t, err)
	require.NotNil(t, client.Configuration)
	assert.Equal(t, DefaultEndpoint, client.Configuration.Endpoint)
	assert.False(t, client.Installed())
}

func TestNew_Configuration(t *testing.T) {
	cfg := DefaultConfiguration()
	client, err := New(WithConfiguration(cfg), WithInstallSysHook(false), WithHookSlot(NewHookSlot()))
	require.NoError(t, err)
	assert.Same(t, cfg, client.Configuration)
}

func TestNew_Options(t *testing.T) {
	client, err := New(WithAPIKey("testing client key"), WithInstallSysHook(false), WithHookSlot(NewHookSlot()))
	require.NoError(t, err)
	assert.Equal(t, "testing client key", client.Configuration.APIKey)
	assert.False(t, client.Configuration.InstallSysHook)
}

func TestNew_ConfigurationConflictsWithFieldOptions(t *testing.T) {
	_, err := New(WithConfiguration(DefaultConfiguration()), WithAPIKey("key"), WithInstallSysHook(false))
	assert.ErrorIs(t, err, ErrConflictingOptions)
}

func TestNew_InstallsHookByDefault(t *testing.T) {
	slot := NewHookSlot()
	client, err := New(WithHookSlot(slot))
	require.NoError(t, err)
	assert.True(t, client.Installed())
	assert.NotNil(t, slot.Current())
}

// Sending notifications

func TestNotify_Exception(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	client.Notify(context.Background(), errors.New("Testing Notify"))

	received := server.getReceived()
	require.Len(t, received, 1)
	assert.Equal(t, "application/json", received[0].header.Get("Content-Type"))
	assert.Equal(t, "testing client key", received[0].header.Get("Bugsnag-Api-Key"))
	assert.Equal(t, "4", received[0].header.Get("Bugsnag-Payload-Version"))

	body := received[0].body
	assert.Equal(t, "testing client key", gjson.GetBytes(body, "apiKey").String())
	assert.Equal(t, int64(1), gjson.GetBytes(body, "events.#").Int())
	assert.Equal(t, "error", gjson.GetBytes(body, "events.0.severity").String())
	assert.Equal(t, "Testing Notify", gjson.GetBytes(body, "events.0.exceptions.0.message").String())
	assert.False(t, gjson.GetBytes(body, "events.0.unhandled").Bool())
	assert.Equal(t, ReasonHandledException, gjson.GetBytes(body, "events.0.severityReason.type").String())
}

func TestNotify_ExcInfo(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	err := &testError{msg: "Testing Notify EXC Info"}
	client.NotifyExcInfo(context.Background(), NewExcInfo(err))

	received := server.getReceived()
	require.Len(t, received, 1)
	assert.Equal(t, "*bugsnag.testError", gjson.GetBytes(received[0].body, "events.0.exceptions.0.errorClass").String())
}

func TestNotify_NilErrorSendsNothing(t *testing.T) {
	client, sink := newSinkClient(t)

	client.Notify(context.Background(), nil)

	assert.Empty(t, sink.getEvents())
}

func TestNotify_StackTraceStartsAtCaller(t *testing.T) {
	client, sink := newSinkClient(t)

	client.Notify(context.Background(), &testError{msg: "stack"})

	events := sink.getEvents()
	require.Len(t, events, 1)
	frames := events[0].Exceptions[0].Stacktrace
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0].Method, "TestNotify_StackTraceStartsAtCaller")
}

func TestNotify_UsesWrappedErrorStack(t *testing.T) {
	client, sink := newSinkClient(t)

	err := errors.Wrap(newOriginError(), "wrapped")
	client.Notify(context.Background(), err)

	events := sink.getEvents()
	require.Len(t, events, 1)
	exc := events[0].Exceptions[0]
	assert.Equal(t, "*errors.fundamental", exc.ErrorClass)
	assert.Equal(t, "wrapped: origin", exc.Message)
	require.NotEmpty(t, exc.Stacktrace)
	assert.Contains(t, exc.Stacktrace[0].Method, "newOriginError")
}

//go:noinline
func newOriginError() error {
	return errors.New("origin")
}

func TestNotify_EventOptions(t *testing.T) {
	client, sink := newSinkClient(t)

	client.Notify(context.Background(), errors.New("options"),
		WithSeverity(SeverityWarning),
		WithContext("checkout"),
		WithUser(User{ID: "42"}),
		WithGroupingHash("group-1"),
		WithMetaDatum("account", "plan", "pro"),
	)

	events := sink.getEvents()
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, SeverityWarning, event.Severity)
	assert.Equal(t, ReasonUserSpecified, event.SeverityReason.Type)
	assert.Equal(t, "checkout", event.Context)
	assert.Equal(t, "42", event.User.ID)
	assert.Equal(t, "group-1", event.GroupingHash)
	assert.Equal(t, "pro", event.MetaData["account"]["plan"])
	assert.NotEmpty(t, event.ID)
	assert.Contains(t, event.MetaData, "runtime")
}

func TestNotify_MergesContextData(t *testing.T) {
	client, sink := newSinkClient(t)

	ctx := ContextWithMetaData(context.Background(), "request", map[string]any{"path": "/users"})
	ctx = ContextWithUser(ctx, User{Email: "someone@example.com"})
	ctx = ContextWithEventContext(ctx, "GET /users")

	client.Notify(ctx, errors.New("context data"), WithMetaDatum("request", "method", "GET"))

	events := sink.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, map[string]any{"path": "/users", "method": "GET"}, events[0].MetaData["request"])
	assert.Equal(t, "someone@example.com", events[0].User.Email)
	assert.Equal(t, "GET /users", events[0].Context)
}

func TestNotify_FiltersParams(t *testing.T) {
	client, sink := newSinkClient(t)

	client.Notify(context.Background(), errors.New("filtered"),
		WithMetaData("request", map[string]any{"password": "hunter2", "user": "alice"}))

	events := sink.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, Filtered, events[0].MetaData["request"]["password"])
	assert.Equal(t, "alice", events[0].MetaData["request"]["user"])
}

func TestNotify_SelfReferencingMetaData(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	m := map[string]any{"k": "v"}
	m["self"] = m
	client.Notify(context.Background(), errors.New("boom"), WithMetaData("section", m))

	received := server.getReceived()
	require.Len(t, received, 1)
	body := string(received[0].body)
	assert.Equal(t, "v", gjson.Get(body, "events.0.metaData.section.k").String())
	// The section is a copy of m, so the cycle closes one level down.
	assert.Equal(t, "v", gjson.Get(body, "events.0.metaData.section.self.k").String())
	assert.Equal(t, Recursive, gjson.Get(body, "events.0.metaData.section.self.self").String())
}

func TestNotify_ReleaseStageGate(t *testing.T) {
	client, sink := newSinkClient(t)
	client.Configuration.ReleaseStage = "development"
	client.Configuration.NotifyReleaseStages = []string{"production"}

	client.Notify(context.Background(), errors.New("not sent"))
	assert.Empty(t, sink.getEvents())

	client.Configuration.ReleaseStage = "production"
	client.Notify(context.Background(), errors.New("sent"))
	assert.Len(t, sink.getEvents(), 1)
}

func TestNotify_IgnoreClasses(t *testing.T) {
	client, sink := newSinkClient(t)
	client.Configuration.IgnoreClasses = []string{"*bugsnag.testError"}

	client.Notify(context.Background(), &testError{msg: "ignored"})
	assert.Empty(t, sink.getEvents())
}

func TestNotify_MissingAPIKeyDropsEvent(t *testing.T) {
	client, sink := newSinkClient(t)
	client.Configuration.APIKey = ""

	client.Notify(context.Background(), errors.New("no key"))
	assert.Empty(t, sink.getEvents())
}

func TestNotify_BeforeNotify(t *testing.T) {
	client, sink := newSinkClient(t)

	client.OnBeforeNotify(func(ctx context.Context, event *Event) error {
		event.Context = "rewritten"
		return nil
	})
	client.OnBeforeNotify(func(ctx context.Context, event *Event) error {
		if event.Message() == "cancel me" {
			return ErrCancelNotify
		}
		return nil
	})

	client.Notify(context.Background(), errors.New("keep me"))
	client.Notify(context.Background(), errors.New("cancel me"))

	events := sink.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "rewritten", events[0].Context)
	assert.Equal(t, "keep me", events[0].Err.Error())
}

func TestNotify_DeliveryFailureIsSwallowed(t *testing.T) {
	server := newTestServer(t)
	server.setStatus(http.StatusInternalServerError)
	client := newTestClient(t, server)

	assert.NotPanics(t, func() {
		client.Notify(context.Background(), errors.New("server down"))
	})
	assert.Len(t, server.getReceived(), 1)
}

func TestNotify_SinkPanicIsSwallowed(t *testing.T) {
	client, _ := newSinkClient(t, WithSink(panicSink{}))

	assert.NotPanics(t, func() {
		client.Notify(context.Background(), errors.New("sink panics"))
	})
}

type panicSink struct{}

func (panicSink) Write(ctx context.Context, payload *Payload) error {
	panic("sink exploded")
}

func (panicSink) Flush(ctx context.Context) error { return nil }

func (panicSink) Close() error { return nil }

func TestNotify_Asynchronous(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server, WithAsynchronous(true))

	for i := 0; i < 3; i++ {
		client.Notify(context.Background(), errors.New("async"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Flush(ctx))
	assert.Len(t, server.getReceived(), 3)
}

func TestNotify_AsynchronousIgnoresCallerCancellation(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server, WithAsynchronous(true))

	ctx, cancel := context.WithCancel(context.Background())
	client.Notify(ctx, errors.New("async"))
	cancel()

	require.NoError(t, client.Close())
	assert.Len(t, server.getReceived(), 1)
}

func TestNotify_ConcurrentWithFlush(t *testing.T) {
	client, sink := newSinkClient(t, WithAsynchronous(true))

	const n = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			client.Notify(context.Background(), errors.New("concurrent"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			assert.NoError(t, client.Flush(ctx))
			cancel()
		}
	}()
	wg.Wait()

	require.NoError(t, client.Close())
	assert.Len(t, sink.getEvents(), n)
}

func TestInflight_Idle(t *testing.T) {
	var f inflight

	select {
	case <-f.idle():
	default:
		t.Fatal("idle should be closed with nothing in flight")
	}

	f.add()
	idle := f.idle()
	f.add()
	f.done()
	select {
	case <-idle:
		t.Fatal("idle closed while a delivery is still in flight")
	default:
	}

	f.done()
	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("idle not closed after the last delivery finished")
	}
}

// Context

func TestContext_NotifiesAndSwallows(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	err := client.Context(context.Background(), func(ctx context.Context) error {
		return errors.New("Testing Notify Context")
	})

	assert.NoError(t, err)
	assert.Len(t, server.getReceived(), 1)
}

func TestContext_PanicIsSwallowed(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	var err error
	assert.NotPanics(t, func() {
		err = client.Context(context.Background(), func(ctx context.Context) error {
			panic("Testing Notify Context")
		})
	})

	assert.NoError(t, err)
	received := server.getReceived()
	require.Len(t, received, 1)
	assert.Equal(t, "panic", gjson.GetBytes(received[0].body, "events.0.exceptions.0.errorClass").String())
	assert.Equal(t, ReasonHandledPanic, gjson.GetBytes(received[0].body, "events.0.severityReason.type").String())
}

func TestContext_NoSwallowReturnsSameError(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	want := &testError{msg: "Testing Notify Context"}
	err := client.Context(context.Background(), func(ctx context.Context) error {
		return want
	}, WithSwallow(false))

	assert.Same(t, want, err)
	assert.Len(t, server.getReceived(), 1)
}

func TestContext_NoSwallowRepanicsSameValue(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	want := &testError{msg: "Testing Notify Context"}
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_ = client.Context(context.Background(), func(ctx context.Context) error {
			panic(want)
		}, WithSwallow(false))
	}()

	assert.Same(t, want, recovered)
	assert.Len(t, server.getReceived(), 1)
}

func TestContext_OptionsBecomeMetaData(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	_ = client.Context(context.Background(), func(ctx context.Context) error {
		return errors.New("Testing Notify Context")
	}, WithMetaData("section", map[string]any{"key": "value"}))

	received := server.getReceived()
	require.Len(t, received, 1)
	section := gjson.GetBytes(received[0].body, "events.0.metaData.section")
	assert.JSONEq(t, `{"key":"value"}`, section.Raw)
}

func TestContext_NoException(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	err := client.Context(context.Background(), func(ctx context.Context) error {
		return nil
	})

	assert.NoError(t, err)
	assert.Empty(t, server.getReceived())
}

// Exception hook

func TestExcepthook_Notifies(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	client.Excepthook(NewExcInfo(errors.New("Testing excepthook notify")))

	received := server.getReceived()
	require.Len(t, received, 1)
	body := received[0].body
	assert.Equal(t, "error", gjson.GetBytes(body, "events.0.severity").String())
	assert.True(t, gjson.GetBytes(body, "events.0.unhandled").Bool())
	assert.Equal(t, ReasonUnhandledPanic, gjson.GetBytes(body, "events.0.severityReason.type").String())
}

func TestExcepthook_Disabled(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)
	client.Configuration.AutoNotify = false

	client.Excepthook(NewExcInfo(errors.New("Testing excepthook notify")))

	assert.Empty(t, server.getReceived())
}

func TestExcepthook_SynchronousEvenWhenAsynchronous(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server, WithAsynchronous(true))

	client.Excepthook(NewExcInfo(errors.New("crash")))

	assert.Len(t, server.getReceived(), 1)
}

func TestInstalledHook_ReceivesExceptionType(t *testing.T) {
	server := newTestServer(t)
	slot := NewHookSlot()

	var hooked ExcInfo
	slot.Set(NewHook(func(info ExcInfo) { hooked = info }))

	client := newTestClient(t, server, WithHookSlot(slot))
	client.InstallSysHook()

	func() {
		defer func() { _ = recover() }()
		func() {
			defer slot.Guard()
			panic(&testError{msg: "Testing excepthook notify"})
		}()
	}()

	assert.Equal(t, reflect.TypeOf(&testError{}), hooked.Type)
	received := server.getReceived()
	require.Len(t, received, 1)
	assert.Equal(t, "*bugsnag.testError", gjson.GetBytes(received[0].body, "events.0.exceptions.0.errorClass").String())
}

func TestInstalledHook_CallsPreviousHook(t *testing.T) {
	server := newTestServer(t)
	slot := NewHookSlot()

	var hookRan atomic.Bool
	slot.Set(NewHook(func(info ExcInfo) { hookRan.Store(true) }))

	client := newTestClient(t, server, WithHookSlot(slot), WithAutoNotify(false))
	client.InstallSysHook()

	slot.Dispatch(NewExcInfo(errors.New("Testing excepthook notify")))

	assert.True(t, hookRan.Load())
	assert.Empty(t, server.getReceived())
}

func TestInstalledHook_PreviousHookPanicDoesNotBlockReport(t *testing.T) {
	server := newTestServer(t)
	slot := NewHookSlot()
	slot.Set(NewHook(func(info ExcInfo) { panic("previous hook broke") }))

	client := newTestClient(t, server, WithHookSlot(slot))
	client.InstallSysHook()

	assert.NotPanics(t, func() {
		slot.Dispatch(NewExcInfo(errors.New("crash")))
	})
	assert.Len(t, server.getReceived(), 1)
}

func TestInstalledHook_ReportPanicDoesNotBlockPreviousHook(t *testing.T) {
	slot := NewHookSlot()
	var hookRan atomic.Bool
	slot.Set(NewHook(func(info ExcInfo) { hookRan.Store(true) }))

	client, _ := newSinkClient(t, WithHookSlot(slot))
	client.OnBeforeNotify(func(ctx context.Context, event *Event) error {
		panic("callback broke")
	})
	client.InstallSysHook()

	assert.NotPanics(t, func() {
		slot.Dispatch(NewExcInfo(errors.New("crash")))
	})
	assert.True(t, hookRan.Load())
}

func TestUninstallHook_RestoresPreviousHook(t *testing.T) {
	slot := NewHookSlot()
	original := NewHook(func(info ExcInfo) {})
	slot.Set(original)

	client, err := New(WithHookSlot(slot), WithAsynchronous(false))
	require.NoError(t, err)

	assert.NotSame(t, original, slot.Current())
	client.UninstallSysHook()
	assert.Same(t, original, slot.Current())
}

func TestExcepthook_ChainsAfterUninstall(t *testing.T) {
	server := newTestServer(t)
	slot := NewHookSlot()

	var calls atomic.Int32
	slot.Set(NewHook(func(info ExcInfo) { calls.Add(1) }))

	client := newTestClient(t, server, WithHookSlot(slot), WithAutoNotify(false))
	client.InstallSysHook()
	client.UninstallSysHook()

	client.Excepthook(NewExcInfo(errors.New("after uninstall")))
	assert.Equal(t, int32(1), calls.Load())

	client.InstallSysHook()
	slot.Dispatch(NewExcInfo(errors.New("reinstalled")))
	assert.Equal(t, int32(2), calls.Load())
}

func TestInstallHook_Idempotent(t *testing.T) {
	slot := NewHookSlot()
	original := NewHook(func(info ExcInfo) {})
	slot.Set(original)

	client, _ := newSinkClient(t, WithHookSlot(slot))
	client.InstallSysHook()
	installed := slot.Current()
	client.InstallSysHook()

	assert.Same(t, installed, slot.Current())
	client.UninstallSysHook()
	assert.Same(t, original, slot.Current())

	// Uninstalling twice keeps the restored hook.
	client.UninstallSysHook()
	assert.Same(t, original, slot.Current())
}

func TestClose_UninstallsHook(t *testing.T) {
	slot := NewHookSlot()
	client, _ := newSinkClient(t, WithHookSlot(slot))
	client.InstallSysHook()

	require.NoError(t, client.Close())
	assert.Nil(t, slot.Current())
}
