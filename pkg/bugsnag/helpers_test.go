package bugsnag

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// receivedRequest is one request captured by testServer.
type receivedRequest struct {
	header http.Header
	body   []byte
}

// testServer is a notify endpoint that records every request.
type testServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	received []receivedRequest
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.received = append(s.received, receivedRequest{header: r.Header.Clone(), body: body})
		status := s.status
		s.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) setStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *testServer) getReceived() []receivedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]receivedRequest, len(s.received))
	copy(result, s.received)
	return result
}

// newTestClient mirrors a synchronous client pointed at server with an
// isolated hook slot.
func newTestClient(t *testing.T, server *testServer, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithAPIKey("testing client key"),
		WithUseSSL(false),
		WithEndpoint(server.URL),
		WithAsynchronous(false),
		WithInstallSysHook(false),
		WithHookSlot(NewHookSlot()),
	}
	client, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	client.Configuration.Logger = quietLogger()
	return client
}

// testSink captures payloads for verification in tests.
type testSink struct {
	mu       sync.Mutex
	payloads []*Payload
	writeErr error
}

func (s *testSink) Write(ctx context.Context, payload *Payload) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *testSink) Flush(ctx context.Context) error {
	return nil
}

func (s *testSink) Close() error {
	return nil
}

func (s *testSink) getEvents() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*Event
	for _, p := range s.payloads {
		result = append(result, p.Events...)
	}
	return result
}

// newSinkClient returns a synchronous client writing to a testSink.
func newSinkClient(t *testing.T, opts ...Option) (*Client, *testSink) {
	t.Helper()
	sink := &testSink{}
	base := []Option{
		WithAPIKey("testing client key"),
		WithAsynchronous(false),
		WithInstallSysHook(false),
		WithHookSlot(NewHookSlot()),
		WithSink(sink),
	}
	client, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	client.Configuration.Logger = quietLogger()
	return client, sink
}

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

// testError is a custom error type for testing.
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
