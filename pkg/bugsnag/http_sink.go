// http_sink.go posts payloads as JSON to the configured notify endpoint.

package bugsnag

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// HTTPSinkOption configures the HTTP sink.
type HTTPSinkOption func(*httpSinkConfig)

type httpSinkConfig struct {
	client *http.Client
}

// WithHTTPClient sets the HTTP client used for delivery (default: a dedicated
// client with the default transport).
func WithHTTPClient(client *http.Client) HTTPSinkOption {
	return func(c *httpSinkConfig) {
		if client != nil {
			c.client = client
		}
	}
}

// httpSink delivers payloads to Configuration.NotifyURL.
type httpSink struct {
	cfg    *Configuration
	client *http.Client

	mu     sync.Mutex
	closed bool
}

// NewHTTPSink creates a sink that posts to the endpoint of cfg. The endpoint,
// transport flags and timeout are read on every Write.
func NewHTTPSink(cfg *Configuration, opts ...HTTPSinkOption) Sink {
	c := &httpSinkConfig{client: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return &httpSink{cfg: cfg, client: c.client}
}

// Write encodes the payload and posts it. Any non-2xx response is an error.
func (s *httpSink) Write(ctx context.Context, payload *Payload) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.New("http sink is closed")
	}

	notifyURL, err := s.cfg.NotifyURL()
	if err != nil {
		return err
	}

	body, err := payload.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}

	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifyURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Bugsnag-Api-Key", payload.APIKey)
	req.Header.Set("Bugsnag-Payload-Version", payloadVersion)
	req.Header.Set("Bugsnag-Sent-At", time.Now().UTC().Format(time.RFC3339))

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post payload")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("notify endpoint returned %s", resp.Status)
	}
	return nil
}

// Flush is a no-op for the HTTP sink (writes are synchronous).
func (s *httpSink) Flush(ctx context.Context) error {
	return nil
}

// Close marks the sink closed and releases idle connections.
func (s *httpSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.client.CloseIdleConnections()
	return nil
}
