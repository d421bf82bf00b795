// Package async provides a sink wrapper that delivers payloads from a bounded
// background queue. When the queue is full the oldest payload is dropped.
package async

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/strongdm/errnotify/pkg/bugsnag"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async sink is closed")

// Option configures the async sink.
type Option func(*config)

type config struct {
	queueSize    int
	pollInterval time.Duration
	writeTimeout time.Duration
	onDropped    func(count int)
	logger       *logrus.Entry
}

// WithQueueSize sets the maximum number of queued payloads (default: 1000).
func WithQueueSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithPollInterval sets how often Flush checks for an empty queue (default: 10ms).
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithWriteTimeout bounds each write to the inner sink (default: 30s).
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithOnDropped sets a callback invoked when payloads are dropped due to queue overflow.
func WithOnDropped(fn func(count int)) Option {
	return func(c *config) {
		c.onDropped = fn
	}
}

// WithLogger sets the logger used for failed background writes.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type asyncSink struct {
	inner bugsnag.Sink
	cfg   *config

	queue   chan *bugsnag.Payload
	pending atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewAsyncSink wraps inner with a bounded queue. Write returns immediately;
// payloads are written to inner from a single background goroutine.
func NewAsyncSink(inner bugsnag.Sink, opts ...Option) bugsnag.Sink {
	cfg := &config{
		queueSize:    1000,
		pollInterval: 10 * time.Millisecond,
		writeTimeout: 30 * time.Second,
		logger:       logrus.WithField("component", "bugsnag.async"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &asyncSink{
		inner: inner,
		cfg:   cfg,
		queue: make(chan *bugsnag.Payload, cfg.queueSize),
		done:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *asyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case payload := <-s.queue:
			s.write(payload)
		case <-s.done:
			for {
				select {
				case payload := <-s.queue:
					s.write(payload)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) write(payload *bugsnag.Payload) {
	defer s.pending.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.writeTimeout)
	defer cancel()

	if err := s.inner.Write(ctx, payload); err != nil {
		s.cfg.logger.WithError(err).WithField("events", len(payload.Events)).Warn("async delivery failed")
	}
}

// Write enqueues payload. If the queue is full the oldest payload is dropped.
func (s *asyncSink) Write(ctx context.Context, payload *bugsnag.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.pending.Add(1)
	select {
	case s.queue <- payload:
		return nil
	default:
	}

	select {
	case <-s.queue:
		s.dropped()
	default:
	}

	select {
	case s.queue <- payload:
	default:
		s.dropped()
	}
	return nil
}

func (s *asyncSink) dropped() {
	s.pending.Add(-1)
	s.cfg.logger.Debug("async queue full, dropped payload")
	if s.cfg.onDropped != nil {
		s.cfg.onDropped(1)
	}
}

// Flush blocks until every queued payload has been written, then flushes inner.
func (s *asyncSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.pollInterval)
	defer ticker.Stop()

	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.inner.Flush(ctx)
}

// Close drains the queue, stops the background goroutine and closes inner.
func (s *asyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()
	})
	return s.inner.Close()
}
