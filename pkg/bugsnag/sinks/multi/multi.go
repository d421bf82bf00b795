// Package multi provides a sink that fans payloads out to several sinks.
package multi

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/strongdm/errnotify/pkg/bugsnag"
)

type multiSink struct {
	sinks []bugsnag.Sink
}

// NewMultiSink creates a sink that writes every payload to each of sinks in
// order. A failing or panicking sink does not stop the others; all failures
// are joined into the returned error.
func NewMultiSink(sinks ...bugsnag.Sink) bugsnag.Sink {
	return &multiSink{sinks: sinks}
}

func (s *multiSink) Write(ctx context.Context, payload *bugsnag.Payload) error {
	return s.each("write", func(sink bugsnag.Sink) error {
		return sink.Write(ctx, payload)
	})
}

func (s *multiSink) Flush(ctx context.Context) error {
	return s.each("flush", func(sink bugsnag.Sink) error {
		return sink.Flush(ctx)
	})
}

func (s *multiSink) Close() error {
	return s.each("close", func(sink bugsnag.Sink) error {
		return sink.Close()
	})
}

func (s *multiSink) each(op string, fn func(bugsnag.Sink) error) error {
	var errs []error
	for i, sink := range s.sinks {
		if err := call(sink, fn); err != nil {
			errs = append(errs, pkgerrors.WithMessagef(err, "sink %d %s", i, op))
		}
	}
	return errors.Join(errs...)
}

func call(sink bugsnag.Sink, fn func(bugsnag.Sink) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(sink)
}
