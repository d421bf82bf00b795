// Package noop provides a sink that discards every payload.
// Useful for tests and for disabling delivery without removing the client.
package noop

import (
	"context"

	"github.com/strongdm/errnotify/pkg/bugsnag"
)

type noopSink struct{}

// NewNoopSink creates a sink whose methods do nothing and return nil.
func NewNoopSink() bugsnag.Sink {
	return noopSink{}
}

func (noopSink) Write(ctx context.Context, payload *bugsnag.Payload) error {
	return nil
}

func (noopSink) Flush(ctx context.Context) error {
	return nil
}

func (noopSink) Close() error {
	return nil
}
