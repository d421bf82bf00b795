// sink.go defines the Sink interface for payload destinations.

package bugsnag

import "context"

// Sink is the destination for notification payloads.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write delivers a payload. Called after filtering and callbacks.
	Write(ctx context.Context, payload *Payload) error

	// Flush ensures any buffered payloads are delivered.
	// For synchronous sinks, this may be a no-op.
	Flush(ctx context.Context) error

	// Close releases resources held by the sink.
	// After Close is called, Write and Flush should return errors.
	Close() error
}
