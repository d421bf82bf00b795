package bugsnag

import "github.com/pkg/errors"

var (
	// ErrConflictingOptions is returned by New when WithConfiguration is
	// combined with options that override individual configuration fields.
	ErrConflictingOptions = errors.New("bugsnag: configuration cannot be combined with field options")

	// ErrCancelNotify can be returned from a BeforeNotifyFunc to drop an event.
	ErrCancelNotify = errors.New("bugsnag: notification cancelled")

	// ErrMissingAPIKey reports that an event was dropped because no API key is configured.
	ErrMissingAPIKey = errors.New("bugsnag: api key is not configured")

	// ErrInvalidEndpoint reports an endpoint that cannot be resolved to a URL.
	ErrInvalidEndpoint = errors.New("bugsnag: invalid endpoint")
)
