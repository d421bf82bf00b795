// Package stderr provides a sink that prints events in a human-readable format.
// Useful during development, where posting to the real endpoint is unwanted.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/strongdm/errnotify/pkg/bugsnag"
)

// Option configures the stderr sink.
type Option func(*config)

type config struct {
	verbose bool
	out     io.Writer
}

// WithVerbose adds stack traces and metadata to the output.
func WithVerbose() Option {
	return func(c *config) {
		c.verbose = true
	}
}

// WithWriter redirects output (default: os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.out = w
		}
	}
}

type stderrSink struct {
	verbose bool

	mu  sync.Mutex
	out io.Writer
}

// NewStderrSink creates a sink that writes each event of a payload to stderr.
func NewStderrSink(opts ...Option) bugsnag.Sink {
	cfg := &config{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrSink{verbose: cfg.verbose, out: cfg.out}
}

// Write formats every event of payload.
//
//	[BUGSNAG] <time> <SEVERITY> <errorClass> in <context> (unhandled)
func (s *stderrSink) Write(ctx context.Context, payload *bugsnag.Payload) error {
	if payload == nil {
		return nil
	}

	var b strings.Builder
	for _, event := range payload.Events {
		s.format(&b, event)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, b.String())
	return err
}

func (s *stderrSink) format(b *strings.Builder, event *bugsnag.Event) {
	parts := []string{
		"[BUGSNAG]",
		event.Device.Time.Format("2006-01-02T15:04:05Z07:00"),
		strings.ToUpper(string(event.Severity)),
		event.ErrorClass(),
	}
	if event.Context != "" {
		parts = append(parts, "in "+event.Context)
	}
	if event.Unhandled {
		parts = append(parts, "(unhandled)")
	}
	fmt.Fprintln(b, strings.Join(parts, " "))

	if msg := event.Message(); msg != "" {
		fmt.Fprintf(b, "        Message: %s\n", msg)
	}
	fmt.Fprintf(b, "        Fingerprint: %s\n", bugsnag.Fingerprint(event))
	if event.User != nil && event.User.ID != "" {
		fmt.Fprintf(b, "        User: %s\n", event.User.ID)
	}

	if !s.verbose {
		return
	}

	if len(event.Exceptions) > 0 && len(event.Exceptions[0].Stacktrace) > 0 {
		fmt.Fprintf(b, "        Stack trace:\n")
		for _, frame := range event.Exceptions[0].Stacktrace {
			marker := " "
			if frame.InProject {
				marker = "*"
			}
			fmt.Fprintf(b, "        %s %s\n", marker, frame.Method)
			fmt.Fprintf(b, "            %s:%d\n", frame.File, frame.LineNumber)
		}
	}

	sections := make([]string, 0, len(event.MetaData))
	for section := range event.MetaData {
		sections = append(sections, section)
	}
	sort.Strings(sections)
	for _, section := range sections {
		fmt.Fprintf(b, "        [%s]\n", section)
		values := event.MetaData[section]
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(b, "          %s: %v\n", key, values[key])
		}
	}
}

// Flush is a no-op for stderr sink.
func (s *stderrSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for stderr sink.
func (s *stderrSink) Close() error {
	return nil
}
