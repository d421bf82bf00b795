// Package cli implements the bugsnag-notify command, which sends a single
// notification from the shell.
package cli

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/strongdm/errnotify/pkg/bugsnag"
	"github.com/strongdm/errnotify/pkg/bugsnag/sinks/multi"
	"github.com/strongdm/errnotify/pkg/bugsnag/sinks/noop"
	"github.com/strongdm/errnotify/pkg/bugsnag/sinks/stderr"
)

// NotifyCmd holds the cmd flags
type NotifyCmd struct {
	ConfigPath   string
	APIKey       string
	Endpoint     string
	Insecure     bool
	ReleaseStage string
	Message      string
	ErrorClass   string
	Severity     string
	Context      string
	MetaData     []string
	Echo         bool
	DryRun       bool
	Debug        bool
}

// NewNotifyCmd defines the bugsnag-notify command
func NewNotifyCmd() *cobra.Command {
	cmd := &NotifyCmd{}
	notifyCmd := &cobra.Command{
		Use:           "bugsnag-notify",
		Short:         "Send an error notification",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.Run(cobraCmd.Context())
		},
	}

	notifyCmd.Flags().StringVar(&cmd.ConfigPath, "config", "", "Path to a JSON configuration file")
	notifyCmd.Flags().StringVar(&cmd.APIKey, "api-key", "", "Project API key (overrides BUGSNAG_API_KEY)")
	notifyCmd.Flags().StringVar(&cmd.Endpoint, "endpoint", "", "Notify endpoint as host[:port][/path] or URL")
	notifyCmd.Flags().BoolVar(&cmd.Insecure, "insecure", false, "Use http when the endpoint has no scheme")
	notifyCmd.Flags().StringVar(&cmd.ReleaseStage, "release-stage", "", "Release stage reported with the event")
	notifyCmd.Flags().StringVarP(&cmd.Message, "message", "m", "", "Error message")
	notifyCmd.Flags().StringVar(&cmd.ErrorClass, "class", "", "Error class (default: the Go type of the error)")
	notifyCmd.Flags().StringVar(&cmd.Severity, "severity", string(bugsnag.SeverityError), "One of error, warning, info")
	notifyCmd.Flags().StringVar(&cmd.Context, "context", "", "Event context, such as a job or route")
	notifyCmd.Flags().StringArrayVar(&cmd.MetaData, "meta", nil, "Metadata as section.key=value, repeatable")
	notifyCmd.Flags().BoolVar(&cmd.Echo, "echo", false, "Also print the event to stderr")
	notifyCmd.Flags().BoolVar(&cmd.DryRun, "dry-run", false, "Build and filter the event without sending it")
	notifyCmd.Flags().BoolVar(&cmd.Debug, "debug", false, "Enable debug logging")
	_ = notifyCmd.MarkFlagRequired("message")
	return notifyCmd
}

// Run runs the command logic
func (cmd *NotifyCmd) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logrus.New()
	if cmd.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger).WithField("component", "bugsnag-notify")

	opts, err := cmd.eventOptions()
	if err != nil {
		return err
	}

	cfg, err := bugsnag.LoadConfiguration(cmd.ConfigPath, cmd.overrides())
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	cfg.Logger = log

	transport := bugsnag.NewHTTPSink(cfg)
	if cmd.DryRun {
		transport = noop.NewNoopSink()
	}
	sink := &recordingSink{Sink: transport}
	var delivery bugsnag.Sink = sink
	if cmd.Echo {
		delivery = multi.NewMultiSink(sink, stderr.NewStderrSink(stderr.WithVerbose()))
	}

	client, err := bugsnag.New(
		bugsnag.WithConfiguration(cfg),
		bugsnag.WithInstallSysHook(false),
		bugsnag.WithSink(delivery),
	)
	if err != nil {
		return err
	}

	if cmd.ErrorClass != "" {
		client.OnBeforeNotify(func(_ context.Context, event *bugsnag.Event) error {
			event.Exceptions[0].ErrorClass = cmd.ErrorClass
			return nil
		})
	}

	client.Notify(ctx, errors.New(cmd.Message), opts...)
	if err := client.Close(); err != nil {
		return errors.Wrap(err, "close client")
	}
	if err := sink.Err(); err != nil {
		return errors.Wrap(err, "deliver notification")
	}
	if !sink.Written() {
		return errors.New("notification was dropped, see log output")
	}

	if cmd.DryRun {
		log.Info("dry run, notification not sent")
		return nil
	}
	log.WithField("endpoint", cfg.Endpoint).Info("notification sent")
	return nil
}

// overrides maps flags that were set onto configuration keys.
func (cmd *NotifyCmd) overrides() map[string]any {
	overrides := map[string]any{
		"asynchronous":     false,
		"install_sys_hook": false,
	}
	if cmd.APIKey != "" {
		overrides["api_key"] = cmd.APIKey
	}
	if cmd.Endpoint != "" {
		overrides["endpoint"] = cmd.Endpoint
	}
	if cmd.Insecure {
		overrides["use_ssl"] = false
	}
	if cmd.ReleaseStage != "" {
		overrides["release_stage"] = cmd.ReleaseStage
	}
	return overrides
}

func (cmd *NotifyCmd) eventOptions() ([]bugsnag.EventOption, error) {
	var opts []bugsnag.EventOption

	switch severity := bugsnag.Severity(cmd.Severity); severity {
	case bugsnag.SeverityError:
	case bugsnag.SeverityWarning, bugsnag.SeverityInfo:
		opts = append(opts, bugsnag.WithSeverity(severity))
	default:
		return nil, errors.Errorf("unknown severity %q", cmd.Severity)
	}

	if cmd.Context != "" {
		opts = append(opts, bugsnag.WithContext(cmd.Context))
	}

	for _, entry := range cmd.MetaData {
		section, key, value, err := parseMetaDatum(entry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bugsnag.WithMetaDatum(section, key, value))
	}
	return opts, nil
}

// parseMetaDatum splits "section.key=value".
func parseMetaDatum(entry string) (section, key, value string, err error) {
	path, value, ok := strings.Cut(entry, "=")
	if !ok {
		return "", "", "", errors.Errorf("metadata %q: expected section.key=value", entry)
	}
	section, key, ok = strings.Cut(path, ".")
	if !ok || section == "" || key == "" {
		return "", "", "", errors.Errorf("metadata %q: expected section.key=value", entry)
	}
	return section, key, value, nil
}

// recordingSink remembers the outcome of the last write.
type recordingSink struct {
	bugsnag.Sink

	mu      sync.Mutex
	written bool
	err     error
}

func (s *recordingSink) Write(ctx context.Context, payload *bugsnag.Payload) error {
	err := s.Sink.Write(ctx, payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = true
	s.err = err
	return err
}

func (s *recordingSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *recordingSink) Written() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
