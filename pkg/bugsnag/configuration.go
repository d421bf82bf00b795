// configuration.go defines the notifier configuration and its defaults.

package bugsnag

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultEndpoint is the notify endpoint used when none is configured.
const DefaultEndpoint = "notify.bugsnag.com"

// Configuration holds notifier settings. Callers may mutate a Configuration
// after handing it to a Client; the client reads it on every notification.
type Configuration struct {
	// APIKey identifies the project on the error-tracking service.
	APIKey string `koanf:"api_key" validate:"required"`

	// Endpoint is a host[:port][/path] or a full URL.
	Endpoint string `koanf:"endpoint" validate:"required"`

	// UseSSL selects https when Endpoint carries no scheme.
	UseSSL bool `koanf:"use_ssl"`

	// Asynchronous delivers notifications off the caller's goroutine.
	Asynchronous bool `koanf:"asynchronous"`

	// AutoNotify controls whether the exception hook reports uncaught panics.
	AutoNotify bool `koanf:"auto_notify"`

	// InstallSysHook makes New install the client into the hook slot.
	InstallSysHook bool `koanf:"install_sys_hook"`

	ReleaseStage        string   `koanf:"release_stage" validate:"required"`
	NotifyReleaseStages []string `koanf:"notify_release_stages"`
	AppVersion          string   `koanf:"app_version"`
	Hostname            string   `koanf:"hostname"`

	// ProjectPackages are path.Match patterns for packages whose frames are
	// marked in-project. A trailing "/**" matches any subpackage.
	ProjectPackages []string `koanf:"project_packages"`

	// ParamsFilters are metadata key fragments whose values are replaced
	// with "[FILTERED]".
	ParamsFilters []string `koanf:"params_filters"`

	// IgnoreClasses lists error classes that are never reported.
	IgnoreClasses []string `koanf:"ignore_classes"`

	// MaxBreadcrumbs bounds the breadcrumbs attached to each event. Zero disables them.
	MaxBreadcrumbs int `koanf:"max_breadcrumbs" validate:"gte=0"`

	// SendTimeout bounds a single delivery request. Zero disables the timeout.
	SendTimeout time.Duration `koanf:"send_timeout" validate:"gte=0"`

	// Logger receives diagnostics about dropped or failed notifications.
	Logger *logrus.Entry `koanf:"-" validate:"-"`
}

// DefaultConfiguration returns a configuration with production defaults.
func DefaultConfiguration() *Configuration {
	hostname, _ := os.Hostname() // empty hostname is acceptable

	return &Configuration{
		Endpoint:        DefaultEndpoint,
		UseSSL:          true,
		Asynchronous:    true,
		AutoNotify:      true,
		InstallSysHook:  true,
		ReleaseStage:    "production",
		Hostname:        hostname,
		ProjectPackages: []string{"main*"},
		ParamsFilters:   []string{"password", "password_confirmation", "cookie", "authorization"},
		MaxBreadcrumbs:  DefaultMaxBreadcrumbs,
		SendTimeout:     10 * time.Second,
	}
}

// NotifyURL resolves Endpoint into the URL payloads are posted to.
func (c *Configuration) NotifyURL() (string, error) {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return "", errors.Wrap(ErrInvalidEndpoint, "endpoint is empty")
	}

	if !strings.Contains(endpoint, "://") {
		scheme := "https"
		if !c.UseSSL {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidEndpoint, "parse %q: %v", c.Endpoint, err)
	}
	if u.Host == "" {
		return "", errors.Wrapf(ErrInvalidEndpoint, "%q has no host", c.Endpoint)
	}
	return u.String(), nil
}

// ShouldNotify reports whether the current release stage is allowed to notify.
// A nil NotifyReleaseStages allows every stage.
func (c *Configuration) ShouldNotify() bool {
	if c.NotifyReleaseStages == nil {
		return true
	}
	for _, stage := range c.NotifyReleaseStages {
		if stage == c.ReleaseStage {
			return true
		}
	}
	return false
}

// ShouldIgnore reports whether events of the given error class are dropped.
func (c *Configuration) ShouldIgnore(errorClass string) bool {
	for _, class := range c.IgnoreClasses {
		if class == errorClass {
			return true
		}
	}
	return false
}

// Validate checks required fields and that the endpoint resolves.
func (c *Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if _, err := c.NotifyURL(); err != nil {
		return err
	}
	return nil
}

var defaultLogger = logrus.WithField("component", "bugsnag")

func (c *Configuration) logger() *logrus.Entry {
	if c.Logger != nil {
		return c.Logger
	}
	return defaultLogger
}
