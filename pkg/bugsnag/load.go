// load.go builds a Configuration from defaults, a JSON file and the environment.

package bugsnag

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of environment variables read by LoadConfiguration.
const EnvPrefix = "BUGSNAG_"

// listKeys are split on commas when read from the environment.
var listKeys = map[string]bool{
	"notify_release_stages": true,
	"project_packages":      true,
	"params_filters":        true,
	"ignore_classes":        true,
}

// LoadConfiguration loads configuration with the following priority:
// overrides > environment (BUGSNAG_*) > JSON file at path > defaults.
// An empty path or a missing file is skipped. The result is validated.
func LoadConfiguration(path string, overrides map[string]any) (*Configuration, error) {
	k := koanf.New(".")

	defaults := DefaultConfiguration()
	for key, value := range map[string]any{
		"endpoint":         defaults.Endpoint,
		"use_ssl":          defaults.UseSSL,
		"asynchronous":     defaults.Asynchronous,
		"auto_notify":      defaults.AutoNotify,
		"install_sys_hook": defaults.InstallSysHook,
		"release_stage":    defaults.ReleaseStage,
		"hostname":         defaults.Hostname,
		"project_packages": defaults.ProjectPackages,
		"params_filters":   defaults.ParamsFilters,
		"max_breadcrumbs":  defaults.MaxBreadcrumbs,
		"send_timeout":     defaults.SendTimeout,
	} {
		if err := k.Set(key, value); err != nil {
			return nil, errors.Wrapf(err, "set default %s", key)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), json.Parser()); err != nil {
				return nil, errors.Wrapf(err, "load config file %s", path)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, errors.Wrapf(err, "set override %s", key)
		}
	}

	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envValue maps BUGSNAG_API_KEY=x to api_key=x, splitting list values on commas.
func envValue(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}
