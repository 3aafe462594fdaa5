package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/ocrnode/internal/logging"
)

// Runtime is the part of the configuration that is applied without a restart.
type Runtime struct {
	Timeout time.Duration // sidecar.timeout, zero keeps the current value
	Grace   time.Duration // sidecar.grace, zero keeps the current value
	Logging logging.Config
}

type runtimeFile struct {
	Sidecar struct {
		Timeout any `toml:"timeout"`
		Grace   any `toml:"grace"`
	} `toml:"sidecar"`
	Logging map[string]any `toml:"logging"`
}

// LoadRuntime reads the hot-reloadable settings from a config file. It is
// the loader the serve command hands to the config watcher.
func LoadRuntime(path string) (Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Runtime{}, err
	}
	var raw runtimeFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Runtime{}, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	rt := Runtime{Logging: loggingFromTree(raw.Logging)}
	if rt.Timeout, err = durationValue(raw.Sidecar.Timeout); err != nil {
		return Runtime{}, fmt.Errorf("sidecar.timeout: %w", err)
	}
	if rt.Grace, err = durationValue(raw.Sidecar.Grace); err != nil {
		return Runtime{}, fmt.Errorf("sidecar.grace: %w", err)
	}
	return rt, nil
}

// LoadLoggingConfig reads the [logging] table. Module levels may be given
// as a [logging.modules] table or as plain keys next to level and format.
// Missing or unreadable files yield the defaults.
func LoadLoggingConfig(path string) logging.Config {
	if path == "" {
		return loggingFromTree(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return loggingFromTree(nil)
	}
	var raw runtimeFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return loggingFromTree(nil)
	}
	return loggingFromTree(raw.Logging)
}

func loggingFromTree(tree map[string]any) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: make(map[string]string)}
	for key, value := range tree {
		switch v := value.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = v
			case "format":
				cfg.Format = v
			default:
				cfg.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}
	return cfg
}

func durationValue(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case string:
		return ParseDuration(d)
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("cannot use %T as duration", v)
}
