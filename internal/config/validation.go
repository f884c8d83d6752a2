package config

import (
	"fmt"
	"strings"
	"time"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// ValidateConfig validates a configuration after defaults were applied.
func ValidateConfig(cfg *Config) error {
	cv := &configurationValidator{config: cfg}
	for _, check := range []func() error{
		cv.validateBuild,
		cv.validateDev,
		cv.validateRoutes,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func invalid(format string, args ...any) error {
	return foundationerrors.ValidationError(fmt.Sprintf(format, args...)).Build()
}

func (cv *configurationValidator) validateBuild() error {
	switch cv.config.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return invalid("invalid mode: %s", cv.config.Mode)
	}
	switch cv.config.ServerModuleFormat {
	case ModuleFormatESM, ModuleFormatCJS:
	default:
		return invalid("invalid server_module_format: %s", cv.config.ServerModuleFormat)
	}
	if !strings.HasSuffix(cv.config.PublicPath, "/") {
		return invalid("public_path must end with '/': %s", cv.config.PublicPath)
	}
	return nil
}

func (cv *configurationValidator) validateDev() error {
	dev := cv.config.Dev
	if dev.Port < 1 || dev.Port > 65535 {
		return invalid("dev.port out of range: %d", dev.Port)
	}
	for _, f := range []struct{ name, value string }{
		{"dev.debounce", dev.Debounce},
		{"dev.prune_interval", dev.PruneInterval},
	} {
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return invalid("invalid %s: %s", f.name, f.value)
		}
		if d <= 0 {
			return invalid("%s must be positive: %s", f.name, f.value)
		}
	}
	if !strings.HasPrefix(cv.config.Metrics.Path, "/") {
		return invalid("metrics.path must start with '/': %s", cv.config.Metrics.Path)
	}
	return nil
}

func (cv *configurationValidator) validateRoutes() error {
	var walk func(rs []RouteConfig) error
	walk = func(rs []RouteConfig) error {
		for _, r := range rs {
			if r.File == "" {
				return invalid("route %q has no file", r.Path)
			}
			if r.Index && len(r.Children) > 0 {
				return invalid("index route %s cannot have children", r.File)
			}
			if err := walk(r.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(cv.config.Routes)
}
