package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// PathsDefaultApplier fills in and absolutizes the layout directories.
type PathsDefaultApplier struct{}

func (PathsDefaultApplier) Domain() string { return "paths" }

func (PathsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.RootDirectory == "" {
		cfg.RootDirectory = "."
	}
	root, err := filepath.Abs(cfg.RootDirectory)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	cfg.RootDirectory = root

	resolve := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
		if !filepath.IsAbs(*v) {
			*v = filepath.Join(root, *v)
		}
	}
	resolve(&cfg.AppDirectory, "app")
	resolve(&cfg.AssetsBuildDirectory, "public/build")
	resolve(&cfg.CacheDirectory, ".cache")
	resolve(&cfg.ServerBuildPath, "build/index.js")

	if cfg.PublicPath == "" {
		cfg.PublicPath = "/build/"
	}
	return nil
}

// BuildDefaultApplier sets mode and server module format.
type BuildDefaultApplier struct{}

func (BuildDefaultApplier) Domain() string { return "build" }

func (BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Mode == "" {
		cfg.Mode = ModeDevelopment
	}
	if cfg.ServerModuleFormat == "" {
		cfg.ServerModuleFormat = packageModuleFormat(cfg.RootDirectory)
	}
	return nil
}

// packageModuleFormat reads the "type" field of package.json in root.
func packageModuleFormat(root string) ModuleFormat {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return ModuleFormatCJS
	}
	var pkg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ModuleFormatCJS
	}
	if pkg.Type == "module" {
		return ModuleFormatESM
	}
	return ModuleFormatCJS
}

// DevDefaultApplier handles dev server and watch defaults.
type DevDefaultApplier struct{}

func (DevDefaultApplier) Domain() string { return "dev" }

func (DevDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Dev.Port == 0 {
		cfg.Dev.Port = 8002
	}
	if cfg.Dev.Debounce == "" {
		cfg.Dev.Debounce = "100ms"
	}
	if cfg.Dev.PruneInterval == "" {
		cfg.Dev.PruneInterval = "1m"
	}
	if cfg.Dev.KeepManifests <= 0 {
		cfg.Dev.KeepManifests = 5
	}
	return nil
}

// ObservabilityDefaultApplier handles metrics, journal and notify defaults.
type ObservabilityDefaultApplier struct{}

func (ObservabilityDefaultApplier) Domain() string { return "observability" }

func (ObservabilityDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.CacheDirectory, "journal.db")
	} else if !filepath.IsAbs(cfg.Journal.Path) {
		cfg.Journal.Path = filepath.Join(cfg.RootDirectory, cfg.Journal.Path)
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "twinbuild.reload"
	}
	return nil
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
// Paths run first; later appliers depend on resolved directories.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			PathsDefaultApplier{},
			BuildDefaultApplier{},
			DevDefaultApplier{},
			ObservabilityDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}
