// Package config loads twinbuild.yaml, applies defaults, validates it and
// resolves the application layout (entry files and route table).
package config

import (
	"path/filepath"
	"time"
)

// Mode selects development or production output.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ModuleFormat is the module format of the server bundle.
type ModuleFormat string

const (
	ModuleFormatESM ModuleFormat = "esm"
	ModuleFormatCJS ModuleFormat = "cjs"
)

// Config is the twinbuild configuration file. Directory fields are resolved
// to absolute paths by Load.
type Config struct {
	RootDirectory        string        `yaml:"root_directory,omitempty"`
	AppDirectory         string        `yaml:"app_directory,omitempty"`
	AssetsBuildDirectory string        `yaml:"assets_build_directory,omitempty"`
	CacheDirectory       string        `yaml:"cache_directory,omitempty"`
	PublicPath           string        `yaml:"public_path,omitempty"`
	ServerBuildPath      string        `yaml:"server_build_path,omitempty"`
	ServerModuleFormat   ModuleFormat  `yaml:"server_module_format,omitempty"`
	Mode                 Mode          `yaml:"mode,omitempty"`
	Dev                  DevConfig     `yaml:"dev"`
	Metrics              MetricsConfig `yaml:"metrics"`
	Journal              JournalConfig `yaml:"journal"`
	Notify               NotifyConfig  `yaml:"notify"`
	Routes               []RouteConfig `yaml:"routes,omitempty"`
}

// DevConfig configures watch mode and the dev server.
type DevConfig struct {
	Port           int      `yaml:"port"`
	Debounce       string   `yaml:"debounce"`
	PruneInterval  string   `yaml:"prune_interval"`
	KeepManifests  int      `yaml:"keep_manifests"`
	WarningFilters []string `yaml:"warning_filters,omitempty"`
}

// DebounceWindow returns the parsed debounce duration.
func (d DevConfig) DebounceWindow() time.Duration {
	v, _ := time.ParseDuration(d.Debounce)
	return v
}

// PruneEvery returns the parsed manifest pruning interval.
func (d DevConfig) PruneEvery() time.Duration {
	v, _ := time.ParseDuration(d.PruneInterval)
	return v
}

// MetricsConfig toggles the Prometheus endpoint on the dev server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// JournalConfig toggles the SQLite build journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// NotifyConfig enables NATS reload notifications when NATSURL is set.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// RouteConfig declares a route in YAML. Children are nested under it.
type RouteConfig struct {
	Path          string        `yaml:"path,omitempty"`
	File          string        `yaml:"file"`
	Index         bool          `yaml:"index,omitempty"`
	CaseSensitive bool          `yaml:"case_sensitive,omitempty"`
	Children      []RouteConfig `yaml:"children,omitempty"`
}

// IsDevelopment reports whether the config targets development.
func (c *Config) IsDevelopment() bool {
	return c.Mode == ModeDevelopment
}

// ServerBuildDirectory is the directory holding the server bundle.
func (c *Config) ServerBuildDirectory() string {
	return filepath.Dir(c.ServerBuildPath)
}

// ManifestDirectory is where manifest artifacts are written.
func (c *Config) ManifestDirectory() string {
	return c.AssetsBuildDirectory
}
