package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "twinbuild.yaml"

// Load reads the configuration at path, applies defaults and validates the
// result. A missing file yields the default configuration rooted at the
// file's directory. Relative root_directory values resolve against that
// directory too.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)
	loadEnvFiles(dir)

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to unmarshal config").
				WithContext("path", path).
				Build()
		}
	case os.IsNotExist(err):
		slog.Debug("Config file not found, using defaults", "path", path)
	default:
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to read config file").
			WithContext("path", path).
			Build()
	}

	if cfg.RootDirectory == "" {
		cfg.RootDirectory = dir
	} else if !filepath.IsAbs(cfg.RootDirectory) {
		cfg.RootDirectory = filepath.Join(dir, cfg.RootDirectory)
	}

	norm, err := NormalizeConfig(&cfg)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to normalize config").Build()
	}
	for _, w := range norm.Warnings {
		slog.Warn("Config normalized", "detail", w)
	}

	if err := NewDefaultApplier().ApplyDefaults(&cfg); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to apply defaults").Build()
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads .env and .env.local from dir. Variables already present
// in the environment win.
func loadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("Failed to load env file", "path", p, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", p)
	}
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return foundationerrors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", path)).Build()
	}

	example := Config{
		AppDirectory:         "app",
		AssetsBuildDirectory: "public/build",
		PublicPath:           "/build/",
		ServerBuildPath:      "build/index.js",
		Mode:                 ModeDevelopment,
		Dev: DevConfig{
			Port:           8002,
			Debounce:       "100ms",
			PruneInterval:  "1m",
			KeepManifests:  5,
			WarningFilters: []string{"node_modules/"},
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Journal: JournalConfig{Enabled: true, Path: ".cache/journal.db"},
		Notify:  NotifyConfig{Subject: "twinbuild.reload"},
		Routes: []RouteConfig{
			{
				Path: "admin",
				File: "admin/layout.tsx",
				Children: []RouteConfig{
					{File: "admin/dashboard.tsx", Index: true},
				},
			},
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "failed to marshal config").Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", path).
			Build()
	}
	return nil
}
