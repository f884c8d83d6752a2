// Package commands implements the twinbuild CLI.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"gopkg.in/natefinch/lumberjack.v2"

	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"twinbuild.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	LogFile string           `name:"log-file" help:"Also write logs to this file, rotated when it grows" type:"path"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the client and server bundles once"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild on change and reload connected browsers"`
	Routes  RoutesCmd  `cmd:"" help:"Print the resolved route table"`
	History HistoryCmd `cmd:"" help:"Show recent rebuilds from the journal"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`

	logWriter *lumberjack.Logger `kong:"-"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	var out io.Writer = os.Stderr
	if c.LogFile != "" {
		c.logWriter = &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, c.logWriter)
	}
	slog.SetDefault(newLogger(out, c.Verbose))
	return nil
}

// CloseLog flushes and closes the log file, if any.
func (c *CLI) CloseLog() {
	if c.logWriter != nil {
		_ = c.logWriter.Close()
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// project is a loaded configuration with its entry files and routes.
type project struct {
	cfg     *config.Config
	entries config.Entries
	table   routes.Table
}

func loadProject(path string) (*project, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	entries, err := config.FindEntries(cfg.AppDirectory)
	if err != nil {
		return nil, err
	}
	table, err := config.ResolveRoutes(cfg, entries, nil)
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, entries: entries, table: table}, nil
}
