// Package bundler defines the contract twinbuild expects from a module
// bundler, plus the small concurrency helpers pipelines build on.
package bundler

import (
	"context"
	"time"
)

// Target selects the platform a compilation is produced for.
type Target string

const (
	TargetBrowser Target = "browser"
	TargetNode    Target = "node"
)

// Format is the module format of emitted code.
type Format string

const (
	FormatESM Format = "esm"
	FormatCJS Format = "cjs"
)

// Entry is a named entry point. Path may be a file path or a virtual module
// id.
type Entry struct {
	Name string
	Path string
}

// Transform rewrites the source of every module whose path passes Test.
type Transform struct {
	Name  string
	Test  func(path string) bool
	Apply func(ctx context.Context, path string) (string, error)

	// Isolate bundles the rewritten module on its own before it joins the
	// build. Only the module's own "?source" import is followed; every other
	// import is treated as external and free of side effects, so imports
	// used only by dropped exports disappear with them.
	Isolate bool
}

// Config declares one compilation.
type Config struct {
	Name       string
	Target     Target
	Format     Format
	Production bool
	RootDir    string
	Entries    []Entry
	Transforms []Transform
	Virtual    *VirtualModules

	// OutDir receives chunked output; OutFile is used instead for
	// single-file output.
	OutDir     string
	OutFile    string
	PublicPath string
	Define     map[string]string

	// WatchDirs are watched in addition to the compilation's inputs.
	WatchDirs []string
}

// Message is a single diagnostic.
type Message struct {
	Text   string
	File   string
	Line   int
	Column int
}

// CompilationOutput is what a successful compilation emitted.
type CompilationOutput struct {
	// Version is a content hash over all emitted assets.
	Version string

	// Groups maps entry name to the ordered files it needs, relative to the
	// output directory with "/" separators. The entry module itself is last.
	Groups map[string][]string

	// Imports maps an emitted file to the emitted files it imports.
	Imports map[string][]string

	// InputFiles lists absolute paths of every source file read.
	InputFiles []string
}

// Result of one compilation. A compile with diagnostics is not an error:
// it yields a Result whose HasErrors reports true.
type Result struct {
	Output   *CompilationOutput
	Errors   []Message
	Warnings []Message
	Duration time.Duration
}

// HasErrors reports whether the compilation produced errors.
func (r *Result) HasErrors() bool {
	return r == nil || len(r.Errors) > 0
}

// Callbacks receive watch notifications. Both are optional and are invoked
// from the watch goroutine.
type Callbacks struct {
	OnStart   func()
	OnRebuild func(*Result)
}

// Handle controls a running watch.
type Handle interface {
	// Invalidate forces a rebuild even when no input changed.
	Invalidate()
	// Stop ends the watch after any in-flight compile finishes.
	Stop() error
}

// Bundler compiles module graphs.
type Bundler interface {
	Compile(ctx context.Context, cfg Config) (*Result, error)
	// Watch performs an initial compile, returns its result, and keeps
	// rebuilding on input changes until the handle is stopped.
	Watch(ctx context.Context, cfg Config, cb Callbacks) (Handle, *Result, error)
	// Exports statically lists the export names of each file.
	Exports(ctx context.Context, files []string) (map[string][]string, error)
}
