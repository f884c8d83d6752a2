package orchestrator

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
	"git.home.luguber.info/inful/twinbuild/internal/pipeline"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// BuildReport summarizes a one-shot build.
type BuildReport struct {
	Manifest     *manifest.AssetManifest
	ManifestPath string
	Client       *bundler.Result
	Server       *bundler.Result
	// InputFiles is the union of both pipelines' inputs.
	InputFiles []string
	Duration   time.Duration
}

// Build compiles both pipelines once. The server compile runs concurrently
// and blocks on the client manifest until the client finishes.
func (o *Orchestrator) Build(ctx context.Context) (*BuildReport, error) {
	start := time.Now()

	exports, err := routes.ScanExports(ctx, o.bundler, o.cfg.AppDirectory, o.table)
	if err != nil {
		return nil, err
	}

	opts := o.pipelineOptions(exports, nil)
	client := pipeline.NewClient(opts)
	server := pipeline.NewServer(opts)
	report := &BuildReport{}

	// A rejected manifest also fails the server compile; the client error
	// is the one worth reporting.
	var clientErr error
	rejectWith := func(err error) error {
		clientErr = err
		server.RejectManifest(err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := client.Compile(gctx)
		if err != nil {
			return rejectWith(err)
		}
		report.Client = res
		if res.HasErrors() {
			return rejectWith(o.buildFailed("Client build failed", pipeline.Client, res))
		}

		m, err := manifest.Build(o.table, exports, res.Output, o.cfg.PublicPath)
		if err != nil {
			return rejectWith(err)
		}
		path, err := manifest.WriteArtifact(o.cfg.ManifestDirectory(), m)
		if err != nil {
			return rejectWith(err)
		}
		report.Manifest, report.ManifestPath = m, path
		server.SetManifest(m)
		return nil
	})
	g.Go(func() error {
		res, err := server.Compile(gctx)
		if err != nil {
			return err
		}
		report.Server = res
		if res.HasErrors() {
			return o.buildFailed("Server build failed", pipeline.Server, res)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if clientErr != nil {
			return nil, clientErr
		}
		return nil, err
	}

	for _, res := range []*bundler.Result{report.Client, report.Server} {
		if res.Output != nil {
			report.InputFiles = append(report.InputFiles, res.Output.InputFiles...)
		}
	}
	slices.Sort(report.InputFiles)
	report.InputFiles = slices.Compact(report.InputFiles)
	report.Duration = time.Since(start)

	slog.Info("Build completed in "+report.Duration.Round(time.Millisecond).String(),
		logfields.Version(report.Manifest.Version),
		logfields.Path(report.ManifestPath),
		"inputs", len(report.InputFiles))
	return report, nil
}

// buildFailed logs the compile report and returns the fatal build error.
func (o *Orchestrator) buildFailed(message, name string, res *bundler.Result) error {
	text := bundler.Report(res, o.cfg.Dev.WarningFilters)
	if text != "" {
		slog.Error(message+"\n"+text, logfields.Pipeline(name))
	}
	return foundationerrors.BuildFailed(message).
		WithCause(foundationerrors.CompileError(text).Build()).
		WithContext("pipeline", name).
		WithContext("errors", len(res.Errors)).
		WithContext("report", text).
		Build()
}
