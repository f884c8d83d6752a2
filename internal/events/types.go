package events

import (
	"time"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
)

// Event is implemented by every event published on the bus.
type Event interface {
	EventName() string
}

// PipelineEvent is implemented by events a build pipeline publishes.
type PipelineEvent interface {
	Event
	PipelineName() string
}

// RebuildStarted is published when a pipeline begins a compile.
type RebuildStarted struct {
	Pipeline string
	Round    uint64
	At       time.Time
}

// RebuildCompleted is published after every compile of a pipeline, failed or
// not.
type RebuildCompleted struct {
	Pipeline string
	Round    uint64
	Result   *bundler.Result

	// Embedded is the client manifest the server bundle was compiled
	// against. It is nil for client rounds and for server rounds that never
	// loaded the manifest module.
	Embedded *manifest.AssetManifest
	At       time.Time
}

// Success reports whether the compile produced no errors.
func (e RebuildCompleted) Success() bool {
	return !e.Result.HasErrors()
}

// ManifestWritten is published after a manifest artifact hits the disk.
type ManifestWritten struct {
	Version string
	Path    string
	At      time.Time
}

// ReloadBroadcast is published when listeners were told to reload.
type ReloadBroadcast struct {
	Version     string
	ManifestURL string
	Trigger     string
	Subscribers int
	At          time.Time
}

func (RebuildStarted) EventName() string   { return "rebuild_started" }
func (RebuildCompleted) EventName() string { return "rebuild_completed" }
func (ManifestWritten) EventName() string  { return "manifest_written" }
func (ReloadBroadcast) EventName() string  { return "reload_broadcast" }

func (e RebuildStarted) PipelineName() string   { return e.Pipeline }
func (e RebuildCompleted) PipelineName() string { return e.Pipeline }
