// Package journal persists a history of watch-session activity: pipeline
// rounds, manifest writes and reload broadcasts.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindRebuild    Kind = "rebuild"
	KindInvalidate Kind = "invalidate"
	KindManifest   Kind = "manifest"
	KindReload     Kind = "reload"
)

// Entry is one recorded occurrence.
type Entry struct {
	ID       uuid.UUID
	Session  string
	Pipeline string
	Kind     Kind
	Version  string
	Success  bool
	Duration time.Duration
	Detail   string
	At       time.Time
}

// Journal stores entries.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Noop discards everything.
type Noop struct{}

func (Noop) Record(context.Context, Entry) error           { return nil }
func (Noop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Noop) Close() error                                  { return nil }
