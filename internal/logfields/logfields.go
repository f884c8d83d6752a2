package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPipeline    = "pipeline"
	KeyRouteID     = "route_id"
	KeyVersion     = "version"
	KeyRound       = "round"
	KeySession     = "session"
	KeyDurationMS  = "duration_ms"
	KeySubscribers = "subscribers"
	KeyPath        = "path"
	KeyState       = "state"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Pipeline(name string) slog.Attr  { return slog.String(KeyPipeline, name) }
func RouteID(id string) slog.Attr     { return slog.String(KeyRouteID, id) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Round(n uint64) slog.Attr        { return slog.Uint64(KeyRound, n) }
func Session(id string) slog.Attr     { return slog.String(KeySession, id) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Subscribers(n int) slog.Attr     { return slog.Int(KeySubscribers, n) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }

// Duration reports d in milliseconds under KeyDurationMS.
func Duration(d time.Duration) slog.Attr {
	return DurationMS(float64(d.Microseconds()) / 1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
