package config

import (
	"fmt"
	"os"
	"path/filepath"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// Entries holds the app's required entry modules, relative to the app
// directory.
type Entries struct {
	Client string
	Server string
	Root   string
}

// FindEntries locates entry.client, entry.server and root in appDir.
func FindEntries(appDir string) (Entries, error) {
	var e Entries
	for _, want := range []struct {
		base string
		dst  *string
	}{
		{"entry.client", &e.Client},
		{"entry.server", &e.Server},
		{"root", &e.Root},
	} {
		file, ok := findEntry(appDir, want.base)
		if !ok {
			return Entries{}, foundationerrors.ConfigError(fmt.Sprintf("No %s file found in %s", want.base, appDir)).
				WithContext("dir", appDir).
				Build()
		}
		*want.dst = file
	}
	return e, nil
}

func findEntry(dir, basename string) (string, bool) {
	for _, ext := range routes.RouteExtensions {
		name := basename + ext
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return name, true
		}
	}
	return "", false
}
