package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// GlobalName is the window property the artifact assigns.
const GlobalName = "__twinbuildManifest"

// WriteArtifact writes m to dir as manifest-<VERSION>.js and returns the
// written path. The file is replaced atomically.
func WriteArtifact(dir string, m *AssetManifest) (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryManifest, "encode manifest").Build()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "create assets build directory").
			WithContext("dir", dir).
			Build()
	}

	path := filepath.Join(dir, Filename(m.Version))
	tempPath := path + ".tmp"
	body := fmt.Sprintf("window.%s=%s;", GlobalName, data)

	if err := os.WriteFile(tempPath, []byte(body), 0o644); err != nil {
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "write manifest").
			WithContext("path", tempPath).
			Build()
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "replace manifest").
			WithContext("path", path).
			Build()
	}
	return path, nil
}

// Prune removes all but the keep most recently modified manifest artifacts
// in dir, never removing current. It returns the removed paths.
func Prune(dir string, keep int, current string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type artifact struct {
		path  string
		mtime int64
	}
	var found []artifact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "manifest-") || !strings.HasSuffix(name, ".js") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, artifact{path: filepath.Join(dir, name), mtime: info.ModTime().UnixNano()})
	}
	slices.SortFunc(found, func(a, b artifact) int {
		switch {
		case a.mtime > b.mtime:
			return -1
		case a.mtime < b.mtime:
			return 1
		default:
			return strings.Compare(a.path, b.path)
		}
	})

	var removed []string
	kept := 0
	for _, a := range found {
		if a.path == current || kept < keep {
			kept++
			continue
		}
		if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, a.path)
	}
	return removed, nil
}

// Diff returns a unified diff between two manifests' indented JSON, or "" if
// they encode identically.
func Diff(a, b *AssetManifest) string {
	render := func(m *AssetManifest, name string) (string, []string) {
		if m == nil {
			return name, nil
		}
		data, err := jsonIndent(m.normalized())
		if err != nil {
			return name, nil
		}
		return m.Version, difflib.SplitLines(string(data))
	}
	fromName, from := render(a, "(none)")
	toName, to := render(b, "(none)")

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        from,
		B:        to,
		FromFile: fromName,
		ToFile:   toName,
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return text
}
