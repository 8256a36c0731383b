// Package ciassets holds the versioned CI configuration and runner artifacts
// that every worker repository carries. New versions are added as new
// directories; old versions stay in place for rollback.
package ciassets

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// all: keeps dotfiles like .gitlab-ci.yml in the bundle.
//
//go:embed all:versions
var bundle embed.FS

// MarkerName is the file whose remote presence marks a version as uploaded.
const MarkerName = ".uploaded"

// File is one bundled asset with its remote repository path.
type File struct {
	Path    string
	Content []byte
	// Binary artifacts are uploaded one commit each instead of batched.
	Binary bool
}

// Versions lists the bundled version labels, sorted.
func Versions() ([]string, error) {
	entries, err := bundle.ReadDir("versions")
	if err != nil {
		return nil, fmt.Errorf("ciassets: read versions: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// MarkerPath returns the remote path of the version's upload marker.
func MarkerPath(version string) string {
	return path.Join("versions", version, MarkerName)
}

// Files returns every asset of a version keyed to its remote path. Files
// under bin/ are flagged binary.
func Files(version string) ([]File, error) {
	root := path.Join("versions", version)
	if _, err := bundle.ReadDir(root); err != nil {
		return nil, fmt.Errorf("ciassets: unknown version %q: %w", version, err)
	}

	var files []File
	err := fs.WalkDir(bundle, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := bundle.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		rel := strings.TrimPrefix(p, root+"/")
		files = append(files, File{
			Path:    p,
			Content: content,
			Binary:  strings.HasPrefix(rel, "bin/"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ciassets: walk %s: %w", version, err)
	}
	return files, nil
}
