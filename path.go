package chunkbase

import (
	"path/filepath"
	"strings"

	"github.com/t7a/chunkbase/archive"
	"github.com/t7a/chunkbase/manifest"
)

// Layout names the files that belong to one split under a storage
// root.
type Layout struct {
	Root        string
	Fingerprint string
	Dir         string // root/<fingerprint>
	Lock        string // root/<fingerprint>.lock
	Info        string // plain manifest inside Dir
	Archive     string // compressed manifest inside Dir
}

func (layout Layout) New(root, fp string) *Layout {
	layout.Root = root
	layout.Fingerprint = fp
	layout.Dir = filepath.Join(root, fp)
	layout.Lock = filepath.Join(root, fp+".lock")
	layout.Info = filepath.Join(layout.Dir, manifest.InfoName)
	layout.Archive = filepath.Join(layout.Dir, fp+archive.Ext)
	return &layout
}

// Handle returns the path Merge should be given for this split.
func (layout *Layout) Handle(compressed bool) string {
	if compressed {
		return layout.Archive
	}
	return layout.Info
}

// artifactPath resolves the artifact for index relative to dir, the
// directory holding the manifest.
func artifactPath(dir string, m *manifest.Manifest, index int) (path string, ok bool) {
	name, ok := m.Artifact(index)
	if !ok {
		return
	}
	return filepath.Join(dir, name), true
}

// safeFingerprint reports whether fp can name a directory directly
// under a storage root.
func safeFingerprint(fp string) bool {
	if fp == "" || fp == "." || fp == ".." {
		return false
	}
	return filepath.Base(fp) == fp
}

// inside reports whether path is dir or lies below it.  Symlinks are
// followed as far as the paths exist.
func inside(dir, path string) bool {
	rel, err := filepath.Rel(resolve(dir), resolve(path))
	if err != nil {
		return false
	}
	return rel == "." || rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve returns path made absolute with symlinks evaluated.  A path
// that does not exist yet is resolved through its parent.
func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	if parent, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(parent, filepath.Base(abs))
	}
	return abs
}
