package chunkbase

import (
	"os"

	"github.com/t7a/chunkbase/archive"
)

// Options configures Split and Merge.
type Options struct {
	FileMode os.FileMode    // permission bits for artifacts, manifests and output
	DirMode  os.FileMode    // permission bits for chunk directories
	Method   archive.Method // zip method for compressed artifacts
}

// OptionFunc is a functional option for Split and Merge.
type OptionFunc func(opts *Options)

// WithFileMode sets the permission bits of files created.  Default is
// 0644.
func WithFileMode(mode os.FileMode) OptionFunc {
	return func(opts *Options) {
		opts.FileMode = mode
	}
}

// WithDirMode sets the permission bits of directories created.
// Default is 0755.
func WithDirMode(mode os.FileMode) OptionFunc {
	return func(opts *Options) {
		opts.DirMode = mode
	}
}

// WithMethod sets the zip method used when compressing.  Default is
// archive.Deflate.  Merge reads either method regardless.
func WithMethod(method archive.Method) OptionFunc {
	return func(opts *Options) {
		opts.Method = method
	}
}

var defaultOpts = Options{
	FileMode: 0644,
	DirMode:  0755,
	Method:   archive.Deflate,
}

func newOptions(opts []OptionFunc) *Options {
	o := defaultOpts
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}
