package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmdtest"
	"github.com/pkg/fileutils"
)

var update = flag.Bool("update", false, "update test files with results")

func TestCLI(t *testing.T) {
	ts, err := cmdtest.Read("testdata")
	if err != nil {
		t.Fatal(err)
	}
	srcdir, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	ts.Setup = func(dir string) (err error) {
		err = fileutils.CopyFile(filepath.Join(dir, "sample.txt"), filepath.Join(srcdir, "testdata/sample.txt"))
		if err != nil {
			return
		}
		return os.Unsetenv("CHUNKER_OPTS")
	}
	ts.Commands["chunker"] = cmdtest.InProcessProgram("chunker", run)
	ts.Run(t, *update)
}

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

const sampleHash = "ea0a006fd0d38eb880f50a498c84ec118ceac297d3b3155b247d80b4e3f9c751"

func TestChunkerOpts(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "sample.txt")
	err := fileutils.CopyFile(fn, "testdata/sample.txt")
	tassert(t, err == nil, "%v", err)
	root := filepath.Join(dir, "my store")

	args := os.Args
	defer func() { os.Args = args }()

	t.Setenv("CHUNKER_OPTS", `-q -a sha256 -r "`+root+`"`)
	os.Args = []string{"chunker", "split", fn}
	rc := run()
	tassert(t, rc == 0, "rc %d", rc)
	_, err = os.Stat(filepath.Join(root, sampleHash, "info.json"))
	tassert(t, err == nil, "%v", err)

	t.Setenv("CHUNKER_OPTS", `-r "unterminated`)
	rc = run()
	tassert(t, rc == rcUsage, "rc %d", rc)
}

func TestStorageRoot(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("CHUNKBASE_ROOT", filepath.Join(dir, "env"))
	root, err := storageRoot("")
	tassert(t, err == nil, "%v", err)
	tassert(t, root == filepath.Join(dir, "env"), "got %q", root)

	root, err = storageRoot(filepath.Join(dir, "flag"))
	tassert(t, err == nil, "%v", err)
	tassert(t, root == filepath.Join(dir, "flag"), "got %q", root)

	t.Setenv("CHUNKBASE_ROOT", "")
	t.Setenv("TMPDIR", dir)
	root, err = storageRoot("")
	tassert(t, err == nil, "%v", err)
	tassert(t, root == filepath.Join(dir, "storages"), "got %q", root)
}

func TestChunkSpec(t *testing.T) {
	spec, err := chunkSpec("16", "kb")
	tassert(t, err == nil, "%v", err)
	tassert(t, spec.Size() == 16*1024, "size %d", spec.Size())
	_, err = chunkSpec("lots", "KB")
	tassert(t, err != nil, "bad size accepted")
	_, err = chunkSpec("16", "GB")
	tassert(t, err != nil, "bad unit accepted")
}
