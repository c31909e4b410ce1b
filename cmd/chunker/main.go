package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/chunkbase"
	"github.com/t7a/chunkbase/archive"
	"github.com/t7a/chunkbase/fingerprint"
	"github.com/t7a/chunkbase/inbox"
)

func init() {
	var debug string
	debug = os.Getenv("DEBUG")
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportCaller(true)
	formatter := &log.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: log.FieldMap{
			log.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	log.SetFormatter(formatter)
}

// caller returns string presentation of log caller which is formatted as
// `/path/to/file.go:line_number`. e.g. `/internal/app/api.go:25`
// https://stackoverflow.com/questions/63658002/is-it-possible-to-wrap-logrus-logger-functions-without-losing-the-line-number-pr
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d gid %d", strings.TrimPrefix(f.File, p), f.Line, chunkbase.GetGID())
	}
}

type Opts struct {
	Split       bool
	Merge       bool
	Verify      bool
	Info        bool
	Hash        bool
	Rm          bool
	Watch       bool
	Compress    bool   `docopt:"-z"`
	Quiet       bool   `docopt:"-q"`
	Size        string `docopt:"-s"`
	Unit        string `docopt:"-u"`
	Algo        string `docopt:"-a"`
	Method      string `docopt:"-m"`
	Root        string `docopt:"-r"`
	File        string
	Manifest    string
	Fingerprint string
	Dir         string
}

// exit codes
const (
	rcUsage  = 22 // EINVAL
	rcFailed = 42
	rcOutput = 43
)

const usage = `chunker

Split files into fingerprinted chunks and merge them back.

Usage:
  chunker split [-z] [-q] [-s <size>] [-u <unit>] [-a <algo>] [-m <method>] [-r <root>] <file>
  chunker merge [-q] <manifest>
  chunker verify <manifest>
  chunker info <manifest>
  chunker hash [-a <algo>] <file>
  chunker rm [-r <root>] <fingerprint>
  chunker watch [-z] [-q] [-s <size>] [-u <unit>] [-a <algo>] [-m <method>] [-r <root>] <dir>

Options:
  -h --help     Show this screen.
  --version     Show version.
  -z            Store chunks and manifest as zip containers.
  -q            Do not print the resulting path.
  -s <size>     Chunk size in units [default: 256].
  -u <unit>     Chunk size unit: B, KB or MB [default: KB].
  -a <algo>     Hash algorithm: blake3, sha256 or sha512 [default: blake3].
  -m <method>   Zip method for -z: deflate or zstd [default: deflate].
  -r <root>     Storage root; defaults to $CHUNKBASE_ROOT, then the
                system temp directory.

Environment:
  CHUNKER_OPTS    options prepended to the command line
  CHUNKBASE_ROOT  storage root
  DEBUG=1         debug logging
`

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {
	args := os.Args[1:]
	if env := os.Getenv("CHUNKER_OPTS"); env != "" {
		pre, err := shlex.Split(env)
		if err != nil {
			log.Errorf("CHUNKER_OPTS: %v", err)
			return rcUsage
		}
		args = append(pre, args...)
	}

	parser := &docopt.Parser{OptionsFirst: false, HelpHandler: docopt.PrintHelpOnly}
	o, err := parser.ParseArgs(usage, args, "0.1")
	if err != nil {
		return rcUsage
	}
	if len(o) == 0 {
		// help or version was printed
		return 0
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return rcUsage
	}
	log.Debug(opts)

	switch true {
	case opts.Split:
		spec, err := chunkSpec(opts.Size, opts.Unit)
		if err != nil {
			log.Error(err)
			return rcUsage
		}
		method, err := archive.ParseMethod(opts.Method)
		if err != nil {
			log.Error(err)
			return rcUsage
		}
		res, err := split(opts.File, spec, opts.Algo, opts.Root, opts.Compress, method)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		if !opts.Quiet {
			fmt.Println(res.Handle)
		}
	case opts.Merge:
		out, err := chunkbase.Merge(opts.Manifest)
		if err != nil {
			log.Error(err)
			if errors.Is(err, chunkbase.ErrPartialWrite) {
				return rcOutput
			}
			return rcFailed
		}
		if !opts.Quiet {
			fmt.Println(out)
		}
	case opts.Verify:
		m, err := chunkbase.Verify(opts.Manifest)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		fmt.Printf("%s: %d chunks ok\n", m.FileName, m.ChunkCount)
	case opts.Info:
		m, err := chunkbase.Inspect(opts.Manifest)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		err = m.Encode(os.Stdout)
		if err != nil {
			log.Error(err)
			return rcOutput
		}
	case opts.Hash:
		digest, err := fingerprint.HashFile(opts.Algo, opts.File)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		fmt.Printf("%s  %s\n", digest, opts.File)
	case opts.Rm:
		root, err := storageRoot(opts.Root)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		err = chunkbase.Remove(root, opts.Fingerprint)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
	case opts.Watch:
		spec, err := chunkSpec(opts.Size, opts.Unit)
		if err != nil {
			log.Error(err)
			return rcUsage
		}
		method, err := archive.ParseMethod(opts.Method)
		if err != nil {
			log.Error(err)
			return rcUsage
		}
		err = watch(opts.Dir, spec, opts.Algo, opts.Root, opts.Compress, method, opts.Quiet)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
	}
	return 0
}

// chunkSpec parses the -s and -u options.  The library clamps sizes
// it will not honor; that is not a usage error.
func chunkSpec(size, unit string) (spec chunkbase.ChunkSpec, err error) {
	n, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return spec, fmt.Errorf("bad chunk size %q: %w", size, err)
	}
	u, err := chunkbase.ParseUnit(unit)
	if err != nil {
		return
	}
	return chunkbase.ChunkSpec{UnitSize: n, Unit: u}, nil
}

// storageRoot picks the -r option, then $CHUNKBASE_ROOT, then the
// temp preset.
func storageRoot(flag string) (root string, err error) {
	switch {
	case flag != "":
		return chunkbase.ResolveRoot(chunkbase.CustomLocation, flag)
	case os.Getenv("CHUNKBASE_ROOT") != "":
		return chunkbase.ResolveRoot(chunkbase.CustomLocation, os.Getenv("CHUNKBASE_ROOT"))
	}
	return chunkbase.ResolveRoot(chunkbase.TempLocation, "")
}

func split(fn string, spec chunkbase.ChunkSpec, algo, rootFlag string, compress bool, method archive.Method) (res *chunkbase.Result, err error) {
	root, err := storageRoot(rootFlag)
	if err != nil {
		return
	}
	src, err := chunkbase.Source{Algo: algo}.Assign(fn)
	if err != nil {
		return
	}
	return chunkbase.Split(src, spec, root, compress, chunkbase.WithMethod(method))
}

// watch splits files renamed into dir until interrupted.
func watch(dir string, spec chunkbase.ChunkSpec, algo, rootFlag string, compress bool, method archive.Method, quiet bool) (err error) {
	root, err := storageRoot(rootFlag)
	if err != nil {
		return
	}
	ib, err := inbox.Inbox{
		Dir:      dir,
		Root:     root,
		Spec:     spec,
		Compress: compress,
		Algo:     algo,
		Opts:     []chunkbase.OptionFunc{chunkbase.WithMethod(method)},
	}.Open()
	if err != nil {
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	results, errs := ib.Results, ib.Errors
	for results != nil || errs != nil {
		select {
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if !quiet {
				fmt.Println(res.Handle)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Error(err)
		case <-sig:
			log.Debugf("interrupted, closing inbox %s", ib.Dir)
			// Close waits for the run loop, which may be blocked on a
			// full channel; keep draining while it shuts down
			go ib.Close()
			sig = nil
		}
	}
	return
}
