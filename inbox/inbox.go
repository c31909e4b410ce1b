// Package inbox splits files as they arrive in a directory.
//
// Writers should create a file elsewhere (or under a name starting
// with a dot) and rename it into the inbox once it is complete; the
// inbox reacts to the file appearing under its final name.  Files are
// split one at a time, in the order their events arrive, and left in
// place afterwards.
package inbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/chunkbase"
)

// Inbox watches Dir and splits every regular file that appears in it
// into Root.
type Inbox struct {
	Dir      string
	Root     string
	Spec     chunkbase.ChunkSpec
	Compress bool
	Algo     string
	Opts     []chunkbase.OptionFunc

	// Results and Errors report the outcome of each split.  Both
	// are closed once the inbox is closed; callers must keep
	// draining them.
	Results chan *chunkbase.Result
	Errors  chan error

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open creates Dir if needed and starts watching it.
func (ib Inbox) Open() (out *Inbox, err error) {
	defer Return(&err)

	if ib.Spec == (chunkbase.ChunkSpec{}) {
		ib.Spec = chunkbase.DefaultSpec
	}
	ib.Dir, err = filepath.Abs(ib.Dir)
	Ck(err)
	err = os.MkdirAll(ib.Dir, 0755)
	Ck(err)
	ib.Root, err = chunkbase.OpenRoot(ib.Root)
	Ck(err)

	ib.watcher, err = fsnotify.NewWatcher()
	Ck(err)
	err = ib.watcher.Add(ib.Dir)
	if err != nil {
		ib.watcher.Close()
		return nil, err
	}

	ib.Results = make(chan *chunkbase.Result, 16)
	ib.Errors = make(chan error, 16)
	ib.done = make(chan struct{})
	go ib.run()
	log.Debugf("inbox %s -> %s", ib.Dir, ib.Root)
	return &ib, nil
}

// Close stops watching and waits for the split in progress, if any,
// to finish.
func (ib *Inbox) Close() (err error) {
	err = ib.watcher.Close()
	<-ib.done
	return
}

func (ib *Inbox) run() {
	defer close(ib.done)
	defer close(ib.Errors)
	defer close(ib.Results)
	for {
		select {
		case event, ok := <-ib.watcher.Events:
			if !ok {
				return
			}
			log.Debugf("inbox event %v", event)
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			res, err := ib.put(event.Name)
			if err != nil {
				ib.Errors <- err
			} else if res != nil {
				ib.Results <- res
			}
		case err, ok := <-ib.watcher.Errors:
			if !ok {
				return
			}
			ib.Errors <- err
		}
	}
}

// put splits the file at path.  Directories, dot files and anything
// that is not a regular file are skipped with a nil result.
func (ib *Inbox) put(path string) (res *chunkbase.Result, err error) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	src, err := chunkbase.Source{Algo: ib.Algo}.Assign(path)
	if err != nil {
		return
	}
	return chunkbase.Split(src, ib.Spec, ib.Root, ib.Compress, ib.Opts...)
}
