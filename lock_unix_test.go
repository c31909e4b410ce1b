//go:build unix

package chunkbase

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// a waiter granted the lock on a file that was unlinked meanwhile must
// not count as holding the lock
func TestLockUnlinked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	first, err := lock(path, 0644)
	tassert(t, err == nil, "%v", err)

	got := make(chan *os.File, 2)
	go func() {
		fh, err := lock(path, 0644)
		if err != nil {
			t.Error(err)
		}
		got <- fh
	}()
	time.Sleep(100 * time.Millisecond)
	err = os.Remove(path)
	tassert(t, err == nil, "%v", err)
	first.Close()

	var second *os.File
	select {
	case second = <-got:
	case <-time.After(10 * time.Second):
		t.Fatal("waiter never got the lock")
	}
	tassert(t, second != nil, "no lock")
	held, err := second.Stat()
	tassert(t, err == nil, "%v", err)
	named, err := os.Stat(path)
	tassert(t, err == nil, "lock file not recreated: %v", err)
	tassert(t, os.SameFile(held, named), "lock held on an unlinked file")

	// a newcomer still has to wait
	go func() {
		fh, err := lock(path, 0644)
		if err != nil {
			t.Error(err)
		}
		got <- fh
	}()
	select {
	case <-got:
		t.Fatal("two holders of the same lock")
	case <-time.After(200 * time.Millisecond):
	}
	second.Close()
	select {
	case third := <-got:
		tassert(t, third != nil, "no lock")
		third.Close()
	case <-time.After(10 * time.Second):
		t.Fatal("newcomer never got the lock")
	}
}
