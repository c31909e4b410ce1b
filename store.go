package chunkbase

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// StorageDir is the directory name the install and temp presets use
// for their storage root.
const StorageDir = "storages"

// Location selects how a storage root is found.
type Location int

const (
	// InstallLocation is StorageDir three levels above the running
	// executable.
	InstallLocation Location = iota
	// TempLocation is StorageDir under the system temp directory.
	TempLocation
	// CustomLocation is a caller supplied path.
	CustomLocation
)

func (loc Location) String() string {
	switch loc {
	case InstallLocation:
		return "install"
	case TempLocation:
		return "temp"
	case CustomLocation:
		return "custom"
	}
	return fmt.Sprintf("Location(%d)", int(loc))
}

// InstallRoot returns the storage root derived from the location of
// the running program, creating it if needed.
func InstallRoot() (root string, err error) {
	defer Return(&err)
	exe, err := os.Executable()
	Ck(err)
	exe, err = filepath.EvalSymlinks(exe)
	Ck(err)
	base := filepath.Dir(filepath.Dir(filepath.Dir(exe)))
	return OpenRoot(filepath.Join(base, StorageDir))
}

// TempRoot returns the storage root under the system temp directory,
// creating it if needed.
func TempRoot() (root string, err error) {
	return OpenRoot(filepath.Join(os.TempDir(), StorageDir))
}

// OpenRoot makes path absolute, creates it if needed, and returns it.
func OpenRoot(path string) (root string, err error) {
	defer Return(&err)
	ErrnoIf(path == "", syscall.EINVAL, "empty storage root")
	root, err = filepath.Abs(path)
	Ck(err)
	err = mkdir(root, 0755)
	Ck(err)
	info, err := os.Stat(root)
	Ck(err)
	ErrnoIf(!info.IsDir(), syscall.ENOTDIR, "storage root: %s", root)
	log.Debugf("storage root %s", root)
	return
}

// ResolveRoot returns the storage root for loc.  custom is only used
// with CustomLocation.
func ResolveRoot(loc Location, custom string) (root string, err error) {
	switch loc {
	case InstallLocation:
		return InstallRoot()
	case TempLocation:
		return TempRoot()
	case CustomLocation:
		return OpenRoot(custom)
	}
	return "", fmt.Errorf("unknown storage location: %v", loc)
}

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mkdir(dir string, mode os.FileMode) (err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, mode)
		if err != nil {
			return
		}
	}
	return
}
