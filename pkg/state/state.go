// Package state manages the on-disk runtime layout under the data directory.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the canonical runtime layout.
type Paths struct {
	Root      string
	Store     string
	Audit     string
	Retention string
	Crash     string
	Telemetry string
}

// PathsVar holds the layout resolved by EnsureStateDirs.
var PathsVar Paths

// Layout returns the runtime layout for dbPath without touching disk.
func Layout(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		Root:      dbPath,
		Store:     filepath.Join(dbPath, "store"),
		Audit:     filepath.Join(statePath, "audit"),
		Retention: filepath.Join(statePath, "retention"),
		Crash:     filepath.Join(statePath, "crash"),
		Telemetry: filepath.Join(statePath, "telemetry"),
	}
}

// EnsureStateDirs creates the layout under dbPath. Existing entries must be
// real directories without group/other write bits, and must be writable.
func EnsureStateDirs(dbPath string) (Paths, error) {
	p := Layout(dbPath)
	for _, dir := range []string{p.Store, p.Audit, p.Retention, p.Crash, p.Telemetry} {
		if err := ensureDir(dir); err != nil {
			return Paths{}, err
		}
	}
	PathsVar = p
	return p, nil
}

func ensureDir(p string) error {
	if fi, err := os.Lstat(p); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path is a symlink: %s", p)
		}
		if !fi.IsDir() {
			return fmt.Errorf("path exists and is not a directory: %s", p)
		}
		if fi.Mode().Perm()&0o022 != 0 {
			return fmt.Errorf("path has permissive mode (group/other write): %s", p)
		}
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return fmt.Errorf("cannot create path %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(p, ".validate-*")
	if err != nil {
		return fmt.Errorf("path not writable: %s: %w", p, err)
	}
	tmp.Close()
	_ = os.Remove(tmp.Name())
	return nil
}
