package storage

import (
	"fmt"
	"os"
)

// Dir is a directory holding the data of a browser process.
type Dir struct {
	// Dir is the path of the directory.
	Dir string
	// remove is true for directories created by Make.
	remove bool
}

// Make uses dir when it is set. Otherwise it creates a new directory in
// tmpDir, or in the default temporary directory when tmpDir is empty, and
// marks it for removal by Cleanup.
func (d *Dir) Make(tmpDir, dir string) error {
	if dir != "" {
		d.Dir = dir
		return nil
	}

	var err error
	if d.Dir, err = os.MkdirTemp(tmpDir, "xk6-headless-data-*"); err != nil {
		return fmt.Errorf("creating a data directory: %w", err)
	}
	d.remove = true

	return nil
}

// Cleanup removes the directory if Make created it.
func (d *Dir) Cleanup() error {
	if !d.remove {
		return nil
	}
	if err := os.RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("removing the data directory %q: %w", d.Dir, err)
	}
	d.remove = false

	return nil
}
