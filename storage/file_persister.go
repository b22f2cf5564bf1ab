// Package storage writes the artifacts of a page to disk and manages the
// data directories of browser processes.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StdoutPath is the path that makes LocalFilePersister write to its
// standard output instead of a file.
const StdoutPath = "-"

// FilePersister will persist files. It abstracts away the where and how of
// writing files to the source destination.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// LocalFilePersister will persist files to the local disk.
type LocalFilePersister struct {
	// Stdout receives the data persisted to StdoutPath. It defaults to
	// os.Stdout.
	Stdout io.Writer
}

// Persist writes the contents of data to path, creating the missing parent
// directories. An existing file is truncated.
func (l *LocalFilePersister) Persist(ctx context.Context, path string, data io.Reader) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == StdoutPath {
		out := l.Stdout
		if out == nil {
			out = os.Stdout
		}
		if _, err := io.Copy(out, data); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}
		return nil
	}

	cp := filepath.Clean(path)

	dir := filepath.Dir(cp)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		tempErr := f.Close()
		// Only return the close error if there isn't already an existing error.
		if tempErr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, tempErr)
		}
	}()

	if _, err = io.Copy(f, data); err != nil {
		return fmt.Errorf("writing the local file %q: %w", cp, err)
	}

	return nil
}
