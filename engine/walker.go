package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/franksops/blobpush/provider"
)

// Lister is the read side of the local source.
type Lister interface {
	Stat(ctx context.Context, path string) (provider.FileInfo, error)
	List(ctx context.Context, path string) ([]provider.FileInfo, error)
}

// Walker enumerates the work set of a run. Items come out in the order
// the directory listing yields them.
type Walker struct {
	Source    Lister
	Recursive bool
}

// NewWalker creates a walker. Without recursion only the regular files
// directly inside the root are enumerated.
func NewWalker(src Lister, recursive bool) *Walker {
	return &Walker{
		Source:    src,
		Recursive: recursive,
	}
}

// Walk enumerates root once. Failures are returned as
// *EnumerationError, except cancellation which returns ctx.Err().
func (w *Walker) Walk(ctx context.Context, root string) ([]WorkItem, error) {
	stat, err := w.Source.Stat(ctx, root)
	if err != nil {
		return nil, w.fail(ctx, root, err)
	}

	// If the root itself is just a file, it is the whole work set.
	if !stat.IsDir() {
		return []WorkItem{newWorkItem(root, stat.Name(), stat)}, nil
	}

	// Iterative walk over relative directory paths.
	var items []WorkItem
	stack := []string{""}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dir := root
		if rel != "" {
			dir = filepath.Join(root, filepath.FromSlash(rel))
		}

		entries, err := w.Source.List(ctx, dir)
		if err != nil {
			return nil, w.fail(ctx, dir, err)
		}

		var subdirs []string
		for _, entry := range entries {
			name := path.Join(rel, entry.Name())
			if entry.IsDir() {
				if w.Recursive {
					subdirs = append(subdirs, name)
				}
				continue
			}
			items = append(items, newWorkItem(filepath.Join(root, filepath.FromSlash(name)), name, entry))
		}

		// reversed so that the stack pops them in listing order
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return items, nil
}

func (w *Walker) fail(ctx context.Context, dir string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: %w", ErrSourceNotFound, err)
	}
	return &EnumerationError{Path: dir, Err: err}
}

func newWorkItem(localPath, name string, info provider.FileInfo) WorkItem {
	return WorkItem{
		Path:    localPath,
		Name:    name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
