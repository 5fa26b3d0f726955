package provider

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ensure interface is implemented
var _ ObjectStore = (*LocalStore)(nil)

// LocalSource lists and stats files on a posix-compliant local filesystem.
type LocalSource struct {
	basePath string
}

// NewLocalSource creates a new LocalSource rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalSource(basePath string) *LocalSource {
	return &LocalSource{basePath: basePath}
}

func (p *LocalSource) resolve(path string) string {
	if p.basePath == "" {
		return path
	}
	return filepath.Join(p.basePath, filepath.Clean(path))
}

// Stat returns the FileInfo for the given path.
func (p *LocalSource) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.resolve(path))
	if err != nil {
		return nil, err
	}
	return WrapOSFileInfo(info), nil
}

// List returns the directories and regular files of the given directory
// in the order the filesystem yields them. No sorting is applied.
// Symlinks to regular files are followed; symlinks to directories,
// dangling links, devices, FIFOs and sockets are skipped.
func (p *LocalSource) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirPath := p.resolve(path)
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // skip files that disappeared between ReadDir and Info
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			info, err = os.Stat(filepath.Join(dirPath, entry.Name()))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			continue
		}
		infos = append(infos, WrapOSFileInfo(info))
	}
	return infos, nil
}

// LocalStore implements ObjectStore on top of a local directory tree.
// Each container is a sub-directory of root and each object a file in it.
type LocalStore struct {
	root      string
	buffers   *BufferPool
	checksums *ChecksumPool
}

// NewLocalStore creates a LocalStore rooted at root.
func NewLocalStore(root string, bufferSize int) *LocalStore {
	return &LocalStore{
		root:      root,
		buffers:   NewBufferPool(bufferSize),
		checksums: NewChecksumPool(),
	}
}

func (s *LocalStore) containerPath(c Container) string {
	return filepath.Join(s.root, c.Name)
}

// CreateContainer creates the container directory if it does not exist.
func (s *LocalStore) CreateContainer(ctx context.Context, name string) (Container, error) {
	if err := ctx.Err(); err != nil {
		return Container{}, err
	}
	if !filepath.IsLocal(name) {
		return Container{}, fmt.Errorf("invalid container name %q", name)
	}

	c := Container{Name: name}
	if err := os.MkdirAll(s.containerPath(c), 0755); err != nil {
		return Container{}, fmt.Errorf("creating container %s: %w", name, err)
	}
	return c, nil
}

// ObjectRef resolves name inside c.
func (s *LocalStore) ObjectRef(c Container, name string) ObjectRef {
	return ObjectRef{Container: c, Key: name}
}

// Upload copies localPath into the container. A failed upload leaves no
// object behind.
func (s *LocalStore) Upload(ctx context.Context, ref ObjectRef, localPath string, opts UploadOptions) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !filepath.IsLocal(filepath.FromSlash(ref.Key)) {
		return fmt.Errorf("invalid object key %q", ref.Key)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return err
	}

	fullPath := filepath.Join(s.containerPath(ref.Container), filepath.FromSlash(ref.Key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	dst, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(fullPath)
		}
	}()

	cr := NewChecksumReader(src)
	if _, err = s.buffers.Copy(dst, cr); err != nil {
		dst.Close()
		return fmt.Errorf("copying %s: %w", localPath, err)
	}
	if err = dst.Close(); err != nil {
		return err
	}

	if opts.VerifyIntegrity {
		var sum uint64
		if sum, err = s.checksums.FileChecksum(fullPath); err != nil {
			return err
		}
		if err = VerifyChecksum(sum, cr.Checksum()); err != nil {
			return fmt.Errorf("verifying %s: %w", ref.Key, err)
		}
	}

	if opts.PreserveMetadata {
		// Ignore metadata application errors (permissions issues, etc)
		_ = ApplyMetadata(fullPath, WrapOSFileInfo(srcInfo))
	}
	return nil
}

// CountObjects counts the regular files below the container directory.
func (s *LocalStore) CountObjects(ctx context.Context, c Container) (int, error) {
	count := 0
	err := filepath.WalkDir(s.containerPath(c), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting objects in %s: %w", c.Name, err)
	}
	return count, nil
}

// DeleteContainer removes the container directory and its contents.
func (s *LocalStore) DeleteContainer(ctx context.Context, c Container) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.containerPath(c)); err != nil {
		return fmt.Errorf("deleting container %s: %w", c.Name, err)
	}
	return nil
}
