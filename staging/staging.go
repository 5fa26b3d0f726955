// Package staging replicates a template file into a scratch directory
// so that a run has a batch of files to upload.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"
)

// ErrNoTemplate is returned when the template directory has no regular file.
var ErrNoTemplate = errors.New("no file found to use as template")

// Config holds the settings of the staging step.
type Config struct {
	// Template is a file, or a directory whose first regular file is used.
	Template string

	// Replicas is the number of copies to produce.
	Replicas int

	// Dir is the parent of the scratch directory. Empty means the
	// directory that contains the template.
	Dir string
}

// Stager produces the copies on a billy filesystem.
type Stager struct {
	log logrus.FieldLogger
	fs  billy.Filesystem
	cfg Config
}

// New creates a Stager on the host filesystem.
func New(log logrus.FieldLogger, cfg Config) *Stager {
	return NewWithFS(log, osfs.New("/"), cfg)
}

// NewWithFS creates a Stager on fs. Paths in cfg are resolved against
// the root of fs.
func NewWithFS(log logrus.FieldLogger, fs billy.Filesystem, cfg Config) *Stager {
	return &Stager{
		log: log.WithField("component", "staging"),
		fs:  fs,
		cfg: cfg,
	}
}

// Stage creates a fresh copy-* directory and writes Replicas copies of
// the template into it, named "<i>-<name>" for i from 1. When an error
// occurs after the directory was created its path is still returned so
// that it can be torn down.
func (s *Stager) Stage(ctx context.Context) (string, error) {
	if s.cfg.Replicas <= 0 {
		return "", fmt.Errorf("replicas must be positive, got %d", s.cfg.Replicas)
	}

	template, err := s.template()
	if err != nil {
		return "", err
	}

	parent := s.cfg.Dir
	if parent == "" {
		parent = filepath.Dir(template)
	} else if err := s.fs.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("creating staging parent %s: %w", parent, err)
	}

	dir, err := util.TempDir(s.fs, parent, "copy-")
	if err != nil {
		return "", fmt.Errorf("creating staging directory in %s: %w", parent, err)
	}
	if dir == "" {
		return "", fmt.Errorf("creating staging directory in %s: no free name", parent)
	}

	log := s.log.WithFields(logrus.Fields{
		"template": template,
		"dir":      dir,
	})

	base := filepath.Base(template)
	for i := 1; i <= s.cfg.Replicas; i++ {
		if err := ctx.Err(); err != nil {
			return dir, err
		}
		dst := filepath.Join(dir, fmt.Sprintf("%d-%s", i, base))
		if err := s.copyFile(template, dst); err != nil {
			return dir, fmt.Errorf("copying template to %s: %w", dst, err)
		}
	}

	log.WithField("replicas", s.cfg.Replicas).Info("Staged template copies")
	return dir, nil
}

// Teardown removes dir and everything below it. A missing dir is not
// an error.
func (s *Stager) Teardown(dir string) error {
	if err := util.RemoveAll(s.fs, dir); err != nil {
		return fmt.Errorf("removing staging directory %s: %w", dir, err)
	}
	return nil
}

func (s *Stager) template() (string, error) {
	path := s.cfg.Template
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		path = abs
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := s.fs.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("listing template directory %s: %w", path, err)
	}
	for _, entry := range entries {
		if entry.Mode().IsRegular() {
			return filepath.Join(path, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoTemplate, path)
}

func (s *Stager) copyFile(src, dst string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := s.fs.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
