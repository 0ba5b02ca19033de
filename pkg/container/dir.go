package container

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/joomcode/errorx"
)

// Dir is a Storage over a directory tree. Writes go straight to disk, so
// Commit has nothing to do.
type Dir struct {
	root string
}

// OpenDir opens an existing directory.
func OpenDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, EntryNotFound.Wrap(err, "directory not found: %s", root).
				WithProperty(pathProperty, root)
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, errorx.IllegalArgument.New("not a directory: %s", root)
	}
	return &Dir{root: root}, nil
}

// CreateDir opens root, creating it first when missing.
func CreateDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", root, err)
	}
	return OpenDir(root)
}

// Root returns the directory backing d.
func (d *Dir) Root() string { return d.root }

func (d *Dir) PathSeparator() string { return "/" }

func (d *Dir) Names() []string {
	var names []string
	_ = filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(d.root, p)
		if relErr != nil {
			return nil
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	return names
}

func (d *Dir) Open(name string, mode Mode) (Stream, error) {
	full, logical, err := d.resolve(name)
	if err != nil {
		return nil, err
	}

	var f *os.File
	switch mode {
	case ModeRead:
		f, err = os.Open(full)
	case ModeReadUpdate:
		f, err = os.OpenFile(full, os.O_RDWR, 0)
	case ModeWrite:
		if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create parent of %q: %w", logical, mkErr)
		}
		f, err = os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	default:
		return nil, errorx.IllegalArgument.New("unsupported open mode %s", mode)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newNotFound(logical)
		}
		return nil, fmt.Errorf("open entry %q: %w", logical, err)
	}
	return f, nil
}

func (d *Dir) Remove(name string) error {
	full, logical, err := d.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove entry %q: %w", logical, err)
	}
	return nil
}

func (d *Dir) Commit() error { return nil }

func (d *Dir) Close() error { return nil }

func (d *Dir) resolve(name string) (string, string, error) {
	logical := logicalName(name)
	for _, seg := range strings.Split(logical, "/") {
		if seg == ".." {
			return "", "", errorx.IllegalArgument.New("entry name %q escapes the storage root", name)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+logical), "/")
	if clean == "" {
		return "", "", errorx.IllegalArgument.New("empty entry name")
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), clean, nil
}
