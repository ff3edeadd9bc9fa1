package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Disk stores uploaded files under a root directory with configured permission bits.
// Files are named <id><.ext>, the way downloads are resolved.
type Disk struct {
	root     string
	filePerm os.FileMode
	dirPerm  os.FileMode
}

// NewDisk resolves root to an absolute path and creates it with dirPerm.
func NewDisk(root string, filePerm, dirPerm os.FileMode) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := mkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Disk{root: abs, filePerm: filePerm, dirPerm: dirPerm}, nil
}

func (d *Disk) Root() string { return d.root }

func (d *Disk) FilePerm() os.FileMode { return d.filePerm }

func (d *Disk) DirPerm() os.FileMode { return d.dirPerm }

// PathFor returns the storage path of a file id with an optional extension (without dot).
func (d *Disk) PathFor(id, ext string) string {
	name := filepath.Base(id)
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	return filepath.Join(d.root, name)
}

// Contains reports whether path lies inside the storage root.
func (d *Disk) Contains(path string) bool {
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Create truncates or creates the file for writing, making parent directories with dirPerm.
func (d *Disk) Create(path string) (*os.File, error) {
	if !d.Contains(path) {
		return nil, fmt.Errorf("path %q outside storage root", path)
	}
	if err := mkdirAll(filepath.Dir(path), d.dirPerm); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, d.filePerm)
	if err != nil {
		return nil, err
	}
	// OpenFile is subject to the process umask.
	if err := f.Chmod(d.filePerm); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Open opens a stored file for reading along with its stat info.
func (d *Disk) Open(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, st, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (d *Disk) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// mkdirAll is os.MkdirAll with every directory it creates chmodded to perm,
// since MkdirAll is subject to the process umask. Existing directories are left alone.
func mkdirAll(dir string, perm os.FileMode) error {
	var created []string
	for p := dir; ; {
		if _, err := os.Stat(p); err == nil {
			break
		}
		created = append(created, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	for _, p := range created {
		if err := os.Chmod(p, perm); err != nil {
			return err
		}
	}
	return nil
}
