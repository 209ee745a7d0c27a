package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
)

// tempFilePrefix marks in-flight atomic writes; such files are never listed.
const tempFilePrefix = ".helper-tmp-"

// ErrInvalidKey is returned for keys with no literal path below the root.
var ErrInvalidKey = errors.New("storage: invalid key")

// FilesystemBackend stores each object as a file below a root directory.
type FilesystemBackend struct {
	root string
}

// NewFilesystemBackend returns a backend rooted at dir. The directory is
// created on first write.
func NewFilesystemBackend(dir string) (*FilesystemBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("filesystem backend: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("filesystem backend: %w", err)
	}
	return &FilesystemBackend{root: abs}, nil
}

// Root returns the absolute root directory.
func (b *FilesystemBackend) Root() string {
	return b.root
}

// resolve maps key to a path below the root. Keys are taken literally, the
// way an object store takes them: a key with an empty, "." or ".." segment
// has no literal file path and is rejected rather than cleaned into some
// other key.
func (b *FilesystemBackend) resolve(key string) (string, error) {
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	p := filepath.Join(b.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return p, nil
}

// Get implements Backend.
func (b *FilesystemBackend) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put implements Backend. Content type and ACL have no filesystem meaning.
func (b *FilesystemBackend) Put(ctx context.Context, key string, data []byte, _ PutOptions) error {
	p, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	return writeFileAtomic(p, data, 0o640)
}

// List implements Backend.
func (b *FilesystemBackend) List(ctx context.Context, folder, namePrefix string) ([]string, error) {
	dir := b.root
	if folder != "" {
		p, err := b.resolve(folder)
		if err != nil {
			return nil, err
		}
		dir = p
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if isNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	pattern := escapeGlob(namePrefix) + "*"
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempFilePrefix) {
			continue
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			keys = append(keys, joinKey(folder, name))
		}
	}
	return keys, nil
}

// Ping implements Backend. A root that does not exist yet is fine as long as
// its parent is a directory.
func (b *FilesystemBackend) Ping(ctx context.Context) error {
	info, err := os.Stat(b.root)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("storage root %s is not a directory", b.root)
		}
		return nil
	}
	if !isNotExist(err) {
		return fmt.Errorf("failed to stat storage root: %w", err)
	}
	parent, err := os.Stat(filepath.Dir(b.root))
	if err != nil || !parent.IsDir() {
		return fmt.Errorf("storage root %s cannot be created", b.root)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name()) // no-op after a successful rename

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
