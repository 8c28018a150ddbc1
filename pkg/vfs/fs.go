// Package vfs is the assistant-editable virtual filesystem backing resource
// resolution. It runs in memory or over a directory on disk.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/morezero/void-worker/pkg/events"
)

const logPrefix = "vfs:fs"

// ErrNotSupported is returned for operations the backing filesystem lacks, such
// as symlinks in memory.
var ErrNotSupported = errors.New("operation not supported by this filesystem")

// FS wraps an afero filesystem with rooted paths and change events.
type FS struct {
	fs        afero.Fs
	root      string
	dir       string
	publisher events.EventPublisher
}

// Option configures an FS.
type Option func(*FS)

// WithPublisher reports every mutation to p.
func WithPublisher(p events.EventPublisher) Option {
	return func(f *FS) { f.publisher = p }
}

// New wraps an existing afero filesystem.
func New(base afero.Fs, opts ...Option) *FS {
	f := &FS{fs: base, root: "mem://", publisher: &events.NoOpPublisher{}}
	for _, opt := range opts {
		opt(f)
	}
	f.publisher = events.OrNoOp(f.publisher)
	return f
}

// Open builds an FS from a root location: "" or "mem://" for memory, "fs:///dir",
// "file:///dir" or a plain directory for disk. Disk roots are created if missing.
func Open(root string, opts ...Option) (*FS, error) {
	kind, dir := "mem", ""
	if root != "" {
		if i := strings.Index(root, "://"); i >= 0 {
			kind, dir = root[:i], root[i+3:]
		} else {
			kind, dir = "fs", root
		}
	}

	var base afero.Fs
	switch kind {
	case "mem", "memory":
		base = afero.NewMemMapFs()
	case "fs", "file":
		if dir == "" {
			return nil, fmt.Errorf("%s - empty directory in root %q", logPrefix, root)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s - failed to create root %s: %w", logPrefix, dir, err)
		}
		base = afero.NewBasePathFs(afero.NewOsFs(), dir)
	default:
		return nil, fmt.Errorf("%s - unsupported filesystem %q", logPrefix, kind)
	}

	f := New(base, opts...)
	f.root = root
	f.dir = filepath.Clean(dir)
	if root == "" {
		f.root = "mem://"
	}
	slog.Info(fmt.Sprintf("%s - Virtual filesystem at %s", logPrefix, f.root))
	return f, nil
}

// Root returns the root location the filesystem was opened with.
func (f *FS) Root() string {
	return f.root
}

// Afero exposes the underlying filesystem.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// Clean roots name: relative paths get a leading "/" and dot segments are resolved.
func Clean(name string) string {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return path.Clean(name)
}

func (f *FS) Stat(name string) (os.FileInfo, error) {
	return f.fs.Stat(Clean(name))
}

// Lstat is Stat without following a final symlink, where the backend allows it.
func (f *FS) Lstat(name string) (os.FileInfo, error) {
	if l, ok := f.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(Clean(name))
		return info, err
	}
	return f.Stat(name)
}

func (f *FS) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(f.fs, Clean(name))
}

// WriteFile writes data, creating parent directories as needed.
func (f *FS) WriteFile(ctx context.Context, name string, data []byte) error {
	name = Clean(name)
	if err := f.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(f.fs, name, data, 0o644); err != nil {
		return err
	}
	f.notify(ctx, events.OpWrite, name)
	return nil
}

// Unlink removes a file. Directories are refused.
func (f *FS) Unlink(ctx context.Context, name string) error {
	name = Clean(name)
	info, err := f.Lstat(name)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "unlink", Path: name, Err: errors.New("is a directory")}
	}
	if err := f.fs.Remove(name); err != nil {
		return err
	}
	f.notify(ctx, events.OpRemove, name)
	return nil
}

// ReadDir lists the entry names of a directory in sorted order.
func (f *FS) ReadDir(name string) ([]string, error) {
	infos, err := afero.ReadDir(f.fs, Clean(name))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Mkdir creates a single directory. It fails if the path exists.
func (f *FS) Mkdir(ctx context.Context, name string) error {
	name = Clean(name)
	if _, err := f.fs.Stat(name); err == nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrExist}
	}
	if err := f.fs.Mkdir(name, 0o755); err != nil {
		return err
	}
	f.notify(ctx, events.OpWrite, name)
	return nil
}

// Rmdir removes an empty directory.
func (f *FS) Rmdir(ctx context.Context, name string) error {
	name = Clean(name)
	info, err := f.fs.Stat(name)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "rmdir", Path: name, Err: errors.New("not a directory")}
	}
	entries, err := f.ReadDir(name)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return &fs.PathError{Op: "rmdir", Path: name, Err: errors.New("directory not empty")}
	}
	if err := f.fs.Remove(name); err != nil {
		return err
	}
	f.notify(ctx, events.OpRemove, name)
	return nil
}

func (f *FS) Rename(ctx context.Context, oldName, newName string) error {
	oldName, newName = Clean(oldName), Clean(newName)
	if err := f.fs.Rename(oldName, newName); err != nil {
		return err
	}
	f.notify(ctx, events.OpWrite, oldName, newName)
	return nil
}

// Symlink creates name pointing at target.
func (f *FS) Symlink(ctx context.Context, target, name string) error {
	linker, ok := f.fs.(afero.Linker)
	if !ok {
		return &fs.PathError{Op: "symlink", Path: name, Err: ErrNotSupported}
	}
	name = Clean(name)
	if err := linker.SymlinkIfPossible(target, name); err != nil {
		return err
	}
	f.notify(ctx, events.OpWrite, name)
	return nil
}

func (f *FS) Readlink(name string) (string, error) {
	reader, ok := f.fs.(afero.LinkReader)
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: ErrNotSupported}
	}
	target, err := reader.ReadlinkIfPossible(Clean(name))
	if err != nil {
		return "", err
	}
	// Disk-backed links point at real paths; report them relative to the root.
	if f.dir != "" && f.dir != "." {
		if rel, err := filepath.Rel(f.dir, target); err == nil && !strings.HasPrefix(rel, "..") {
			return Clean(filepath.ToSlash(rel)), nil
		}
	}
	return target, nil
}

// Clear removes every entry under the root.
func (f *FS) Clear(ctx context.Context) error {
	entries, err := afero.ReadDir(f.fs, "/")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%s - failed to list root: %w", logPrefix, err)
	}
	for _, entry := range entries {
		if err := f.fs.RemoveAll(path.Join("/", entry.Name())); err != nil {
			return fmt.Errorf("%s - failed to remove %s: %w", logPrefix, entry.Name(), err)
		}
	}
	slog.Info(fmt.Sprintf("%s - Cleared %d entries", logPrefix, len(entries)))
	f.notify(ctx, events.OpClear)
	return nil
}

func (f *FS) notify(ctx context.Context, op string, keys ...string) {
	if err := f.publisher.PublishChanged(ctx, events.NewChangedEvent(events.StoreFS, op, keys...)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event: %v", logPrefix, op, err))
	}
}
