package vfs

import (
	"context"
	"errors"
	"io/fs"
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/morezero/void-worker/pkg/events"
)

func newMemFS(t *testing.T) (*FS, *[]*events.ChangedEvent) {
	t.Helper()
	var captured []*events.ChangedEvent
	pub := events.NewCallbackPublisher(func(_ context.Context, ev *events.ChangedEvent) error {
		captured = append(captured, ev)
		return nil
	})
	return New(afero.NewMemMapFs(), WithPublisher(pub)), &captured
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"index.html":       "/index.html",
		"/docs/":           "/docs",
		"/a/../b.txt":      "/b.txt",
		"../../etc/passwd": "/etc/passwd",
		"":                 "/",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpen_Roots(t *testing.T) {
	for _, root := range []string{"", "mem://", "memory://"} {
		f, err := Open(root)
		if err != nil {
			t.Fatalf("vfs:fs_test - Open(%q): %v", root, err)
		}
		if _, ok := f.Afero().(*afero.MemMapFs); !ok {
			t.Errorf("vfs:fs_test - Open(%q) expected memory fs, got %T", root, f.Afero())
		}
	}

	dir := t.TempDir()
	f, err := Open("fs://" + dir)
	if err != nil {
		t.Fatalf("vfs:fs_test - Open disk: %v", err)
	}
	if err := f.WriteFile(context.Background(), "/hello.txt", []byte("hi")); err != nil {
		t.Fatalf("vfs:fs_test - write: %v", err)
	}
	data, err := afero.ReadFile(afero.NewOsFs(), dir+"/hello.txt")
	if err != nil || string(data) != "hi" {
		t.Errorf("vfs:fs_test - expected file on disk, got %q err=%v", data, err)
	}

	if _, err := Open("s3://bucket"); err == nil {
		t.Error("vfs:fs_test - expected error for unsupported root")
	}
}

func TestFS_FileLifecycle(t *testing.T) {
	f, captured := newMemFS(t)
	ctx := context.Background()

	if err := f.WriteFile(ctx, "site/index.html", []byte("<h1>hi</h1>")); err != nil {
		t.Fatalf("vfs:fs_test - write: %v", err)
	}
	info, err := f.Stat("/site")
	if err != nil || !info.IsDir() {
		t.Fatalf("vfs:fs_test - expected parent directory, err=%v", err)
	}
	data, err := f.ReadFile("/site/index.html")
	if err != nil || string(data) != "<h1>hi</h1>" {
		t.Errorf("vfs:fs_test - unexpected content %q err=%v", data, err)
	}

	if err := f.Rename(ctx, "/site/index.html", "/site/home.html"); err != nil {
		t.Fatalf("vfs:fs_test - rename: %v", err)
	}
	names, err := f.ReadDir("/site")
	if err != nil || !reflect.DeepEqual(names, []string{"home.html"}) {
		t.Errorf("vfs:fs_test - expected [home.html], got %v err=%v", names, err)
	}

	if err := f.Rmdir(ctx, "/site"); err == nil {
		t.Error("vfs:fs_test - rmdir of non-empty directory should fail")
	}
	if err := f.Unlink(ctx, "/site"); err == nil {
		t.Error("vfs:fs_test - unlink of a directory should fail")
	}
	if err := f.Unlink(ctx, "/site/home.html"); err != nil {
		t.Fatalf("vfs:fs_test - unlink: %v", err)
	}
	if err := f.Rmdir(ctx, "/site"); err != nil {
		t.Fatalf("vfs:fs_test - rmdir: %v", err)
	}
	if _, err := f.Stat("/site"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("vfs:fs_test - expected not exist, got %v", err)
	}

	ops := make([]string, 0, len(*captured))
	for _, ev := range *captured {
		if ev.Store != events.StoreFS {
			t.Errorf("vfs:fs_test - unexpected store %q", ev.Store)
		}
		ops = append(ops, ev.Op)
	}
	want := []string{events.OpWrite, events.OpWrite, events.OpRemove, events.OpRemove}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("vfs:fs_test - expected ops %v, got %v", want, ops)
	}
}

func TestFS_MkdirExisting(t *testing.T) {
	f, _ := newMemFS(t)
	ctx := context.Background()

	if err := f.Mkdir(ctx, "/docs"); err != nil {
		t.Fatalf("vfs:fs_test - mkdir: %v", err)
	}
	if err := f.Mkdir(ctx, "/docs"); !errors.Is(err, fs.ErrExist) {
		t.Errorf("vfs:fs_test - expected ErrExist, got %v", err)
	}
}

func TestFS_Clear(t *testing.T) {
	f, captured := newMemFS(t)
	ctx := context.Background()
	f.WriteFile(ctx, "/a.txt", []byte("a"))
	f.WriteFile(ctx, "/b/c.txt", []byte("c"))

	if err := f.Clear(ctx); err != nil {
		t.Fatalf("vfs:fs_test - clear: %v", err)
	}
	names, err := f.ReadDir("/")
	if err != nil {
		t.Fatalf("vfs:fs_test - readdir: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("vfs:fs_test - expected empty root, got %v", names)
	}
	last := (*captured)[len(*captured)-1]
	if last.Op != events.OpClear {
		t.Errorf("vfs:fs_test - expected clear event, got %s", last.Op)
	}
}

func TestFS_SymlinksInMemoryUnsupported(t *testing.T) {
	f, _ := newMemFS(t)
	err := f.Symlink(context.Background(), "/a.txt", "/link")
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("vfs:fs_test - expected ErrNotSupported, got %v", err)
	}
}

func TestFS_SymlinksOnDisk(t *testing.T) {
	f, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("vfs:fs_test - open: %v", err)
	}
	ctx := context.Background()
	f.WriteFile(ctx, "/target.txt", []byte("x"))

	if err := f.Symlink(ctx, "target.txt", "/link.txt"); err != nil {
		t.Fatalf("vfs:fs_test - symlink: %v", err)
	}
	target, err := f.Readlink("/link.txt")
	if err != nil || target != "/target.txt" {
		t.Errorf("vfs:fs_test - expected /target.txt, got %q err=%v", target, err)
	}
	info, err := f.Lstat("/link.txt")
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		t.Errorf("vfs:fs_test - expected symlink mode, err=%v", err)
	}
}
