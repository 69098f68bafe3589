package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8480/blobs")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return store
}

func TestLocalPutAndOpen(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	const key = "projects/p1/1.png"
	const content = "pngdata"

	written, err := store.Put(ctx, key, strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("written = %d, want %d", written, len(content))
	}

	rc, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != content {
		t.Errorf("content = %q, want %q", data, content)
	}

	ok, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists = false after Put, want true")
	}
}

func TestLocalPutOverwrites(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	const key = "projects/p1/1.png"
	if _, err := store.Put(ctx, key, strings.NewReader("old"), 3); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Put(ctx, key, strings.NewReader("new"), 3); err != nil {
		t.Fatalf("Put retry: %v", err)
	}

	rc, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}

func TestLocalRemove(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	const key = "projects/p1/1.png"
	if _, err := store.Put(ctx, key, strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Open(key); err != ErrNotFound {
		t.Errorf("Open after remove = %v, want ErrNotFound", err)
	}
	if err := store.Remove(ctx, key); err != ErrNotFound {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}

	// Removal of the last blob cleans its empty parents up to the root.
	if _, err := os.Stat(filepath.Join(store.RootDir, "projects")); !os.IsNotExist(err) {
		t.Errorf("empty parent directory not cleaned, stat err = %v", err)
	}
	if _, err := os.Stat(store.RootDir); err != nil {
		t.Errorf("root directory removed: %v", err)
	}
}

func TestLocalPublicURL(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://cdn.example.com/blobs/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	got := store.PublicURL("projects/p1/1.png")
	want := "http://cdn.example.com/blobs/projects/p1/1.png"
	if got != want {
		t.Errorf("PublicURL = %q, want %q", got, want)
	}
}

func TestLocalCleanTempFiles(t *testing.T) {
	store := newTestLocalStore(t)

	stale := filepath.Join(store.RootDir, ".tmp", "tmp-stale")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := store.CleanTempFiles(); err != nil {
		t.Fatalf("CleanTempFiles: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale temp file survived, stat err = %v", err)
	}
}

func TestLocalHealthCheck(t *testing.T) {
	store := newTestLocalStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
