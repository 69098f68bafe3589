package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/galleryd/galleryd/internal/uid"
)

// LocalStore implements the Store interface using the local filesystem.
// Blobs are stored as files within a configurable root directory, with the
// key used as the relative path. Public URLs are derived from a configured
// base URL under which the root directory is served.
type LocalStore struct {
	// RootDir is the base directory under which all blob data is stored.
	RootDir string
	// BaseURL is the public URL prefix mapped to RootDir.
	BaseURL string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// It creates the root directory and the temp directory if they do not exist.
func NewLocalStore(rootDir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root directory %q: %w", rootDir, err)
	}
	// Create the .tmp directory for atomic writes.
	tmpDir := filepath.Join(rootDir, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory %q: %w", tmpDir, err)
	}
	return &LocalStore{RootDir: rootDir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// CleanTempFiles removes all files in the .tmp directory. This is called on
// startup. Any temp files left behind indicate incomplete writes from a
// previous crash.
func (s *LocalStore) CleanTempFiles() error {
	tmpDir := filepath.Join(s.RootDir, ".tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

// blobPath returns the full filesystem path for a key.
func (s *LocalStore) blobPath(key string) string {
	return filepath.Join(s.RootDir, filepath.FromSlash(key))
}

// tempPath returns a unique temporary file path in the .tmp directory.
func (s *LocalStore) tempPath() string {
	return filepath.Join(s.RootDir, ".tmp", "tmp-"+uid.New())
}

// Put writes blob data to a file using the atomic write pattern: write to a
// temp file, fsync, rename. A retried Put lands on the same final path, so
// last-write-wins and a prior partial write is never observable.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	dst := s.blobPath(key)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("creating parent directories for %q: %w", key, err)
	}

	tmpPath := s.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing blob data: %w", err)
	}

	// Fsync before rename to guarantee durability.
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file to final path: %w", err)
	}

	return written, nil
}

// Remove deletes the blob file. Returns ErrNotFound when the file does not
// exist. Also cleans up parent directories left empty by the removal.
func (s *LocalStore) Remove(ctx context.Context, key string) error {
	dst := s.blobPath(key)

	err := os.Remove(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("removing blob file %q: %w", key, err)
	}

	// Best-effort cleanup of now-empty parent directories, stopping at
	// the root. os.Remove fails on non-empty directories, which ends the
	// walk.
	dir := filepath.Dir(dst)
	root := filepath.Clean(s.RootDir)
	for dir != root && strings.HasPrefix(dir, root) {
		if os.Remove(dir) != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// PublicURL joins the configured base URL with the key. Pure, no I/O.
func (s *LocalStore) PublicURL(key string) string {
	return s.BaseURL + "/" + key
}

// Exists checks whether a blob file exists at the given key.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.blobPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob file %q: %w", key, err)
	}
	return true, nil
}

// Open returns the blob file for reading. Used by the local file-serving
// route and the audit tool; the HTTP API itself hands out PublicURL.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening blob file %q: %w", key, err)
	}
	return f, nil
}

// HealthCheck verifies the root directory is accessible and writable.
func (s *LocalStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.RootDir)
	if err != nil {
		return fmt.Errorf("stat blob root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob root %q is not a directory", s.RootDir)
	}
	probe := filepath.Join(s.RootDir, ".tmp", "health-"+uid.New())
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("blob root not writable: %w", err)
	}
	os.Remove(probe)
	return nil
}
