package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		tempDir := filepath.Join(os.TempDir(), "mediagen_test_"+randomSuffix())
		defer func() { _ = os.RemoveAll(tempDir) }()

		storage, err := NewLocalStorage(tempDir)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.TempDir() != tempDir {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), tempDir)
		}

		info, err := os.Stat(tempDir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "mediagen")
		if storage.TempDir() != expected {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), expected)
		}
	})
}

func TestLocalStorage_SaveTemp(t *testing.T) {
	storage := setupTestStorage(t)

	t.Run("saves data to temp file", func(t *testing.T) {
		ctx := context.Background()

		path, err := storage.SaveTemp(ctx, "chunk", bytes.NewReader([]byte("test data")))
		if err != nil {
			t.Fatalf("SaveTemp() error = %v", err)
		}
		defer func() { _ = os.Remove(path) }()

		if !strings.Contains(path, "chunk_") {
			t.Errorf("path %s should contain 'chunk_'", path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "test data" {
			t.Errorf("got %q, want %q", string(content), "test data")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.SaveTemp(ctx, "test", bytes.NewReader([]byte("data")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_LoadTemp(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("loads saved file", func(t *testing.T) {
		path, err := storage.SaveTemp(ctx, "load_test", bytes.NewReader([]byte("load data")))
		if err != nil {
			t.Fatalf("SaveTemp() error = %v", err)
		}
		defer func() { _ = os.Remove(path) }()

		reader, err := storage.LoadTemp(ctx, path)
		if err != nil {
			t.Fatalf("LoadTemp() error = %v", err)
		}
		defer func() { _ = reader.Close() }()

		content, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if string(content) != "load data" {
			t.Errorf("got %q, want %q", string(content), "load data")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		_, err := storage.LoadTemp(ctx, "/non/existent/file")
		if err == nil {
			t.Error("expected error for non-existent file")
		}
	})
}

func TestLocalStorage_CleanupTemp(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes files", func(t *testing.T) {
		var paths []string
		for i := 0; i < 3; i++ {
			path, err := storage.SaveTemp(ctx, "cleanup", bytes.NewReader([]byte("data")))
			if err != nil {
				t.Fatalf("SaveTemp() error = %v", err)
			}
			paths = append(paths, path)
		}

		if err := storage.CleanupTemp(ctx, paths); err != nil {
			t.Fatalf("CleanupTemp() error = %v", err)
		}

		for _, p := range paths {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("file %s still exists", p)
			}
		}
	})

	t.Run("ignores non-existent files", func(t *testing.T) {
		if err := storage.CleanupTemp(ctx, []string{"/non/existent/file"}); err != nil {
			t.Errorf("CleanupTemp() should ignore non-existent files, got %v", err)
		}
	})
}

func TestLocalStorage_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("writes asset and returns public url", func(t *testing.T) {
		tempDir := t.TempDir()
		storage, err := NewLocalStorage(tempDir, WithPublicBaseURL("https://media.example.com/"))
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		url, err := storage.Put(ctx, "image/2026/10/abc.png", bytes.NewReader([]byte("png")), PutOptions{ContentType: "image/png"})
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		if url != "https://media.example.com/assets/image/2026/10/abc.png" {
			t.Errorf("url = %s", url)
		}
		content, err := os.ReadFile(filepath.Join(tempDir, AssetsDir, "image", "2026", "10", "abc.png"))
		if err != nil {
			t.Fatalf("asset not written: %v", err)
		}
		if string(content) != "png" {
			t.Errorf("got %q, want %q", content, "png")
		}
	})

	t.Run("keys cannot escape the assets directory", func(t *testing.T) {
		tempDir := t.TempDir()
		storage, err := NewLocalStorage(tempDir, WithPublicBaseURL("https://media.example.com"))
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		url, err := storage.Put(ctx, "../../etc/passwd", bytes.NewReader([]byte("x")), PutOptions{})
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if url != "https://media.example.com/assets/etc/passwd" {
			t.Errorf("url = %s", url)
		}
		if _, err := os.Stat(filepath.Join(tempDir, AssetsDir, "etc", "passwd")); err != nil {
			t.Errorf("expected file inside assets dir: %v", err)
		}
	})

	t.Run("requires a public base url", func(t *testing.T) {
		storage := setupTestStorage(t)

		_, err := storage.Put(ctx, "k", bytes.NewReader([]byte("x")), PutOptions{})
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	})
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	tempDir := filepath.Join(os.TempDir(), "mediagen_test_"+randomSuffix())
	t.Cleanup(func() { _ = os.RemoveAll(tempDir) })

	storage, err := NewLocalStorage(tempDir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}

func randomSuffix() string {
	return time.Now().Format("20060102150405.000000000")
}
