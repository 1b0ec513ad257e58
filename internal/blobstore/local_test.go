package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal_Upload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://127.0.0.1:8787/media/", testLogger())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	asset, err := store.Upload(context.Background(), strings.NewReader("clip"), UploadOptions{ContentType: "video/webm"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if !strings.HasPrefix(asset.URL, "http://127.0.0.1:8787/media/videos/") {
		t.Errorf("URL = %q", asset.URL)
	}
	path, err := store.Path(asset.ID)
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(b) != "clip" {
		t.Errorf("stored = %q", b)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "videos", "*.part"))
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestLocal_Upload_Cancelled(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "http://x/media", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Upload(ctx, strings.NewReader("clip"), UploadOptions{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestLocal_Path_StaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://x/media", testLogger())
	if err != nil {
		t.Fatal(err)
	}

	path, err := store.Path("../../etc/passwd")
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("path %q escapes %q", path, dir)
	}

	if _, err := store.Path(""); err == nil {
		t.Error("expected error for empty key")
	}
}
