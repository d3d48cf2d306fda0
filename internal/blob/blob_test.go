package blob

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

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Screenshot 2026-01-02 at 10.00.png", "screenshot-2026-01-02-at-10.00.png"},
		{"voice memo (1).m4a", "voice-memo-1-.m4a"},
		{"../../etc/passwd", "passwd"},
		{"C:\\Users\\me\\Report.PDF", "report.pdf"},
		{"日本語.txt", "txt"},
		{"", "upload"},
		{"???", "upload"},
		{strings.Repeat("a", 150) + ".png", strings.Repeat("a", 100)},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestObjectPath(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	if got := ObjectPath(now, "My Photo.JPG"); got != "1767225600123-my-photo.jpg" {
		t.Errorf("ObjectPath = %q", got)
	}
}

func TestDetectContentType(t *testing.T) {
	if got := DetectContentType("audio/webm", "x.bin", nil); got != "audio/webm" {
		t.Errorf("declared type should win, got %q", got)
	}
	if got := DetectContentType("", "photo.png", nil); got != "image/png" {
		t.Errorf("extension lookup = %q", got)
	}
	if got := DetectContentType("application/octet-stream", "noext", []byte("%PDF-1.7\n")); got != "application/pdf" {
		t.Errorf("sniffed = %q", got)
	}
}

func TestLocalStore_PutOpenDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://localhost:8080/files/")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	obj, err := s.Put(ctx, "123-a.txt", "text/plain", bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.URL != "http://localhost:8080/files/123-a.txt" || obj.Size != 5 || obj.Path != "123-a.txt" {
		t.Errorf("unexpected object: %+v", obj)
	}

	f, err := s.Open("123-a.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	if err := s.Delete(ctx, "123-a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "123-a.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still present: %v", err)
	}
	if err := s.Delete(ctx, "123-a.txt"); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
	if _, err := s.Open("123-a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open missing = %v, want ErrNotFound", err)
	}
}

func TestLocalStore_StaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(filepath.Join(dir, "blobs"), "http://x")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(context.Background(), "../escape.txt", "", strings.NewReader("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err == nil {
		t.Fatal("object escaped the blob directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "blobs", "escape.txt")); err != nil {
		t.Fatalf("object not stored inside dir: %v", err)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "http://x")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "1-a.bin", "", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put err = %v, want context.Canceled", err)
	}
	if _, err := s.Open("1-a.bin"); !errors.Is(err, ErrNotFound) {
		t.Error("cancelled upload must not leave an object")
	}
}

func TestGCSStore_PublicURL(t *testing.T) {
	s := &GCSStore{bucket: "amigo-uploads"}
	if got := s.PublicURL("/1-a.png"); got != "https://storage.googleapis.com/amigo-uploads/1-a.png" {
		t.Errorf("PublicURL = %q", got)
	}
	s.cdnDomain = "cdn.example.com"
	if got := s.PublicURL("1-a.png"); got != "https://cdn.example.com/1-a.png" {
		t.Errorf("PublicURL with cdn = %q", got)
	}
}

func TestNewGCSStore_RequiresBucket(t *testing.T) {
	if _, err := NewGCSStore(context.Background(), "", ""); err == nil {
		t.Fatal("expected error without bucket")
	}
}
