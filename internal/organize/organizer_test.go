package organize

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOrganizeMovesFileIntoCategoryByExtension(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pic.jpg")
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	o := NewOrganizer(true)
	newPath, err := o.Organize(src)
	if err != nil {
		t.Fatalf("Organize: %v", err)
	}
	want := filepath.Join(dir, "Images", "pic.jpg")
	if newPath != want {
		t.Fatalf("got %s, want %s", newPath, want)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected file at new path: %v", err)
	}
}

func TestOrganizeResolvesCollision(t *testing.T) {
	dir := t.TempDir()
	imgDir := filepath.Join(dir, "Images")
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(imgDir, "pic.jpg"), []byte("existing"), 0o644); err != nil {
		t.Fatalf("WriteFile existing: %v", err)
	}
	src := filepath.Join(dir, "pic.jpg")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFile src: %v", err)
	}

	o := NewOrganizer(true)
	newPath, err := o.Organize(src)
	if err != nil {
		t.Fatalf("Organize: %v", err)
	}
	want := filepath.Join(imgDir, "pic (1).jpg")
	if newPath != want {
		t.Fatalf("got %s, want %s", newPath, want)
	}
}

func TestOrganizeDisabledLeavesFileInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pic.jpg")
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	o := NewOrganizer(false)
	newPath, err := o.Organize(src)
	if err != nil {
		t.Fatalf("Organize: %v", err)
	}
	if newPath != src {
		t.Fatalf("expected disabled organizer to leave file at %s, got %s", src, newPath)
	}
}

func TestCategoryForFallsBackToMagicBytes(t *testing.T) {
	// PNG magic header, no extension on the filename.
	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	if got := CategoryFor("noext", pngHeader); got != "Images" {
		t.Fatalf("CategoryFor magic bytes = %s, want Images", got)
	}
}
