package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllocateCreatesFileOfGivenSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.bin")

	a := NewAllocator()
	if err := a.Allocate(path, 4096); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != 4096 {
		t.Fatalf("expected size 4096, got %d", fi.Size())
	}
}

func TestCheckDiskSpaceAllowsZeroRequirement(t *testing.T) {
	a := NewAllocator()
	if err := a.CheckDiskSpace(t.TempDir(), 0); err != nil {
		t.Fatalf("expected no error for zero requirement, got %v", err)
	}
}

func TestCheckDiskSpaceRejectsUnreasonableSize(t *testing.T) {
	a := NewAllocator()
	// A size far beyond any real disk should fail the space check.
	const absurd = int64(1) << 62
	if err := a.CheckDiskSpace(t.TempDir(), absurd); err == nil {
		t.Fatal("expected an error for an absurdly large requirement")
	}
}
