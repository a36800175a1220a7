// Package filesystem checks available disk space and pre-allocates output
// files before a download writes to them.
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// spaceBuffer is held back beyond the file's own size so a download never
// drives the volume to zero free space.
const spaceBuffer = 100 * 1024 * 1024

// Allocator pre-allocates destination files and guards against starting a
// download the disk can't actually hold.
type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// CheckDiskSpace reports an error if the volume backing path has less than
// requiredBytes plus a safety buffer free.
func (a *Allocator) CheckDiskSpace(path string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}
	dir := filepath.Dir(path)
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("checking disk space: %w", err)
	}
	if int64(usage.Free) < requiredBytes+spaceBuffer {
		return fmt.Errorf("disk full: need %d bytes, %d free", requiredBytes, usage.Free)
	}
	return nil
}

// Allocate creates path (and its parent directories) and truncates it to
// size. Truncate sets the file's length only; it does not guarantee that
// disk blocks are reserved for later writes.
func (a *Allocator) Allocate(path string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening file for allocation: %w", err)
	}
	defer f.Close()
	if size <= 0 {
		return nil
	}
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("pre-allocating space: %w", err)
	}
	return nil
}
