// Package organize categorizes completed downloads into subfolders by
// content type and resolves filename collisions at the destination.
package organize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Organizer moves a completed download into a category subfolder of its
// current directory, sniffing magic bytes when the extension alone isn't
// enough to categorize it.
type Organizer struct {
	enabled bool
}

func NewOrganizer(enabled bool) *Organizer {
	return &Organizer{enabled: enabled}
}

// CategoryFor returns the destination subfolder name for filename, falling
// back to magic-byte sniffing via header (the first bytes of the file) when
// the extension is missing or unrecognized.
func CategoryFor(filename string, header []byte) string {
	if cat := categoryByExtension(filename); cat != "" {
		return cat
	}
	if len(header) > 0 {
		if kind, err := filetype.Match(header); err == nil && kind != filetype.Unknown {
			return categoryByExtension("x." + kind.Extension)
		}
	}
	return "Others"
}

func categoryByExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg":
		return "Images"
	case ".mp4", ".mkv", ".mov", ".avi", ".webm", ".wmv", ".ts", ".m3u8":
		return "Videos"
	case ".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a":
		return "Music"
	case ".zip", ".rar", ".7z", ".tar", ".gz", ".iso":
		return "Archives"
	case ".pdf", ".docx", ".xlsx", ".pptx", ".txt", ".md":
		return "Documents"
	case ".exe", ".msi", ".dmg", ".pkg", ".deb":
		return "Software"
	default:
		return ""
	}
}

// Organize moves filePath into a category subfolder of its parent
// directory, resolving any naming collision at the destination. Returns
// filePath unchanged if the organizer is disabled.
func (o *Organizer) Organize(filePath string) (string, error) {
	if !o.enabled {
		return filePath, nil
	}

	header := make([]byte, 512)
	f, err := os.Open(filePath)
	if err != nil {
		return filePath, fmt.Errorf("opening file to categorize: %w", err)
	}
	n, _ := f.Read(header)
	f.Close()
	header = header[:n]

	filename := filepath.Base(filePath)
	category := CategoryFor(filename, header)

	baseDir := filepath.Dir(filePath)
	targetDir := filepath.Join(baseDir, category)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return filePath, fmt.Errorf("creating category dir: %w", err)
	}

	targetPath := findAvailablePath(filepath.Join(targetDir, filename))
	if err := os.Rename(filePath, targetPath); err != nil {
		return filePath, fmt.Errorf("moving file into category dir: %w", err)
	}
	return targetPath, nil
}

// findAvailablePath appends " (n)" before the extension until it finds a
// path that doesn't already exist, matching Windows/macOS Explorer/Finder
// collision-naming conventions.
func findAvailablePath(basePath string) string {
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return basePath
	}

	ext := filepath.Ext(basePath)
	dir := filepath.Dir(basePath)
	nameOnly := strings.TrimSuffix(filepath.Base(basePath), ext)

	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", nameOnly, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", nameOnly, os.Getpid(), ext))
}
