package resume

import (
	"encoding/json"
	"os"
	"time"

	"vdengine/internal/model"
)

// markerSuffix is appended to the final file path to get its side-file.
const markerSuffix = ".vdstate"

// MarkerPath returns the completion-marker side-file path for filePath.
func MarkerPath(filePath string) string {
	return filePath + markerSuffix
}

// WriteCompletionMarker stamps filePath as a successful download of url at
// the given size.
func WriteCompletionMarker(filePath, url string, fileSize int64) error {
	marker := model.CompletionMarker{
		URL:         url,
		FileSize:    fileSize,
		CompletedAt: time.Now(),
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return os.WriteFile(MarkerPath(filePath), data, 0o644)
}

// ReadCompletionMarker loads the marker for filePath, if any.
func ReadCompletionMarker(filePath string) (*model.CompletionMarker, bool) {
	data, err := os.ReadFile(MarkerPath(filePath))
	if err != nil {
		return nil, false
	}
	var marker model.CompletionMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, false
	}
	return &marker, true
}

// ValidateCompletionMarker reports whether filePath still matches its
// marker: the marker's URL matches url and the file's current length still
// equals the recorded size. The file is stat'ed on every call rather than
// trusting a cached size, so a marker left behind by a file the user has
// since modified is not trusted blindly.
func ValidateCompletionMarker(filePath, url string) (*model.CompletionMarker, bool) {
	marker, ok := ReadCompletionMarker(filePath)
	if !ok || marker.URL != url {
		return nil, false
	}
	fi, err := os.Stat(filePath)
	if err != nil || fi.Size() != marker.FileSize {
		return nil, false
	}
	return marker, true
}
