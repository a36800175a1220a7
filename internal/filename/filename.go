// Package filename derives a destination filename from HTTP response
// metadata when the URL path alone doesn't yield one.
package filename

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/vfaronov/httpheader"
)

// FromResponse extracts a filename from resp's Content-Disposition header,
// returning ok=false if none is present or it sanitizes to empty.
func FromResponse(resp *http.Response) (string, bool) {
	_, name, err := httpheader.ContentDisposition(resp.Header)
	if err != nil || name == "" {
		return "", false
	}
	name = Sanitize(name)
	if name == "" {
		return "", false
	}
	return name, true
}

// Sanitize strips directory components and replaces characters that are
// invalid in a filename on Windows or Unix.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer(
		"/", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return replacer.Replace(name)
}
