package filename

import (
	"net/http"
	"testing"
)

func TestFromResponseReadsContentDisposition(t *testing.T) {
	resp := &http.Response{Header: http.Header{
		"Content-Disposition": {`attachment; filename="report (final).pdf"`},
	}}
	name, ok := FromResponse(resp)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if name != "report (final).pdf" {
		t.Fatalf("got %q", name)
	}
}

func TestFromResponseMissingHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if _, ok := FromResponse(resp); ok {
		t.Fatal("expected ok=false without a Content-Disposition header")
	}
}

func TestSanitizeStripsDirectoryAndUnsafeChars(t *testing.T) {
	got := Sanitize("../../evil:name?.txt")
	if got != "evil_name_.txt" {
		t.Fatalf("got %q", got)
	}
}
