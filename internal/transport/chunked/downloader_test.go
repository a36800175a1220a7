package chunked

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vdengine/internal/network"
	"vdengine/internal/resume"
)

func newTestDownloader(t *testing.T) (*Downloader, *resume.Store) {
	t.Helper()
	store, err := resume.NewStore(t.TempDir(), nil, "vdengine-test/1.0")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := DefaultConfig()
	cfg.MaxConcurrentChunks = 4
	cfg.ChunkSize = 16
	cfg.LargeFileThreshold = 32
	d := NewDownloader(http.DefaultClient, store, network.NewBandwidthController(), network.NewCongestionController(1, 8), cfg)
	return d, store
}

func TestDownloadWithResumeSingleChunkSmallFile(t *testing.T) {
	payload := []byte("hello, small file!")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Write(payload)
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t)
	dest := filepath.Join(t.TempDir(), "out.bin")

	info, err := d.DownloadWithResume(context.Background(), "task-small", srv.URL, dest, int64(len(payload)), nil, Flags{})
	if err != nil {
		t.Fatalf("DownloadWithResume: %v", err)
	}
	if !info.AllComplete() {
		t.Fatal("expected all chunks complete")
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("content mismatch: got %q want %q", got, payload)
	}
}

func TestDownloadWithResumeMultiChunkConcatenatesInOrder(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789ABCDEF"), 4) // 64 bytes, >32 threshold
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Write(payload)
			return
		}
		var start, end int
		fmtSscanRange(rangeHeader, &start, &end)
		if end >= len(payload) {
			end = len(payload) - 1
		}
		w.Header().Set("Content-Range", "bytes */*")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[start : end+1])
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t)
	dest := filepath.Join(t.TempDir(), "out.bin")

	info, err := d.DownloadWithResume(context.Background(), "task-multi", srv.URL, dest, int64(len(payload)), nil, Flags{})
	if err != nil {
		t.Fatalf("DownloadWithResume: %v", err)
	}
	if len(info.Chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(info.Chunks))
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("merged content mismatch: got %q want %q", got, payload)
	}
}

func fmtSscanRange(header string, start, end *int) {
	var unit string
	// header looks like "bytes=10-25"
	for i := 0; i < len(header); i++ {
		if header[i] == '=' {
			unit = header[:i]
			header = header[i+1:]
			break
		}
	}
	_ = unit
	sep := -1
	for i := 0; i < len(header); i++ {
		if header[i] == '-' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return
	}
	*start = atoiSafe(header[:sep])
	*end = atoiSafe(header[sep+1:])
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
