package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vdengine/internal/model"
	"vdengine/internal/network"
	"vdengine/internal/resume"
	"vdengine/internal/transport/chunked"
	"vdengine/internal/transport/hls"
)

func newTestEngine(t *testing.T) *HttpEngine {
	t.Helper()
	store, err := resume.NewStore(t.TempDir(), nil, "vdengine-test/1.0")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewHttpEngine(Options{
		Store:         store,
		Bandwidth:     network.NewBandwidthController(),
		Congestion:    network.NewCongestionController(1, 8),
		UserAgent:     "vdengine-test/1.0",
		ChunkedConfig: chunked.DefaultConfig(),
		HlsConfig:     hls.DefaultConfig(),
		TempDir:       t.TempDir(),
	})
}

func TestDownloadPlainSmallFile(t *testing.T) {
	payload := []byte("small plain file contents")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "out.bin")
	task := &model.Task{ID: "t1", URL: srv.URL, FilePath: dest}

	result, err := e.Download(context.Background(), task, true)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result.Transport != model.TransportPlain {
		t.Fatalf("expected plain transport for a small file, got %s", result.Transport)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("content mismatch: got %q want %q", got, payload)
	}
}

func TestDownloadEarlyExitsWhenResumeDisabledAndFileExists(t *testing.T) {
	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte("already here"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	task := &model.Task{ID: "t2", URL: "https://example.com/never-hit", FilePath: dest}
	result, err := e.Download(context.Background(), task, false)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !result.AlreadyComplete {
		t.Fatal("expected AlreadyComplete when resume is disabled and file exists")
	}
}

func TestIsM3U8URLHeuristics(t *testing.T) {
	cases := map[string]bool{
		"https://cdn.example.com/video/stream.m3u8":   true,
		"https://cdn.example.com/M3U8/index":          true,
		"https://cdn.example.com/hls/playlist.json":   true,
		"https://cdn.example.com/video.mp4":           false,
		"https://cdn.example.com/archive.zip":         false,
	}
	for url, want := range cases {
		if got := IsM3U8URL(url); got != want {
			t.Errorf("IsM3U8URL(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestCancelAbortsActiveDownload(t *testing.T) {
	blockCh := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("start-"))
		w.(http.Flusher).Flush()
		<-blockCh
		w.Write([]byte("end"))
	}))
	defer srv.Close()

	e := newTestEngine(t)
	dest := filepath.Join(t.TempDir(), "out.bin")
	task := &model.Task{ID: "t3", URL: srv.URL, FilePath: dest}

	done := make(chan error, 1)
	go func() {
		_, err := e.Download(context.Background(), task, true)
		done <- err
	}()

	// Give the download a moment to register itself as active, then cancel.
	var cancelled bool
	for i := 0; i < 200 && !cancelled; i++ {
		cancelled = e.Cancel("t3")
		if !cancelled {
			time.Sleep(5 * time.Millisecond)
		}
	}
	close(blockCh)

	err := <-done
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if model.KindOf(err) != model.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", model.KindOf(err))
	}
}
