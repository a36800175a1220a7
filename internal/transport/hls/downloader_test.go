package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vdengine/internal/network"
)

func TestDownloadM3U8PlaintextConcatenatesInOrder(t *testing.T) {
	segments := []string{"first-", "second-", "third!!"}

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		body := "#EXTM3U\n#EXT-X-VERSION:3\n"
		for i := range segments {
			body += fmt.Sprintf("#EXTINF:2.0,\nseg%d.ts\n", i)
		}
		body += "#EXT-X-ENDLIST\n"
		w.Write([]byte(body))
	})
	for i, s := range segments {
		s := s
		mux.HandleFunc(fmt.Sprintf("/seg%d.ts", i), func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(s))
		})
	}
	srv = httptest.NewServer(mux)
	defer srv.Close()

	d := NewDownloader(srv.Client(), network.NewBandwidthController(), DefaultConfig())
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.ts")
	tempDir := filepath.Join(dir, "segments")

	_, err := d.DownloadM3U8(context.Background(), "task-hls", srv.URL+"/stream.m3u8", outPath, tempDir, nil, Flags{})
	if err != nil {
		t.Fatalf("DownloadM3U8: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "first-second-third!!"
	if string(got) != want {
		t.Fatalf("merged content mismatch: got %q want %q", got, want)
	}

	if _, err := os.Stat(tempDir); !os.IsNotExist(err) {
		t.Fatal("expected temp dir to be removed after merge")
	}
}

func TestDownloadM3U8SelectsHighestBandwidthVariant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=500000\nlow.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2000000\nhigh.m3u8\n"))
	})
	mux.HandleFunc("/low.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:2.0,\nlow_seg.ts\n#EXT-X-ENDLIST\n"))
	})
	mux.HandleFunc("/high.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:2.0,\nhigh_seg.ts\n#EXT-X-ENDLIST\n"))
	})
	mux.HandleFunc("/high_seg.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("high-quality-bytes"))
	})
	mux.HandleFunc("/low_seg.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("low"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDownloader(srv.Client(), network.NewBandwidthController(), DefaultConfig())
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.ts")
	tempDir := filepath.Join(dir, "segments")

	_, err := d.DownloadM3U8(context.Background(), "task-hls-master", srv.URL+"/master.m3u8", outPath, tempDir, nil, Flags{})
	if err != nil {
		t.Fatalf("DownloadM3U8: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "high-quality-bytes" {
		t.Fatalf("expected the high-bandwidth variant's segment, got %q", got)
	}
}
