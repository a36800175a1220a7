package resume

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vdengine/internal/model"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, "vdengine-test/1.0")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	info := &model.ResumeInfo{
		TaskID:    "task-1",
		FilePath:  "/tmp/out.bin",
		URL:       "https://example.com/file.bin",
		TotalSize: 100,
		Chunks: []model.ChunkInfo{
			{Index: 0, Start: 0, End: 49, Downloaded: 50, Status: model.ChunkCompleted},
			{Index: 1, Start: 50, End: 99, Downloaded: 10, Status: model.ChunkDownloading},
		},
		CreatedAt: time.Now(),
	}

	if err := store.Save(info); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Force a disk read by dropping the cache entry.
	store.mu.Lock()
	delete(store.cache, info.TaskID)
	store.mu.Unlock()

	loaded, ok := store.Load(info.TaskID)
	if !ok {
		t.Fatal("expected Load to find saved resume info")
	}
	if loaded.TaskID != info.TaskID || loaded.TotalSize != info.TotalSize {
		t.Fatalf("round-trip mismatch: got %+v", loaded)
	}
	if loaded.SumDownloaded() != 60 {
		t.Fatalf("expected derived sum 60, got %d", loaded.SumDownloaded())
	}
}

func TestLoadMissingReturnsFalse(t *testing.T) {
	store, _ := NewStore(t.TempDir(), nil, "")
	if _, ok := store.Load("nope"); ok {
		t.Fatal("expected Load of unknown task to report false")
	}
}

func TestCleanupRemovesFiles(t *testing.T) {
	store, _ := NewStore(t.TempDir(), nil, "")
	info := &model.ResumeInfo{TaskID: "task-2", TotalSize: 10, Chunks: []model.ChunkInfo{{Index: 0, Start: 0, End: 9}}}
	if err := store.Save(info); err != nil {
		t.Fatalf("Save: %v", err)
	}

	store.Cleanup("task-2", 1)

	if _, ok := store.Load("task-2"); ok {
		t.Fatal("expected resume info to be gone after cleanup")
	}
}

func TestGetOrDetectCapabilitiesCachesByHost(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Server", "test-server")
	}))
	defer srv.Close()

	store, _ := NewStore(t.TempDir(), srv.Client(), "vdengine-test/1.0")

	caps, err := store.GetOrDetectCapabilities(srv.URL + "/file.bin")
	if err != nil {
		t.Fatalf("GetOrDetectCapabilities: %v", err)
	}
	if !caps.SupportsRanges {
		t.Fatal("expected SupportsRanges from Accept-Ranges header")
	}

	if _, err := store.GetOrDetectCapabilities(srv.URL + "/other.bin"); err != nil {
		t.Fatalf("GetOrDetectCapabilities (cached host): %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected capabilities to be cached per host, got %d HEAD requests", hits)
	}
}
