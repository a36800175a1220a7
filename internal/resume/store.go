// Package resume persists ResumeInfo and chunk payloads to disk and caches
// ServerCapabilities in memory.
package resume

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vdengine/internal/model"
)

// Store persists ResumeInfo as JSON to <dir>/<task-id>.json and chunk
// payloads as raw bytes to <dir>/<task-id>.chunk.<index>. ServerCapabilities
// live only in memory, keyed by host, with a 24h TTL.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*model.ResumeInfo

	capMu sync.RWMutex
	caps  map[string]model.ServerCapabilities

	httpClient *http.Client
	userAgent  string
}

func NewStore(dir string, httpClient *http.Client, userAgent string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{
		dir:        dir,
		cache:      make(map[string]*model.ResumeInfo),
		caps:       make(map[string]model.ServerCapabilities),
		httpClient: httpClient,
		userAgent:  userAgent,
	}, nil
}

func (s *Store) jsonPath(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// ChunkPath returns the temp file path for chunk index of taskID.
func (s *Store) ChunkPath(taskID string, index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.chunk.%d", taskID, index))
}

// Load returns the ResumeInfo for taskID: cache first, then disk. A corrupt
// JSON file is treated as missing rather than returned as an error.
func (s *Store) Load(taskID string) (*model.ResumeInfo, bool) {
	s.mu.RLock()
	if info, ok := s.cache[taskID]; ok {
		s.mu.RUnlock()
		return info, true
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.jsonPath(taskID))
	if err != nil {
		return nil, false
	}
	var info model.ResumeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, false
	}

	s.mu.Lock()
	s.cache[taskID] = &info
	s.mu.Unlock()
	return &info, true
}

// Save serializes info to a temp file then atomically renames it over the
// JSON path, and updates the cache. I/O errors are surfaced to the caller
// to log; they never abort an in-progress download, since the next Save
// attempt will simply retry.
func (s *Store) Save(info *model.ResumeInfo) error {
	info.ModifiedAt = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal resume info: %w", err)
	}

	final := s.jsonPath(info.TaskID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write resume temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename resume temp file: %w", err)
	}

	s.mu.Lock()
	s.cache[info.TaskID] = info
	s.mu.Unlock()
	return nil
}

// Cleanup removes the JSON file, every chunk temp file, and the cache entry
// for taskID. numChunks bounds how many chunk.<index> files are attempted.
func (s *Store) Cleanup(taskID string, numChunks int) {
	s.mu.Lock()
	delete(s.cache, taskID)
	s.mu.Unlock()

	_ = os.Remove(s.jsonPath(taskID))
	for i := 0; i < numChunks; i++ {
		_ = os.Remove(s.ChunkPath(taskID, i))
	}
}

// GetOrDetectCapabilities returns cached ServerCapabilities for rawURL's
// host, refreshing via HEAD on a miss or stale entry.
func (s *Store) GetOrDetectCapabilities(rawURL string) (model.ServerCapabilities, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.ServerCapabilities{}, fmt.Errorf("parse url: %w", err)
	}
	host := u.Host

	s.capMu.RLock()
	cached, ok := s.caps[host]
	s.capMu.RUnlock()
	if ok && !cached.Stale(time.Now()) {
		return cached, nil
	}

	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return model.ServerCapabilities{}, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.ServerCapabilities{}, err
	}
	defer resp.Body.Close()

	caps := model.ServerCapabilities{
		SupportsRanges:       resp.Header.Get("Accept-Ranges") == "bytes",
		MaxConcurrentSuggest: 8,
		ServerID:             resp.Header.Get("Server"),
		DetectedAt:           time.Now(),
	}
	caps.SupportsConcurrent = caps.SupportsRanges

	s.capMu.Lock()
	s.caps[host] = caps
	s.capMu.Unlock()

	return caps, nil
}
