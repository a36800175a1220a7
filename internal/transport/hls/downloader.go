package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vdengine/internal/model"
	"vdengine/internal/network"
	"vdengine/internal/ratelimit"
)

const (
	DefaultMaxConcurrentSegments = 8
	DefaultRetryAttempts         = 3
	DefaultRetryBackoff          = time.Second
)

// Config tunes a Downloader's segment concurrency and retry behavior.
type Config struct {
	MaxConcurrentSegments int
	RetryAttempts         int
	RetryBackoff          time.Duration
	KeepTempFiles         bool
	UserAgent             string
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentSegments: DefaultMaxConcurrentSegments,
		RetryAttempts:         DefaultRetryAttempts,
		RetryBackoff:          DefaultRetryBackoff,
		UserAgent:             "VideoDownloaderPro/1.0.0",
	}
}

// Downloader implements download_m3u8: playlist fetch/parse, key fetch,
// bounded-concurrency segment download with AES-128-CBC decryption, ordered
// merge into the output file.
type Downloader struct {
	client    *http.Client
	bandwidth *network.BandwidthController
	cfg       Config
}

func NewDownloader(client *http.Client, bandwidth *network.BandwidthController, cfg Config) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Downloader{client: client, bandwidth: bandwidth, cfg: cfg}
}

// Flags are polled before each segment's semaphore acquisition and before
// each fetch attempt; a body read already in progress is aborted through
// ctx instead.
type Flags struct {
	Cancelled func() bool
}

// DownloadM3U8 fetches playlistURL, resolves a master playlist to its
// highest-bandwidth variant if needed, downloads every segment into
// tempDir, decrypts as required, and merges the result into outputPath.
func (d *Downloader) DownloadM3U8(ctx context.Context, taskID, playlistURL, outputPath, tempDir string, progressFn func(model.ProgressDelta), flags Flags) (*model.M3U8Playlist, error) {
	mediaURL, err := d.resolveMediaPlaylistURL(ctx, playlistURL)
	if err != nil {
		return nil, model.New(model.ErrConfiguration, err)
	}

	body, err := d.fetch(ctx, mediaURL)
	if err != nil {
		return nil, model.ClassifyNetworkError(err)
	}

	playlist, err := ParsePlaylist(body, mediaURL)
	if err != nil {
		return nil, model.New(model.ErrDataIntegrity, err)
	}
	if len(playlist.Segments) == 0 {
		return nil, model.Newf(model.ErrDataIntegrity, "playlist has no segments")
	}

	if err := d.hydrateKeys(ctx, playlist); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, model.New(model.ErrResourceExhaust, err)
	}

	total := playlist.TotalByteRangeSize()
	totalKnown := total > 0

	if err := d.fetchAllSegments(ctx, taskID, playlist, tempDir, total, totalKnown, progressFn, flags); err != nil {
		return playlist, err
	}

	if err := d.merge(playlist, tempDir, outputPath); err != nil {
		return playlist, model.New(model.ErrDataIntegrity, err)
	}

	if !d.cfg.KeepTempFiles {
		_ = os.RemoveAll(tempDir)
	}

	return playlist, nil
}

// resolveMediaPlaylistURL fetches playlistURL and, if it is a master
// playlist (contains #EXT-X-STREAM-INF), returns the highest-BANDWIDTH
// variant URL instead. Media playlists are returned unchanged.
func (d *Downloader) resolveMediaPlaylistURL(ctx context.Context, playlistURL string) (string, error) {
	body, err := d.fetch(ctx, playlistURL)
	if err != nil {
		return "", err
	}
	if !strings.Contains(string(body), "#EXT-X-STREAM-INF") {
		return playlistURL, nil
	}

	base, err := baseURL(playlistURL)
	if err != nil {
		return "", err
	}

	type variant struct {
		bandwidth int
		url       string
	}
	var variants []variant
	lines := strings.Split(string(body), "\n")
	var pendingBandwidth int
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			attrs := parseAttrList(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			pendingBandwidth, _ = strconv.Atoi(attrs["BANDWIDTH"])
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		resolved, err := resolveURL(base, line)
		if err != nil {
			continue
		}
		variants = append(variants, variant{bandwidth: pendingBandwidth, url: resolved})
		pendingBandwidth = 0
	}
	if len(variants) == 0 {
		return playlistURL, nil
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].bandwidth > variants[j].bandwidth })
	return variants[0].url, nil
}

func (d *Downloader) hydrateKeys(ctx context.Context, playlist *model.M3U8Playlist) error {
	fetched := make(map[string][]byte)
	for i := range playlist.Segments {
		enc := playlist.Segments[i].Encryption
		if enc == nil || enc.Method == model.EncryptionNone || enc.Method == "" {
			continue
		}
		if enc.Method != model.EncryptionAES128 {
			return model.Newf(model.ErrConfiguration, "unsupported encryption method %q", enc.Method)
		}
		if len(enc.KeyBytes) == 16 {
			continue
		}
		if key, ok := fetched[enc.KeyURL]; ok {
			enc.KeyBytes = key
			continue
		}
		key, err := d.fetch(ctx, enc.KeyURL)
		if err != nil {
			return model.ClassifyNetworkError(err)
		}
		if len(key) != 16 {
			return model.Newf(model.ErrDataIntegrity, "AES-128 key from %s is %d bytes, want 16", enc.KeyURL, len(key))
		}
		fetched[enc.KeyURL] = key
		enc.KeyBytes = key
	}
	return nil
}

func (d *Downloader) fetchAllSegments(ctx context.Context, taskID string, playlist *model.M3U8Playlist, tempDir string, total int64, totalKnown bool, progressFn func(model.ProgressDelta), flags Flags) error {
	sem := make(chan struct{}, d.cfg.MaxConcurrentSegments)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	var completed int64
	totalSegments := len(playlist.Segments)
	host := hostOfURL(playlist.PlaylistURL)
	limiter := ratelimit.GetLimiter(host)

	for i := range playlist.Segments {
		seg := &playlist.Segments[i]

		if flags.Cancelled != nil && flags.Cancelled() {
			return model.New(model.ErrCancelled, fmt.Errorf("download cancelled"))
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return model.New(model.ErrCancelled, ctx.Err())
		}

		wg.Add(1)
		go func(seg *model.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			limiter.WaitIfBlocked()
			n, err := d.fetchSegment(ctx, seg, tempDir, flags)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			limiter.ReportSuccess()
			done := int(atomic.AddInt64(&completed, 1))

			if progressFn != nil {
				// Segment-count fields ride along unconditionally; a
				// byte-total-known playlist just leaves them unused by the
				// percent computation downstream.
				progressFn(model.ProgressDelta{
					TaskID:        taskID,
					Downloaded:    n,
					Total:         total,
					TotalKnown:    totalKnown,
					SegmentsDone:  done,
					SegmentsTotal: totalSegments,
				})
			}
		}(seg)
	}

	wg.Wait()
	return firstErr
}

func (d *Downloader) fetchSegment(ctx context.Context, seg *model.Segment, tempDir string, flags Flags) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(d.cfg.RetryBackoff)
		}
		if flags.Cancelled != nil && flags.Cancelled() {
			return 0, model.New(model.ErrCancelled, fmt.Errorf("download cancelled"))
		}

		n, err := d.attemptSegment(ctx, seg, tempDir)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if !model.IsRetryable(err) {
			return 0, err
		}
	}
	return 0, lastErr
}

func (d *Downloader) attemptSegment(ctx context.Context, seg *model.Segment, tempDir string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seg.URL, nil)
	if err != nil {
		return 0, model.New(model.ErrConfiguration, err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	if seg.HasByteRange {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", seg.RangeStart, seg.RangeEnd))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, model.ClassifyNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, model.ClassifyHTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, model.ClassifyNetworkError(err)
	}

	if seg.Encryption != nil && seg.Encryption.Method == model.EncryptionAES128 {
		iv, err := DeriveIV(seg.Encryption, seg.Index)
		if err != nil {
			return 0, model.New(model.ErrDataIntegrity, err)
		}
		plain, err := decryptAES128CBC(body, seg.Encryption.KeyBytes, iv)
		if err != nil {
			return 0, model.New(model.ErrDataIntegrity, fmt.Errorf("decrypt segment %d: %w", seg.Index, err))
		}
		body = plain
	}

	d.bandwidth.Throttle(int64(len(body)))

	path := segmentPath(tempDir, seg.Index)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return 0, model.New(model.ErrResourceExhaust, err)
	}
	seg.LocalTempPath = path

	return int64(len(body)), nil
}

func (d *Downloader) merge(playlist *model.M3U8Playlist, tempDir, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	sorted := append([]model.Segment(nil), playlist.Segments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for _, seg := range sorted {
		path := seg.LocalTempPath
		if path == "" {
			path = segmentPath(tempDir, seg.Index)
		}
		in, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open segment %d: %w", seg.Index, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("copy segment %d: %w", seg.Index, err)
		}
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

func segmentPath(tempDir string, index int) string {
	return filepath.Join(tempDir, fmt.Sprintf("segment_%06d.ts", index))
}

func hostOfURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Host
	}
	return rawURL
}
