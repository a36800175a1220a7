// Package chunked implements the resumable, range-based parallel
// downloader used for large files.
package chunked

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"vdengine/internal/filesystem"
	"vdengine/internal/model"
	"vdengine/internal/network"
	"vdengine/internal/ratelimit"
	"vdengine/internal/resume"
)

const (
	DefaultChunkSize           = 4 * 1024 * 1024  // 4 MiB
	LargeFileThreshold         = 50 * 1024 * 1024 // 50 MiB
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 2 * time.Second
	DefaultMaxConcurrentChunks = 8
)

// Config tunes a Downloader's tiling, retry, and concurrency behavior.
type Config struct {
	ChunkSize           int64
	LargeFileThreshold  int64
	MaxConcurrentChunks int
	MaxRetries          int
	RetryDelay          time.Duration
	UserAgent           string
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:           DefaultChunkSize,
		LargeFileThreshold:  LargeFileThreshold,
		MaxConcurrentChunks: DefaultMaxConcurrentChunks,
		MaxRetries:          DefaultMaxRetries,
		RetryDelay:          DefaultRetryDelay,
		UserAgent:           "VideoDownloaderPro/1.0.0",
	}
}

// Downloader implements download_with_resume: range-based parallel segment
// fetch with per-chunk temp files, congestion-advised concurrency, and
// process-wide bandwidth throttling.
type Downloader struct {
	client     *http.Client
	store      *resume.Store
	bandwidth  *network.BandwidthController
	congestion *network.CongestionController
	allocator  *filesystem.Allocator
	cfg        Config
}

func NewDownloader(client *http.Client, store *resume.Store, bandwidth *network.BandwidthController, congestion *network.CongestionController, cfg Config) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Downloader{client: client, store: store, bandwidth: bandwidth, congestion: congestion, allocator: filesystem.NewAllocator(), cfg: cfg}
}

// Flags are polled between chunks and at the start of every iteration.
type Flags struct {
	Cancelled func() bool
	Paused    func() bool
}

// DownloadWithResume runs the full algorithm described by §4.3: load or
// build ResumeInfo, validate the existing file, tile missing chunks, fetch
// them under a congestion/ServerCapabilities-bounded worker pool, merge,
// and persist final state.
func (d *Downloader) DownloadWithResume(ctx context.Context, taskID, rawURL, filePath string, totalHint int64, progressFn func(model.ProgressDelta), flags Flags) (*model.ResumeInfo, error) {
	info, existed := d.store.Load(taskID)
	if !existed {
		info = &model.ResumeInfo{TaskID: taskID, FilePath: filePath, URL: rawURL, TotalSize: totalHint, CreatedAt: time.Now()}
	}

	if info.TotalSize == 0 {
		size, err := d.headContentLength(rawURL)
		if err != nil {
			return info, model.New(model.ErrConfiguration, fmt.Errorf("cannot resume without size: %w", err))
		}
		if size <= 0 {
			return info, model.Newf(model.ErrConfiguration, "cannot resume without size")
		}
		info.TotalSize = size
	}

	caps, err := d.store.GetOrDetectCapabilities(rawURL)
	if err == nil {
		info.Capabilities = caps
	}

	if fi, statErr := os.Stat(filePath); statErr == nil && fi.Size() == info.TotalSize {
		for i := range info.Chunks {
			info.Chunks[i].Status = model.ChunkCompleted
			info.Chunks[i].Downloaded = info.Chunks[i].Size()
		}
		if len(info.Chunks) == 0 {
			info.Chunks = []model.ChunkInfo{{Index: 0, Start: 0, End: info.TotalSize - 1, Downloaded: info.TotalSize, Status: model.ChunkCompleted}}
		}
		_ = d.store.Save(info)
		return info, nil
	}

	if len(info.Chunks) == 0 {
		if err := d.allocator.CheckDiskSpace(filePath, info.TotalSize); err != nil {
			return info, model.New(model.ErrResourceExhaust, err)
		}
		info.Chunks = buildChunks(info.TotalSize, info.Capabilities.SupportsRanges, d.cfg.ChunkSize, d.cfg.LargeFileThreshold)
	}

	host := hostOf(rawURL)
	limiter := ratelimit.GetLimiter(host)

	pending := pendingChunks(info.Chunks)
	if len(pending) > 0 {
		maxWorkers := len(pending)
		if info.Capabilities.MaxConcurrentSuggest > 0 && info.Capabilities.MaxConcurrentSuggest < maxWorkers {
			maxWorkers = info.Capabilities.MaxConcurrentSuggest
		}
		if d.cfg.MaxConcurrentChunks > 0 && d.cfg.MaxConcurrentChunks < maxWorkers {
			maxWorkers = d.cfg.MaxConcurrentChunks
		}
		// The congestion controller's AIMD advice is a secondary cap: it
		// only tightens maxWorkers (past errors on this host), never loosens
		// it past what the server and config already allow.
		if ideal := d.congestion.IdealConcurrency(hostOf(rawURL)); ideal > 0 && ideal < maxWorkers {
			maxWorkers = ideal
		}
		if maxWorkers < 1 {
			maxWorkers = 1
		}

		if err := d.runWorkers(ctx, taskID, rawURL, host, limiter, info, pending, maxWorkers, progressFn, flags); err != nil {
			_ = d.store.Save(info)
			return info, err
		}
	}

	if !info.AllComplete() {
		_ = d.store.Save(info)
		return info, model.Newf(model.ErrDataIntegrity, "chunked download finished without completing every chunk")
	}

	if err := d.merge(info); err != nil {
		return info, model.New(model.ErrDataIntegrity, err)
	}

	info.ModifiedAt = time.Now()
	_ = d.store.Save(info)
	return info, nil
}

func (d *Downloader) runWorkers(ctx context.Context, taskID, rawURL, host string, limiter *ratelimit.Limiter, info *model.ResumeInfo, pending []int, workers int, progressFn func(model.ProgressDelta), flags Flags) error {
	jobs := make(chan int, len(pending))
	for _, idx := range pending {
		jobs <- idx
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if flags.Cancelled != nil && flags.Cancelled() {
					mu.Lock()
					if firstErr == nil {
						firstErr = model.New(model.ErrCancelled, fmt.Errorf("download cancelled"))
					}
					mu.Unlock()
					return
				}
				for flags.Paused != nil && flags.Paused() {
					if flags.Cancelled != nil && flags.Cancelled() {
						return
					}
					time.Sleep(200 * time.Millisecond)
				}

				start := time.Now()
				err := d.downloadChunk(ctx, taskID, rawURL, info, idx, limiter, progressFn, flags)
				d.congestion.RecordOutcome(host, time.Since(start), err)

				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (d *Downloader) downloadChunk(ctx context.Context, taskID, rawURL string, info *model.ResumeInfo, idx int, limiter *ratelimit.Limiter, progressFn func(model.ProgressDelta), flags Flags) error {
	chunk := &info.Chunks[idx]
	maxRetries := d.cfg.MaxRetries

	for attempt := 0; ; attempt++ {
		limiter.WaitIfBlocked()

		err := d.attemptChunk(ctx, taskID, rawURL, info, chunk, limiter, progressFn, flags)
		if err == nil {
			chunk.Status = model.ChunkCompleted
			chunk.UpdatedAt = time.Now()
			return nil
		}
		if cancelled, ok := err.(*model.Error); ok && cancelled.Kind == model.ErrCancelled {
			return err
		}

		chunk.Status = model.ChunkFailed
		chunk.Retries++
		if !model.IsRetryable(err) || attempt >= maxRetries {
			return err
		}
		time.Sleep(d.cfg.RetryDelay)
	}
}

func (d *Downloader) attemptChunk(ctx context.Context, taskID, rawURL string, info *model.ResumeInfo, chunk *model.ChunkInfo, limiter *ratelimit.Limiter, progressFn func(model.ProgressDelta), flags Flags) error {
	single := len(info.Chunks) == 1
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.New(model.ErrConfiguration, err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}

	rangeStart := chunk.Start + chunk.Downloaded
	if !(single && chunk.Downloaded == 0) {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rangeStart, chunk.End))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return model.ClassifyNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		limiter.Handle429(resp)
		return model.ClassifyHTTPStatus(resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return model.ClassifyHTTPStatus(resp.StatusCode)
	}

	// Server ignored our Range header (edge case): restart this chunk from 0.
	// A no-op when chunk.Downloaded is already 0, so this applies uniformly
	// whether or not the request actually sent a Range header.
	writeOffset := chunk.Downloaded
	if resp.StatusCode == http.StatusOK {
		writeOffset = 0
		chunk.Downloaded = 0
	}

	path := d.store.ChunkPath(taskID, chunk.Index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return model.New(model.ErrResourceExhaust, err)
	}
	defer f.Close()
	if _, err := f.Seek(writeOffset, io.SeekStart); err != nil {
		return model.New(model.ErrResourceExhaust, err)
	}

	buf := make([]byte, 256*1024)
	for {
		if flags.Cancelled != nil && flags.Cancelled() {
			return model.New(model.ErrCancelled, fmt.Errorf("download cancelled"))
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return model.New(model.ErrResourceExhaust, writeErr)
			}
			chunk.Downloaded += int64(n)
			chunk.UpdatedAt = time.Now()
			d.bandwidth.Throttle(int64(n))
			if progressFn != nil {
				progressFn(model.ProgressDelta{TaskID: taskID, Downloaded: int64(n), Total: info.TotalSize, TotalKnown: info.TotalSize > 0})
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return model.ClassifyNetworkError(readErr)
		}
	}

	if chunk.Downloaded > chunk.Size() {
		return model.Newf(model.ErrDataIntegrity, "chunk %d overran its byte range", chunk.Index)
	}
	if chunk.Downloaded < chunk.Size() {
		return model.Newf(model.ErrTransientNetwork, "chunk %d short read: got %d of %d bytes", chunk.Index, chunk.Downloaded, chunk.Size())
	}
	return nil
}

// merge concatenates chunk temp files in index order into the final file
// (or, for a single chunk, renames it directly) and removes the temps.
func (d *Downloader) merge(info *model.ResumeInfo) error {
	if len(info.Chunks) == 1 {
		return os.Rename(d.store.ChunkPath(info.TaskID, 0), info.FilePath)
	}

	out, err := os.Create(info.FilePath)
	if err != nil {
		return err
	}
	defer out.Close()

	sorted := append([]model.ChunkInfo(nil), info.Chunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for _, c := range sorted {
		path := d.store.ChunkPath(info.TaskID, c.Index)
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return err
		}
	}

	for _, c := range sorted {
		_ = os.Remove(d.store.ChunkPath(info.TaskID, c.Index))
	}
	return nil
}

func (d *Downloader) headContentLength(rawURL string) (int64, error) {
	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.ContentLength, nil
}

func buildChunks(totalSize int64, supportsRanges bool, chunkSize, largeFileThreshold int64) []model.ChunkInfo {
	if !supportsRanges || totalSize < largeFileThreshold {
		return []model.ChunkInfo{{Index: 0, Start: 0, End: totalSize - 1, Status: model.ChunkPending}}
	}

	var chunks []model.ChunkInfo
	var idx int
	for start := int64(0); start < totalSize; start += chunkSize {
		end := start + chunkSize - 1
		if end >= totalSize {
			end = totalSize - 1
		}
		chunks = append(chunks, model.ChunkInfo{Index: idx, Start: start, End: end, Status: model.ChunkPending})
		idx++
	}
	return chunks
}

func pendingChunks(chunks []model.ChunkInfo) []int {
	var out []int
	for i, c := range chunks {
		if c.Status != model.ChunkCompleted {
			out = append(out, i)
		}
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
