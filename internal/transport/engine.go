// Package transport holds the public download entry point (HttpEngine),
// its strategy selector, and the plain-streaming path. ChunkedDownloader and
// HlsDownloader live in transport/chunked and transport/hls respectively;
// HttpEngine dispatches to whichever one the selector picks.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"vdengine/internal/filename"
	"vdengine/internal/model"
	"vdengine/internal/network"
	"vdengine/internal/resume"
	"vdengine/internal/transport/chunked"
	"vdengine/internal/transport/hls"
)

const DefaultMaxConcurrent = 10

// Options configures a new HttpEngine.
type Options struct {
	Client        *http.Client
	Store         *resume.Store
	Bandwidth     *network.BandwidthController
	Congestion    *network.CongestionController
	MaxConcurrent int
	UserAgent     string
	ChunkedConfig chunked.Config
	HlsConfig     hls.Config
	TempDir       string
}

// activeHandle is what Cancel/Pause act on for one in-flight download.
type activeHandle struct {
	cancel context.CancelFunc
}

// HttpEngine is the engine's public download API: admission control,
// per-task cancellation, the process-wide pause flag honored by the plain
// streaming path and between chunks by the chunked path, and dispatch to
// the sub-engine the selector picks.
type HttpEngine struct {
	client     *http.Client
	store      *resume.Store
	bandwidth  *network.BandwidthController
	congestion *network.CongestionController
	userAgent  string
	tempDir    string

	sem    chan struct{}
	active sync.Map // taskID -> *activeHandle

	isPaused atomic.Bool

	progress chan model.ProgressDelta

	chunked *chunked.Downloader
	hls     *hls.Downloader
}

func NewHttpEngine(opts Options) *HttpEngine {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	e := &HttpEngine{
		client:     client,
		store:      opts.Store,
		bandwidth:  opts.Bandwidth,
		congestion: opts.Congestion,
		userAgent:  opts.UserAgent,
		tempDir:    opts.TempDir,
		sem:        make(chan struct{}, maxConcurrent),
		progress:   make(chan model.ProgressDelta, 256),
	}
	e.chunked = chunked.NewDownloader(client, opts.Store, opts.Bandwidth, opts.Congestion, opts.ChunkedConfig)
	e.hls = hls.NewDownloader(client, opts.Bandwidth, opts.HlsConfig)
	return e
}

// Progress exposes the channel every sub-engine's byte-deltas are forwarded
// into; the orchestrator drains it.
func (e *HttpEngine) Progress() <-chan model.ProgressDelta {
	return e.progress
}

// SetPaused toggles the process-wide pause flag. The plain streaming write
// loop checks it on every write and the chunked downloader checks it
// between chunks; the HLS path does not check it.
func (e *HttpEngine) SetPaused(paused bool) {
	e.isPaused.Store(paused)
}

// Cancel aborts taskID's in-flight download, if any, returning whether one
// was found. Partial state (chunk temps, ResumeInfo) is left for resume.
func (e *HttpEngine) Cancel(taskID string) bool {
	if v, ok := e.active.Load(taskID); ok {
		v.(*activeHandle).cancel()
		return true
	}
	return false
}

// Result is the outcome of one Download call.
type Result struct {
	Transport       model.TransportHint
	AlreadyComplete bool
	FinalSize       int64
	// FilePath is set only when the plain-streaming path renamed the
	// destination after reading the server's Content-Disposition header;
	// callers that track task state by path should adopt it.
	FilePath string
}

// Download admits task under the global semaphore, selects a transport,
// dispatches to the matching sub-engine, and returns once the file is
// complete, the task is cancelled, or an error ends the transfer. The
// chunked and HLS paths retry transient errors per chunk or segment first;
// the plain streaming path does not retry.
func (e *HttpEngine) Download(ctx context.Context, task *model.Task, resumeEnabled bool) (*Result, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, model.New(model.ErrCancelled, ctx.Err())
	}
	defer func() { <-e.sem }()

	taskCtx, cancel := context.WithCancel(ctx)
	e.active.Store(task.ID, &activeHandle{cancel: cancel})
	defer func() {
		cancel()
		e.active.Delete(task.ID)
	}()

	if !resumeEnabled {
		if fi, err := os.Stat(task.FilePath); err == nil && fi.Size() > 0 {
			return &Result{Transport: model.TransportPlain, AlreadyComplete: true, FinalSize: fi.Size()}, nil
		}
	}

	transport := task.TransportHint
	if transport == model.TransportAuto {
		transport = e.selectStrategy(taskCtx, task.URL, resumeEnabled)
	}

	progressFn := func(d model.ProgressDelta) {
		select {
		case e.progress <- d:
		default:
		}
	}

	switch transport {
	case model.TransportHLS:
		tempDir := filepath.Join(e.tempDir, task.ID)
		_, err := e.hls.DownloadM3U8(taskCtx, task.ID, task.URL, task.FilePath, tempDir, progressFn, hls.Flags{
			Cancelled: func() bool { return taskCtx.Err() != nil },
		})
		if err != nil {
			return nil, err
		}
		return &Result{Transport: model.TransportHLS}, nil

	case model.TransportChunked:
		info, err := e.chunked.DownloadWithResume(taskCtx, task.ID, task.URL, task.FilePath, task.FileSize, progressFn, chunked.Flags{
			Cancelled: func() bool { return taskCtx.Err() != nil },
			Paused:    e.isPaused.Load,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Transport: model.TransportChunked, FinalSize: info.TotalSize}, nil

	default:
		n, resolvedPath, err := e.downloadPlain(taskCtx, task, progressFn)
		if err != nil {
			return nil, err
		}
		result := &Result{Transport: model.TransportPlain, FinalSize: n}
		if resolvedPath != task.FilePath {
			result.FilePath = resolvedPath
		}
		return result, nil
	}
}

// downloadPlain streams the body directly to disk, resuming via Range if a
// partial file already exists, honoring the process-wide pause flag and the
// task's cancellation context at every chunk-of-bytes boundary. It never
// mutates task itself; a renamed destination is only returned to the
// caller, which owns synchronizing it back into task state.
func (e *HttpEngine) downloadPlain(ctx context.Context, task *model.Task, progressFn func(model.ProgressDelta)) (int64, string, error) {
	destPath := task.FilePath
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, destPath, model.New(model.ErrResourceExhaust, err)
	}

	var existing int64
	if fi, err := os.Stat(destPath); err == nil {
		existing = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return 0, destPath, model.New(model.ErrConfiguration, err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, destPath, model.ClassifyNetworkError(err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	offset := int64(0)
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		offset = existing
	case http.StatusOK:
		flags |= os.O_TRUNC
	default:
		return 0, destPath, model.ClassifyHTTPStatus(resp.StatusCode)
	}

	// A fresh download whose destination name was only guessed from the URL
	// gets a chance to use the server's real filename before any bytes land.
	if existing == 0 && filepath.Base(destPath) == "download.bin" {
		if name, ok := filename.FromResponse(resp); ok {
			destPath = filepath.Join(filepath.Dir(destPath), name)
		}
	}

	f, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		return 0, destPath, model.New(model.ErrResourceExhaust, err)
	}
	defer f.Close()

	total := resp.ContentLength
	if total > 0 {
		total += offset
	}

	buf := make([]byte, 256*1024)
	written := offset
	for {
		if ctx.Err() != nil {
			return written, destPath, model.New(model.ErrCancelled, ctx.Err())
		}
		for e.isPaused.Load() {
			if ctx.Err() != nil {
				return written, destPath, model.New(model.ErrCancelled, ctx.Err())
			}
			time.Sleep(200 * time.Millisecond)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return written, destPath, model.New(model.ErrResourceExhaust, writeErr)
			}
			written += int64(n)
			e.bandwidth.Throttle(int64(n))
			if progressFn != nil {
				progressFn(model.ProgressDelta{TaskID: task.ID, Downloaded: int64(n), Total: total, TotalKnown: total > 0})
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return written, destPath, model.ClassifyNetworkError(readErr)
		}
	}

	if err := f.Sync(); err != nil {
		return written, destPath, model.New(model.ErrResourceExhaust, err)
	}
	return written, destPath, nil
}
