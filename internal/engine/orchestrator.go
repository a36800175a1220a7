// Package engine implements the Orchestrator: the task registry, priority
// queue, concurrency semaphore, lifecycle state machine, and event
// fan-out that sits above HttpEngine.
package engine

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vdengine/internal/analytics"
	"vdengine/internal/model"
	"vdengine/internal/network"
	"vdengine/internal/organize"
	"vdengine/internal/queue"
	"vdengine/internal/resume"
	"vdengine/internal/transport"
)

const defaultPriority = 5

// Options configures a new Orchestrator.
type Options struct {
	MaxConcurrent int
	HttpEngine    *transport.HttpEngine
	Bandwidth     *network.BandwidthController
	Tracker       *analytics.Tracker
	Store         *resume.Store
	Logger        *slog.Logger
	Organizer     *organize.Organizer
	// OutputDir is the volume GetStats reports free/total disk space for.
	OutputDir string
}

// Orchestrator owns the task registry, the priority queue of pending tasks,
// the per-task cancellation handles, and the background event-forwarding
// loop that turns HttpEngine progress deltas into DownloadEvents.
type Orchestrator struct {
	mu     sync.RWMutex
	tasks  map[string]*model.Task
	active map[string]context.CancelFunc

	queue *queue.DownloadQueue
	sem   chan struct{}

	httpEngine *transport.HttpEngine
	bandwidth  *network.BandwidthController
	tracker    *analytics.Tracker
	store      *resume.Store
	logger     *slog.Logger
	organizer  *organize.Organizer
	outputDir  string

	sinkMu sync.RWMutex
	sink   func(model.DownloadEvent)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(opts Options) *Orchestrator {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = transport.DefaultMaxConcurrent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	organizer := opts.Organizer
	if organizer == nil {
		organizer = organize.NewOrganizer(false)
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	return &Orchestrator{
		tasks:      make(map[string]*model.Task),
		active:     make(map[string]context.CancelFunc),
		queue:      queue.NewDownloadQueue(),
		sem:        make(chan struct{}, maxConcurrent),
		httpEngine: opts.HttpEngine,
		bandwidth:  opts.Bandwidth,
		tracker:    opts.Tracker,
		store:      opts.Store,
		logger:     logger,
		organizer:  organizer,
		outputDir:  outputDir,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background loop that forwards HttpEngine.Progress()
// into ProgressTracker and re-emits it as TaskProgress/EnhancedProgress.
func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go o.drainProgress()
}

// Stop signals the progress loop to exit and waits for every in-flight
// download goroutine to finish.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

// SetEventSink installs the callback every DownloadEvent is forwarded to.
func (o *Orchestrator) SetEventSink(sink func(model.DownloadEvent)) {
	o.sinkMu.Lock()
	o.sink = sink
	o.sinkMu.Unlock()
}

func (o *Orchestrator) emit(ev model.DownloadEvent) {
	ev.Timestamp = time.Now()
	o.sinkMu.RLock()
	sink := o.sink
	o.sinkMu.RUnlock()
	if sink != nil {
		sink(ev)
	}
}

func (o *Orchestrator) drainProgress() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case delta, ok := <-o.httpEngine.Progress():
			if !ok {
				return
			}
			o.applyProgressDelta(delta)
		}
	}
}

func (o *Orchestrator) applyProgressDelta(delta model.ProgressDelta) {
	o.mu.Lock()
	task, ok := o.tasks[delta.TaskID]
	if !ok {
		o.mu.Unlock()
		return
	}
	task.Downloaded += delta.Downloaded
	if delta.TotalKnown && delta.Total > 0 {
		task.FileSize = delta.Total
		task.FileSizeKnown = true
	}
	downloaded := task.Downloaded
	fileSize := task.FileSize
	sizeKnown := fileSize > 0
	o.mu.Unlock()

	stats, ok := o.tracker.UpdateProgress(delta.TaskID, downloaded)
	if !ok {
		return
	}

	// Byte totals win when known; otherwise fall back to the segment count
	// a transport like HLS-without-byte-ranges reports instead, so progress
	// isn't stuck reporting 0% for the whole transfer. The tracker only
	// learns a total at StartTracking, so the task's own size is used here.
	ratio := 0.0
	if sizeKnown {
		ratio = float64(downloaded) / float64(fileSize)
	}
	segmentBased := !sizeKnown && delta.SegmentsTotal > 0
	if segmentBased {
		ratio = float64(delta.SegmentsDone) / float64(delta.SegmentsTotal)
	}

	o.mu.Lock()
	if task, ok = o.tasks[delta.TaskID]; ok {
		task.Speed = stats.SmoothedSpeed
		task.ETASeconds = stats.ETASeconds
		task.ETAKnown = stats.ETAKnown
		if sizeKnown || segmentBased {
			task.Progress = ratio
		}
		task.UpdatedAt = time.Now()
	}
	o.mu.Unlock()

	progress := model.TaskProgress{
		Downloaded: stats.Downloaded,
		Total:      fileSize,
		TotalKnown: sizeKnown,
		Speed:      stats.SmoothedSpeed,
		ETASeconds: stats.ETASeconds,
		ETAKnown:   stats.ETAKnown,
		Ratio:      ratio,
	}
	if segmentBased {
		progress.SegmentsDone = delta.SegmentsDone
		progress.SegmentsTotal = delta.SegmentsTotal
	}
	o.emit(model.DownloadEvent{Kind: model.EventTaskProgress, TaskID: delta.TaskID, Progress: &progress})
	o.emit(model.DownloadEvent{Kind: model.EventEnhancedProgress, TaskID: delta.TaskID, Enhanced: &stats})
	o.recomputeStats()
}

// AddTask creates a task for rawURL under outputDir at priority (use a
// negative value for the default, 5), hydrates it from any on-disk
// completion marker or partial file, and enqueues it. Rejects a duplicate
// URL unless allowDuplicates is set, per §4.7's dedupe rule.
func (o *Orchestrator) AddTask(rawURL, outputDir string, priority int, allowDuplicates bool) (*model.Task, error) {
	if priority < 0 {
		priority = defaultPriority
	}
	if rawURL == "" {
		return nil, model.Newf(model.ErrConfiguration, "url must not be empty")
	}

	if !allowDuplicates {
		o.mu.RLock()
		for _, t := range o.tasks {
			if t.URL == rawURL && t.Status != model.StatusCancelled && t.Status != model.StatusFailed {
				o.mu.RUnlock()
				return nil, model.Newf(model.ErrConfiguration, "a task for %s already exists", rawURL)
			}
		}
		o.mu.RUnlock()
	}

	filename := deriveFilename(rawURL)
	filePath := filepath.Join(outputDir, filename)

	task := &model.Task{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Title:     filename,
		OutputDir: outputDir,
		FilePath:  filePath,
		Status:    model.StatusPending,
		Priority:  priority,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	o.hydrateFromDisk(task)

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.mu.Unlock()

	if task.Status == model.StatusPending {
		o.queue.Push(task)
	}

	o.emit(model.DownloadEvent{Kind: model.EventTaskCreated, TaskID: task.ID})
	o.recomputeStats()
	return task, nil
}

// BatchEntry is one row of a bulk AddBatch request.
type BatchEntry struct {
	URL       string
	OutputDir string
	Priority  int
}

// AddBatch runs AddTask for every entry, collecting whichever tasks were
// created successfully; a duplicate or malformed URL only fails that one
// entry rather than aborting the batch.
func (o *Orchestrator) AddBatch(entries []BatchEntry, allowDuplicates bool) ([]*model.Task, []error) {
	var tasks []*model.Task
	var errs []error
	for _, e := range entries {
		task, err := o.AddTask(e.URL, e.OutputDir, e.Priority, allowDuplicates)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, errs
}

// AddVideoTask registers a pre-filled task (e.g. with metadata or a
// transport hint already set by the caller) using the same dedupe/hydrate
// path as AddTask.
func (o *Orchestrator) AddVideoTask(task *model.Task) (*model.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Priority == 0 {
		task.Priority = defaultPriority
	}
	if task.FilePath == "" {
		task.FilePath = filepath.Join(task.OutputDir, deriveFilename(task.URL))
	}
	task.Status = model.StatusPending
	task.CreatedAt = time.Now()
	task.UpdatedAt = time.Now()

	o.hydrateFromDisk(task)

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.mu.Unlock()

	if task.Status == model.StatusPending {
		o.queue.Push(task)
	}
	o.emit(model.DownloadEvent{Kind: model.EventTaskCreated, TaskID: task.ID})
	o.recomputeStats()
	return task, nil
}

// hydrateFromDisk implements the add_task hydration rule: a matching
// CompletionMarker short-circuits straight to Completed; otherwise an
// existing partial file seeds Downloaded.
func (o *Orchestrator) hydrateFromDisk(task *model.Task) {
	if marker, ok := resume.ValidateCompletionMarker(task.FilePath, task.URL); ok {
		task.Status = model.StatusCompleted
		task.Progress = 1.0
		task.FileSize = marker.FileSize
		task.FileSizeKnown = true
		task.Downloaded = marker.FileSize
		return
	}
	if fi, err := os.Stat(task.FilePath); err == nil && fi.Size() > 0 {
		task.Downloaded = fi.Size()
	}
}

// StartDownload transitions a Pending or Paused task to Downloading,
// blocking until a concurrency permit is free, then runs the download on a
// background goroutine.
func (o *Orchestrator) StartDownload(taskID string) error {
	o.mu.RLock()
	task, ok := o.tasks[taskID]
	o.mu.RUnlock()
	if !ok {
		return model.Newf(model.ErrConfiguration, "unknown task %s", taskID)
	}
	if task.Status != model.StatusPending && task.Status != model.StatusPaused {
		return model.Newf(model.ErrConfiguration, "task %s cannot start from status %s", taskID, task.Status)
	}

	o.queue.Remove(taskID)

	select {
	case o.sem <- struct{}{}:
	case <-o.stopCh:
		return model.Newf(model.ErrCancelled, "orchestrator is stopping")
	}

	if err := o.dispatch(task); err != nil {
		<-o.sem
		return err
	}
	return nil
}

// dispatch assumes a concurrency permit is already held; it transitions the
// task, starts tracking, emits TaskStarted, and launches the run goroutine.
func (o *Orchestrator) dispatch(task *model.Task) error {
	o.mu.Lock()
	t, ok := o.tasks[task.ID]
	if !ok || (t.Status != model.StatusPending && t.Status != model.StatusPaused) {
		o.mu.Unlock()
		return model.Newf(model.ErrConfiguration, "task %s is no longer startable", task.ID)
	}
	t.Status = model.StatusDownloading
	t.Error = ""
	t.UpdatedAt = time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	o.active[t.ID] = cancel
	o.mu.Unlock()

	o.tracker.StartTracking(t.ID, t.FileSize)
	o.emit(model.DownloadEvent{Kind: model.EventTaskStarted, TaskID: t.ID})

	o.wg.Add(1)
	go o.runDownload(ctx, t)
	return nil
}

func (o *Orchestrator) runDownload(ctx context.Context, task *model.Task) {
	defer o.wg.Done()
	defer func() {
		<-o.sem
		o.mu.Lock()
		delete(o.active, task.ID)
		o.mu.Unlock()
		o.tracker.StopTracking(task.ID)
	}()

	result, err := o.httpEngine.Download(ctx, task, true)

	o.mu.RLock()
	t, ok := o.tasks[task.ID]
	o.mu.RUnlock()
	if !ok {
		return
	}

	if err != nil {
		if model.KindOf(err) == model.ErrCancelled {
			// PauseDownload/CancelDownload already set the terminal/paused
			// status and emitted their event before cancelling the context.
			return
		}
		o.mu.Lock()
		t.Status = model.StatusFailed
		t.Error = err.Error()
		t.UpdatedAt = time.Now()
		o.mu.Unlock()
		o.emit(model.DownloadEvent{Kind: model.EventTaskFailed, TaskID: task.ID, Error: err.Error()})
		o.recomputeStats()
		return
	}

	o.mu.Lock()
	t.Status = model.StatusCompleted
	t.Progress = 1.0
	t.UpdatedAt = time.Now()
	if result.FinalSize > 0 {
		t.FileSize = result.FinalSize
		t.FileSizeKnown = true
		t.Downloaded = result.FinalSize
	}
	if result.FilePath != "" {
		t.FilePath = result.FilePath
	}
	filePath, fileSize, taskURL := t.FilePath, t.FileSize, t.URL
	o.mu.Unlock()

	if o.store != nil {
		numChunks := 0
		if info, ok := o.store.Load(task.ID); ok {
			numChunks = len(info.Chunks)
		}
		o.store.Cleanup(task.ID, numChunks)
	}

	if organized, err := o.organizer.Organize(filePath); err != nil {
		o.logger.Warn("failed to organize completed download", "task_id", task.ID, "error", err)
	} else if organized != filePath {
		filePath = organized
		o.mu.Lock()
		t.FilePath = organized
		o.mu.Unlock()
	}

	if err := resume.WriteCompletionMarker(filePath, taskURL, fileSize); err != nil {
		o.logger.Warn("failed to write completion marker", "task_id", task.ID, "error", err)
	}

	o.emit(model.DownloadEvent{Kind: model.EventTaskCompleted, TaskID: task.ID, FilePath: filePath})
	o.recomputeStats()
}

// PauseDownload aborts the active handle and marks the task Paused;
// ResumeStore/the plain file already hold enough state to continue later.
func (o *Orchestrator) PauseDownload(taskID string) error {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return model.Newf(model.ErrConfiguration, "unknown task %s", taskID)
	}
	if task.Status != model.StatusDownloading {
		o.mu.Unlock()
		return model.Newf(model.ErrConfiguration, "task %s is not downloading", taskID)
	}
	cancel := o.active[taskID]
	task.Status = model.StatusPaused
	task.UpdatedAt = time.Now()
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.httpEngine.Cancel(taskID)

	o.emit(model.DownloadEvent{Kind: model.EventTaskPaused, TaskID: taskID})
	o.recomputeStats()
	return nil
}

// ResumeDownload refreshes a Paused task's on-disk size and restarts it.
func (o *Orchestrator) ResumeDownload(taskID string) error {
	o.mu.RLock()
	task, ok := o.tasks[taskID]
	o.mu.RUnlock()
	if !ok {
		return model.Newf(model.ErrConfiguration, "unknown task %s", taskID)
	}
	if task.Status != model.StatusPaused {
		return model.Newf(model.ErrConfiguration, "task %s is not paused", taskID)
	}

	if fi, err := os.Stat(task.FilePath); err == nil {
		o.mu.Lock()
		task.Downloaded = fi.Size()
		o.mu.Unlock()
	}

	if err := o.StartDownload(taskID); err != nil {
		return err
	}
	o.emit(model.DownloadEvent{Kind: model.EventTaskResumed, TaskID: taskID})
	return nil
}

// CancelDownload aborts the active handle (if any) and transitions the task
// to Cancelled. Idempotent: already-terminal tasks are a no-op. No temp
// files or ResumeInfo are cleaned up; they stay on disk. RetryTask and
// RetryFailed accept only Failed tasks, so a Cancelled task is not retried
// through them.
func (o *Orchestrator) CancelDownload(taskID string) error {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return model.Newf(model.ErrConfiguration, "unknown task %s", taskID)
	}
	if task.Status == model.StatusCompleted || task.Status == model.StatusCancelled {
		o.mu.Unlock()
		return nil
	}
	cancel := o.active[taskID]
	task.Status = model.StatusCancelled
	task.UpdatedAt = time.Now()
	o.mu.Unlock()

	o.queue.Remove(taskID)
	if cancel != nil {
		cancel()
	}
	o.httpEngine.Cancel(taskID)

	o.emit(model.DownloadEvent{Kind: model.EventTaskCancelled, TaskID: taskID})
	o.recomputeStats()
	return nil
}

// StartAllPending starts as many Pending tasks, highest priority first, as
// the concurrency semaphore allows; it stops as soon as a permit isn't
// immediately available rather than blocking.
func (o *Orchestrator) StartAllPending() int {
	started := 0
	for {
		task, ok := o.queue.TryPop()
		if !ok {
			return started
		}
		select {
		case o.sem <- struct{}{}:
		default:
			o.queue.Push(task)
			return started
		}
		if err := o.dispatch(task); err != nil {
			<-o.sem
			continue
		}
		started++
	}
}

// PauseAllDownloads pauses every currently-Downloading task.
func (o *Orchestrator) PauseAllDownloads() int {
	n := 0
	for _, id := range o.taskIDsWithStatus(model.StatusDownloading) {
		if o.PauseDownload(id) == nil {
			n++
		}
	}
	return n
}

// ResumeAllDownloads resumes every currently-Paused task.
func (o *Orchestrator) ResumeAllDownloads() int {
	n := 0
	for _, id := range o.taskIDsWithStatus(model.StatusPaused) {
		if o.ResumeDownload(id) == nil {
			n++
		}
	}
	return n
}

// CancelAllDownloads cancels every non-terminal task.
func (o *Orchestrator) CancelAllDownloads() int {
	n := 0
	o.mu.RLock()
	var ids []string
	for id, t := range o.tasks {
		if t.Status != model.StatusCompleted && t.Status != model.StatusCancelled {
			ids = append(ids, id)
		}
	}
	o.mu.RUnlock()

	for _, id := range ids {
		if o.CancelDownload(id) == nil {
			n++
		}
	}
	return n
}

func (o *Orchestrator) taskIDsWithStatus(status model.TaskStatus) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var ids []string
	for id, t := range o.tasks {
		if t.Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// RemoveTask drops a non-Downloading task from the registry.
func (o *Orchestrator) RemoveTask(taskID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.tasks[taskID]
	if !ok {
		return model.Newf(model.ErrConfiguration, "unknown task %s", taskID)
	}
	if task.Status == model.StatusDownloading {
		return model.Newf(model.ErrConfiguration, "cannot remove task %s while downloading", taskID)
	}
	delete(o.tasks, taskID)
	o.queue.Remove(taskID)
	return nil
}

// ClearCompleted drops every Completed task from the registry.
func (o *Orchestrator) ClearCompleted() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, t := range o.tasks {
		if t.Status == model.StatusCompleted {
			delete(o.tasks, id)
			n++
		}
	}
	return n
}

// RetryFailed resets every Failed task to Pending, clearing its error and
// progress, and re-enqueues it.
func (o *Orchestrator) RetryFailed() int {
	o.mu.Lock()
	var retried []*model.Task
	for _, t := range o.tasks {
		if t.Status == model.StatusFailed {
			t.Status = model.StatusPending
			t.Error = ""
			t.Progress = 0
			t.Downloaded = 0
			t.UpdatedAt = time.Now()
			retried = append(retried, t)
		}
	}
	o.mu.Unlock()

	for _, t := range retried {
		o.queue.Push(t)
	}
	return len(retried)
}

// RetryTask resets a single Failed task to Pending, clearing its error and
// progress, and re-enqueues it. Returns an error if taskID is unknown or not
// currently Failed.
func (o *Orchestrator) RetryTask(taskID string) error {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return model.Newf(model.ErrConfiguration, "unknown task %s", taskID)
	}
	if task.Status != model.StatusFailed {
		o.mu.Unlock()
		return model.Newf(model.ErrConfiguration, "task %s is not failed", taskID)
	}
	task.Status = model.StatusPending
	task.Error = ""
	task.Progress = 0
	task.Downloaded = 0
	task.UpdatedAt = time.Now()
	o.mu.Unlock()

	o.queue.Push(task)
	return nil
}

// SetRateLimit updates the shared bandwidth limit; 0 disables throttling.
func (o *Orchestrator) SetRateLimit(bytesPerSec int64) {
	o.bandwidth.SetLimit(bytesPerSec)
}

// GetRateLimit returns the current bandwidth limit, 0 meaning unlimited.
func (o *Orchestrator) GetRateLimit() int64 {
	return o.bandwidth.Limit()
}

// GetTasks returns a snapshot of every registered task, oldest first.
func (o *Orchestrator) GetTasks() []*model.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*model.Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetTask returns a single task by id.
func (o *Orchestrator) GetTask(taskID string) (*model.Task, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// GetEnhancedProgress returns the tracker's last computed stats for taskID.
func (o *Orchestrator) GetEnhancedProgress(taskID string) (model.EnhancedStats, bool) {
	return o.tracker.Get(taskID)
}

// GetAllEnhancedProgress returns the tracker's last stats for every active task.
func (o *Orchestrator) GetAllEnhancedProgress() map[string]model.EnhancedStats {
	return o.tracker.GetAll()
}

// GetGlobalEnhancedStats aggregates active-task count and average smoothed
// speed across every tracker.
func (o *Orchestrator) GetGlobalEnhancedStats() (activeCount int, averageSpeed float64) {
	return o.tracker.GlobalStats()
}

func (o *Orchestrator) recomputeStats() {
	stats := o.computeStats()
	o.emit(model.DownloadEvent{Kind: model.EventStatsUpdated, Stats: &stats})
}

// GetStats computes the registry-wide GlobalStats summary.
func (o *Orchestrator) GetStats() model.GlobalStats {
	return o.computeStats()
}

func (o *Orchestrator) computeStats() model.GlobalStats {
	o.mu.RLock()
	var stats model.GlobalStats
	var speedSum float64
	var downloading int
	for _, t := range o.tasks {
		stats.TotalTasks++
		switch t.Status {
		case model.StatusCompleted:
			stats.CompletedTasks++
			stats.TotalDownloaded += t.Downloaded
		case model.StatusFailed:
			stats.FailedTasks++
		case model.StatusCancelled:
			stats.CancelledTasks++
		case model.StatusDownloading:
			downloading++
			speedSum += t.Speed
		}
	}
	activeDownloads := len(o.active)
	o.mu.RUnlock()

	stats.ActiveDownloads = activeDownloads
	if downloading > 0 {
		stats.AverageSpeed = speedSum / float64(downloading)
	}
	disk := analytics.GetDiskUsage(o.outputDir)
	stats.DiskFreeBytes = disk.FreeBytes
	stats.DiskTotalBytes = disk.TotalBytes
	return stats
}

// deriveFilename extracts a reasonable destination filename from a URL,
// falling back to a generic name for URLs with no usable path component
// (e.g. HLS playlist endpoints behind a query-string router).
func deriveFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download.bin"
	}
	base := filepath.Base(u.Path)
	base = strings.TrimSuffix(base, "/")
	if base == "" || base == "." || base == "/" {
		return "download.bin"
	}
	return base
}
