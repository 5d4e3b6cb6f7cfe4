package web

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mberenty7/tripo-tools/config"
	"github.com/mberenty7/tripo-tools/internal/metrics"
	"github.com/mberenty7/tripo-tools/tripo"
)

// JobState is the front-end view of a job's lifecycle. It is coarser than
// the remote task status: a job is pending until a worker slot frees up,
// running through upload/submit/poll/download, then terminal.
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobSuccess JobState = "success"
	JobFailed  JobState = "failed"
)

// Request describes one generation job submitted through the web UI.
type Request struct {
	// Kind is one of "image", "text", "multiview".
	Kind string
	// ImagePaths are local paths of the uploaded input images (one for
	// image, 2..N for multiview). The manager deletes them when the job
	// finishes.
	ImagePaths []string
	// Prompt is the text description for text jobs.
	Prompt string
	// Format is the artifact format (glb, fbx, obj, stl, usdz).
	Format string
	// Options are passed to the pipeline unmodified.
	Options tripo.GenerationOptions
}

// Job is an immutable snapshot of one job's state, safe to hand out.
type Job struct {
	ID           string           `json:"id"`
	Kind         string           `json:"kind"`
	Format       string           `json:"format"`
	State        JobState         `json:"state"`
	Percent      int              `json:"percent"`
	RemoteStatus tripo.TaskStatus `json:"remote_status,omitempty"`
	Error        string           `json:"error,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	OutputPath   string           `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}

// ProgressEvent is pushed to subscribers on every state change.
type ProgressEvent struct {
	JobID   string   `json:"job_id"`
	State   JobState `json:"state"`
	Percent int      `json:"percent"`
	Status  string   `json:"status,omitempty"`
	Error   string   `json:"error,omitempty"`
	Done    bool     `json:"done"`
}

// job is the mutable record behind a Job snapshot.
type job struct {
	mu   sync.Mutex
	snap Job
	subs map[chan ProgressEvent]struct{}
}

// Manager runs one generation pipeline per background worker, each with its
// own tripo.Client — pipelines share nothing but the HTTP connection pool.
// Cancellation is cooperative: shutting the manager down abandons poll
// loops, the remote jobs keep running server-side.
type Manager struct {
	cfg       config.ClientConfig
	workDir   string
	logger    *zap.Logger
	collector *metrics.Collector
	sem       *semaphore.Weighted

	mu   sync.RWMutex
	jobs map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// newClient builds the per-worker client; replaced in tests.
	newClient func() (*tripo.Client, error)
}

// NewManager creates a Manager. maxConcurrent bounds the number of
// simultaneously running pipelines; further submissions queue as pending.
func NewManager(cfg config.ClientConfig, workDir string, maxConcurrent int64, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		workDir:   workDir,
		logger:    logger.With(zap.String("component", "job_manager")),
		collector: collector,
		sem:       semaphore.NewWeighted(maxConcurrent),
		jobs:      make(map[string]*job),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.newClient = func() (*tripo.Client, error) {
		return tripo.NewClient(tripo.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			PollInterval:      cfg.PollInterval,
			WallTimeout:       cfg.WallTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger)
	}
	return m
}

// Submit validates the request, registers a pending job, and starts its
// worker. Returns the job id immediately.
func (m *Manager) Submit(req Request) (string, error) {
	switch req.Kind {
	case "image":
		if len(req.ImagePaths) != 1 {
			return "", fmt.Errorf("image job needs exactly 1 image, got %d", len(req.ImagePaths))
		}
	case "text":
		if req.Prompt == "" {
			return "", fmt.Errorf("text job needs a prompt")
		}
	case "multiview":
		if len(req.ImagePaths) < 2 {
			return "", fmt.Errorf("multiview job needs at least 2 images, got %d", len(req.ImagePaths))
		}
	default:
		return "", fmt.Errorf("unknown job kind %q", req.Kind)
	}
	if !tripo.ValidFormat(req.Format) {
		return "", fmt.Errorf("unsupported format %q", req.Format)
	}

	id := uuid.NewString()
	j := &job{
		snap: Job{
			ID:        id,
			Kind:      req.Kind,
			Format:    req.Format,
			State:     JobPending,
			CreatedAt: time.Now(),
		},
		subs: make(map[chan ProgressEvent]struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = j
	m.mu.Unlock()

	m.wg.Add(1)
	go m.work(j, req)

	m.logger.Info("job submitted",
		zap.String("job_id", id),
		zap.String("kind", req.Kind),
		zap.String("format", req.Format),
	)
	return id, nil
}

// Get returns a snapshot of the job, if known.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap, true
}

// Subscribe registers a progress listener for a job. The returned cancel
// function must be called when the listener goes away. A terminal job
// yields one final event and a closed channel.
func (m *Manager) Subscribe(id string) (<-chan ProgressEvent, func(), error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown job %s", id)
	}

	ch := make(chan ProgressEvent, 16)

	j.mu.Lock()
	if j.snap.State == JobSuccess || j.snap.State == JobFailed {
		ch <- j.event()
		close(ch)
		j.mu.Unlock()
		return ch, func() {}, nil
	}
	j.subs[ch] = struct{}{}
	// Seed the listener with the current state so late subscribers are not
	// blind until the next poll.
	ch <- j.event()
	j.mu.Unlock()

	cancel := func() {
		j.mu.Lock()
		if _, live := j.subs[ch]; live {
			delete(j.subs, ch)
			close(ch)
		}
		j.mu.Unlock()
	}
	return ch, cancel, nil
}

// Shutdown stops accepting progress and waits for running workers until ctx
// expires. Remote jobs are not cancelled (the API has no cancel operation
// the client uses); abandoned polls simply stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// work runs one full pipeline for one job.
func (m *Manager) work(j *job, req Request) {
	defer m.wg.Done()
	defer m.cleanupInputs(req.ImagePaths)

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		j.finish(JobFailed, "", "server shutting down")
		return
	}
	defer m.sem.Release(1)

	start := time.Now()
	if m.collector != nil {
		m.collector.JobStarted()
	}

	j.update(JobRunning, 0, "")

	client, err := m.newClient()
	if err != nil {
		m.finishJob(j, req, start, "", err)
		return
	}

	reporter := tripo.ProgressFunc(func(percent int, status tripo.TaskStatus) {
		j.progress(percent, status)
		if m.collector != nil {
			m.collector.JobProgress(j.id(), percent)
		}
	})

	dest := filepath.Join(m.workDir, j.id()+"."+req.Format)

	var path string
	switch req.Kind {
	case "image":
		path, err = client.ImageTo3D(m.ctx, req.ImagePaths[0], dest, req.Options, reporter)
	case "text":
		path, err = client.TextTo3D(m.ctx, req.Prompt, dest, req.Options, reporter)
	case "multiview":
		path, err = client.MultiviewTo3D(m.ctx, req.ImagePaths, dest, req.Options, reporter)
	}

	m.finishJob(j, req, start, path, err)
}

// finishJob records the terminal state and metrics for a job.
func (m *Manager) finishJob(j *job, req Request, start time.Time, path string, err error) {
	outcome := "success"
	if err != nil {
		switch tripo.CodeOf(err) {
		case tripo.ErrJobTimeout:
			outcome = "timeout"
		case tripo.ErrServiceRejection:
			outcome = "rejected"
		default:
			outcome = "failed"
		}
		j.finish(JobFailed, string(tripo.CodeOf(err)), err.Error())
		m.logger.Warn("job failed",
			zap.String("job_id", j.id()),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	} else {
		j.setOutput(path)
		j.finish(JobSuccess, "", "")
		m.logger.Info("job finished",
			zap.String("job_id", j.id()),
			zap.String("output", path),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	if m.collector != nil {
		m.collector.JobFinished(req.Kind, outcome, time.Since(start))
		m.collector.JobDone(j.id())
	}
}

// cleanupInputs removes the uploaded input files once the job is done.
func (m *Manager) cleanupInputs(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			m.logger.Debug("input cleanup failed", zap.String("path", p), zap.Error(err))
		}
	}
}

// --- job record helpers -----------------------------------------------------

func (j *job) id() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.ID
}

func (j *job) setOutput(path string) {
	j.mu.Lock()
	j.snap.OutputPath = path
	j.mu.Unlock()
}

// event builds the broadcast payload for the current state. Caller holds j.mu.
func (j *job) event() ProgressEvent {
	return ProgressEvent{
		JobID:   j.snap.ID,
		State:   j.snap.State,
		Percent: j.snap.Percent,
		Status:  string(j.snap.RemoteStatus),
		Error:   j.snap.Error,
		Done:    j.snap.State == JobSuccess || j.snap.State == JobFailed,
	}
}

// broadcast fans the current state out to subscribers. Caller holds j.mu.
// Slow subscribers lose intermediate events rather than stalling the worker.
func (j *job) broadcast() {
	ev := j.event()
	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Done {
		for ch := range j.subs {
			close(ch)
			delete(j.subs, ch)
		}
	}
}

func (j *job) update(state JobState, percent int, errMsg string) {
	j.mu.Lock()
	j.snap.State = state
	j.snap.Percent = percent
	j.snap.Error = errMsg
	j.broadcast()
	j.mu.Unlock()
}

func (j *job) progress(percent int, status tripo.TaskStatus) {
	j.mu.Lock()
	j.snap.Percent = percent
	j.snap.RemoteStatus = status
	j.broadcast()
	j.mu.Unlock()
}

func (j *job) finish(state JobState, code, errMsg string) {
	now := time.Now()
	j.mu.Lock()
	j.snap.State = state
	j.snap.ErrorCode = code
	j.snap.Error = errMsg
	if state == JobSuccess {
		j.snap.Percent = 100
	}
	j.snap.FinishedAt = &now
	j.broadcast()
	j.mu.Unlock()
}
