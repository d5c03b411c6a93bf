package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/maauso/clipline/internal/media"
	"github.com/maauso/clipline/internal/production"
	"github.com/maauso/clipline/internal/storage"
)

// Manager runs at most one assembly per production and keeps the latest
// status and artifact for each.
type Manager struct {
	source  ProductionSource
	storage storage.Storage
	load    ToolLoader
	http    *http.Client
	publish bool
	notify  func(campaignID string, st Status)
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	campaignID string
	status     Status
	cancel     context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotify registers a callback invoked after every state or progress change.
// The callback must not block.
func WithNotify(fn func(campaignID string, st Status)) Option {
	return func(m *Manager) {
		m.notify = fn
	}
}

// WithHTTPClient sets the client used to download clip results.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.http = c
		}
	}
}

// WithPublish uploads finished artifacts through Storage.Publish.
func WithPublish(enabled bool) Option {
	return func(m *Manager) {
		m.publish = enabled
	}
}

// WithToolLoader overrides how the media processor is resolved.
func WithToolLoader(load ToolLoader) Option {
	return func(m *Manager) {
		if load != nil {
			m.load = load
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager. Downloads and artifacts live in store's
// temporary area.
func NewManager(source ProductionSource, store storage.Storage, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		source:  source,
		storage: store,
		load:    FFmpegLoader(""),
		http:    &http.Client{Timeout: 5 * time.Minute},
		logger:  slog.Default(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the stitch status of a production. Unknown productions are idle.
func (m *Manager) Status(campaignID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[campaignID]
	if !ok {
		return Status{CampaignID: campaignID, State: StateIdle}
	}
	return j.status.clone()
}

// Artifact returns the finished artifact of a production.
func (m *Manager) Artifact(campaignID string) (*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[campaignID]
	if !ok || j.status.State != StateDone || j.status.Artifact == nil {
		return nil, ErrNoArtifact
	}
	a := *j.status.Artifact
	return &a, nil
}

// Start validates the production and launches an assembly in the background.
// It returns the LoadingTool status.
func (m *Manager) Start(ctx context.Context, campaignID string) (Status, error) {
	p, err := m.source.Get(ctx, campaignID)
	if err != nil {
		return Status{}, err
	}
	if p.Kind != production.KindVideo {
		return Status{}, ErrNotStitchable
	}
	if len(p.Clips) == 0 || !p.AllSucceeded() {
		return Status{}, ErrNotReady
	}

	clips := make([]production.Clip, len(p.Clips))
	copy(clips, p.Clips)

	m.mu.Lock()
	if j, ok := m.jobs[campaignID]; ok && j.status.State != StateIdle {
		m.mu.Unlock()
		return Status{}, fmt.Errorf("%w: %s", ErrBusy, j.status.State)
	}
	runCtx, cancel := context.WithCancel(m.ctx)
	j := &job{
		campaignID: campaignID,
		status:     Status{
			CampaignID: campaignID,
			State:      StateLoadingTool,
			Message:    "Loading media tools",
			UpdatedAt:  m.now(),
		},
		cancel: cancel,
	}
	m.jobs[campaignID] = j
	st := j.status.clone()
	m.mu.Unlock()

	m.emit(campaignID, st)
	m.logger.Info("stitch started",
		slog.String("campaign_id", campaignID),
		slog.Int("clips", len(clips)),
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(runCtx, j, clips)
	}()

	return st, nil
}

// Reset returns a finished or failed production to Idle and deletes its artifact.
func (m *Manager) Reset(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	j, ok := m.jobs[campaignID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if j.status.State.IsActive() {
		m.mu.Unlock()
		return ErrBusy
	}
	var artifact string
	if j.status.Artifact != nil {
		artifact = j.status.Artifact.Path
	}
	j.status = Status{CampaignID: campaignID, State: StateIdle, UpdatedAt: m.now()}
	st := j.status.clone()
	m.mu.Unlock()

	if artifact != "" {
		if err := m.storage.CleanupTemp(ctx, []string{artifact}); err != nil {
			m.logger.Warn("failed to delete artifact",
				slog.String("campaign_id", campaignID),
				slog.String("error", err.Error()),
			)
		}
	}
	m.emit(campaignID, st)
	return nil
}

// Forget cancels any running assembly for the production and deletes its artifact.
func (m *Manager) Forget(ctx context.Context, campaignID string) {
	m.mu.Lock()
	j, ok := m.jobs[campaignID]
	var artifact string
	if ok {
		delete(m.jobs, campaignID)
		if a := j.status.Artifact; a != nil {
			artifact = a.Path
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	j.cancel()
	if artifact != "" {
		_ = m.storage.CleanupTemp(ctx, []string{artifact})
	}
}

// Close cancels running assemblies and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, j *job, clips []production.Clip) {
	var downloads []string
	artifact, err := m.assemble(ctx, j, clips, &downloads)

	if len(downloads) > 0 {
		if cerr := m.storage.CleanupTemp(context.WithoutCancel(ctx), downloads); cerr != nil {
			m.logger.Warn("failed to clean up downloads",
				slog.String("campaign_id", j.campaignID),
				slog.String("error", cerr.Error()),
			)
		}
	}

	if err != nil {
		m.fail(j, err)
		return
	}

	tracked := m.update(j, func(st *Status) {
		st.State = StateDone
		st.Progress = 100
		st.Message = "Done"
		st.Artifact = artifact
	})
	if !tracked {
		// Forgotten while assembling.
		_ = m.storage.CleanupTemp(context.WithoutCancel(ctx), []string{artifact.Path})
		return
	}
	m.logger.Info("stitch completed",
		slog.String("campaign_id", j.campaignID),
		slog.Int64("size", artifact.Size),
	)
}

// assemble downloads every clip result in order and joins them. Downloaded
// paths are appended to downloads so the caller can clean them up.
func (m *Manager) assemble(ctx context.Context, j *job, clips []production.Clip, downloads *[]string) (*Artifact, error) {
	processor, err := m.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load media tools: %w", ErrStitch, err)
	}

	m.update(j, func(st *Status) {
		st.State = StateDownloading
		st.Progress = 10
		st.Message = fmt.Sprintf("Downloading clip 1 of %d", len(clips))
	})

	sources := make([]string, 0, len(clips))
	for i, clip := range clips {
		path, err := m.download(ctx, clip)
		if err != nil {
			return nil, fmt.Errorf("%w: download clip %s: %w", ErrStitch, clip.ID, err)
		}
		*downloads = append(*downloads, path)
		sources = append(sources, clip.ResultURL)

		progress := 10 + int(math.Round(float64(i+1)/float64(len(clips))*50))
		m.update(j, func(st *Status) {
			st.Progress = max(st.Progress, progress)
			st.Message = fmt.Sprintf("Downloaded clip %d of %d", i+1, len(clips))
		})
	}

	m.update(j, func(st *Status) {
		st.State = StateAssembling
		st.Progress = max(st.Progress, 60)
		st.Message = "Assembling clips"
	})

	output, err := m.storage.ReserveTemp(ctx, j.campaignID+".mp4")
	if err != nil {
		return nil, fmt.Errorf("%w: reserve output: %w", ErrStitch, err)
	}

	err = processor.JoinVideos(ctx, *downloads, output, func(fraction float64) {
		progress := 60 + int(math.Round(min(max(fraction, 0), 1)*40))
		m.update(j, func(st *Status) {
			st.Progress = max(st.Progress, progress)
		})
	})
	if err != nil {
		_ = m.storage.CleanupTemp(context.WithoutCancel(ctx), []string{output})
		return nil, fmt.Errorf("%w: assemble: %w", ErrStitch, err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return nil, fmt.Errorf("%w: stat output: %w", ErrStitch, err)
	}

	artifact := &Artifact{
		Path:      output,
		Filename:  j.campaignID + ".mp4",
		Sources:   sources,
		Size:      info.Size(),
		CreatedAt: m.now(),
	}
	if m.publish {
		artifact.URL = m.publishArtifact(ctx, artifact)
	}
	return artifact, nil
}

// download fetches a clip result into temporary storage.
func (m *Manager) download(ctx context.Context, clip production.Clip) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clip.ResultURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch result: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch result: unexpected status %d", resp.StatusCode)
	}

	return m.storage.SaveTemp(ctx, "scene_"+clip.ID+".mp4", resp.Body)
}

// publishArtifact uploads the artifact and returns its URL. Failures are
// logged and leave the local artifact available.
func (m *Manager) publishArtifact(ctx context.Context, a *Artifact) string {
	f, err := m.storage.LoadTemp(ctx, a.Path)
	if err != nil {
		m.logger.Warn("failed to open artifact for publishing", slog.String("error", err.Error()))
		return ""
	}
	defer func() { _ = f.Close() }()

	url, err := m.storage.Publish(ctx, "renders/"+a.Filename, f, a.Size, "video/mp4")
	if err != nil {
		if !errors.Is(err, storage.ErrPublishNotConfigured) {
			m.logger.Warn("failed to publish artifact",
				slog.String("filename", a.Filename),
				slog.String("error", err.Error()),
			)
		}
		return ""
	}
	return url
}

func (m *Manager) fail(j *job, err error) {
	m.logger.Error("stitch failed",
		slog.String("campaign_id", j.campaignID),
		slog.String("error", err.Error()),
	)
	m.update(j, func(st *Status) {
		st.State = StateError
		st.Error = err.Error()
		st.Message = "Stitching failed"
	})
}

// update applies fn to the job status and notifies subscribers. It returns
// false when the job was forgotten.
func (m *Manager) update(j *job, fn func(st *Status)) bool {
	m.mu.Lock()
	if m.jobs[j.campaignID] != j {
		m.mu.Unlock()
		return false
	}
	prev := j.status
	fn(&j.status)
	if j.status.Progress == prev.Progress && j.status.State == prev.State && j.status.Message == prev.Message {
		m.mu.Unlock()
		return true
	}
	j.status.UpdatedAt = m.now()
	st := j.status.clone()
	m.mu.Unlock()

	m.emit(st.CampaignID, st)
	return true
}

func (m *Manager) emit(campaignID string, st Status) {
	if m.notify != nil {
		m.notify(campaignID, st)
	}
}

func (s Status) clone() Status {
	if s.Artifact != nil {
		a := *s.Artifact
		a.Sources = append([]string(nil), s.Artifact.Sources...)
		s.Artifact = &a
	}
	return s
}

// Compile-time check that the ffmpeg processor satisfies the assembly contract.
var _ media.Processor = (*media.FFmpegProcessor)(nil)
