// Package stitch assembles the succeeded clips of a video production into a
// single downloadable artifact and reports coarse progress while doing so.
package stitch

import (
	"context"
	"errors"
	"time"

	"github.com/maauso/clipline/internal/media"
	"github.com/maauso/clipline/internal/production"
)

// State is a phase of the stitch state machine.
type State string

const (
	// StateIdle means no assembly is running or kept.
	StateIdle State = "idle"
	// StateLoadingTool means the media tool is being resolved.
	StateLoadingTool State = "loading_tool"
	// StateDownloading means clip results are being fetched.
	StateDownloading State = "downloading"
	// StateAssembling means the clips are being concatenated.
	StateAssembling State = "assembling"
	// StateDone means the artifact is ready.
	StateDone State = "done"
	// StateError means the last attempt failed and needs a reset.
	StateError State = "error"
)

// IsActive returns true while an assembly is in progress.
func (s State) IsActive() bool {
	return s == StateLoadingTool || s == StateDownloading || s == StateAssembling
}

// Static errors for stitch operations.
var (
	// ErrBusy is returned when an assembly is in progress or a result has not been reset.
	ErrBusy = errors.New("stitch already in progress")
	// ErrNotReady is returned when some clip has not succeeded yet.
	ErrNotReady = errors.New("production is not ready to stitch")
	// ErrNotStitchable is returned for image productions.
	ErrNotStitchable = errors.New("only video productions can be stitched")
	// ErrStitch wraps download and assembly failures.
	ErrStitch = errors.New("stitch failed")
	// ErrNoArtifact is returned when no finished artifact exists.
	ErrNoArtifact = errors.New("no stitched artifact available")
)

// Artifact is the assembled output of a production.
type Artifact struct {
	Path     string   `json:"-"`
	Filename string   `json:"filename"`
	Sources  []string `json:"sources"`
	Size     int64    `json:"size"`
	// URL is set when the artifact was published to object storage.
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Status is a point-in-time view of a production's stitch state.
type Status struct {
	CampaignID string    `json:"campaignId"`
	State      State     `json:"state"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	Artifact   *Artifact `json:"artifact,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ProductionSource returns production snapshots.
type ProductionSource interface {
	Get(ctx context.Context, campaignID string) (*production.Production, error)
}

// ToolLoader resolves the media processor used for assembly.
type ToolLoader func(ctx context.Context) (media.Processor, error)

// FFmpegLoader returns a ToolLoader that resolves ffmpeg at the given path,
// or on PATH when ffmpegPath is empty.
func FFmpegLoader(ffmpegPath string) ToolLoader {
	return func(_ context.Context) (media.Processor, error) {
		resolved, err := media.Locate(ffmpegPath)
		if err != nil {
			return nil, err
		}
		return media.NewFFmpegProcessor(resolved), nil
	}
}
