// Package media provides the video assembly operations used by the stitcher.
package media

import "context"

// ProgressFunc receives the fraction (0..1) of the output written so far.
type ProgressFunc func(fraction float64)

// Processor defines the interface for video assembly operations.
// Implementations should use ffmpeg or similar tools for media manipulation.
type Processor interface {
	// JoinVideos concatenates multiple video files into a single output file.
	// It first attempts a fast copy (no re-encoding) and falls back to re-encoding
	// with libx264/aac if the copy fails due to incompatible codecs.
	// progress may be nil.
	JoinVideos(ctx context.Context, videoPaths []string, output string, progress ProgressFunc) error

	// GetMediaDuration returns the duration in seconds of a media file.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}
