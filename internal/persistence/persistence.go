// Package persistence saves finished clip results and outstanding job handles
// so that a restarted process can resume polling.
package persistence

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
)

// ErrCampaignIDRequired is returned when a save is attempted without a campaign ID.
var ErrCampaignIDRequired = errors.New("persistence: campaign ID is required")

// Saver defines the persistence collaborator of the pipeline.
// Both operations must be idempotent: the same call may be delivered more than once.
type Saver interface {
	// SaveClipResult records the output URL of a succeeded clip.
	SaveClipResult(ctx context.Context, campaignID, clipID, resultURL string) error

	// SaveOutstandingJobs replaces the set of clipID -> jobID pairs still running.
	// A call whose version is not newer than the stored one is a no-op.
	SaveOutstandingJobs(ctx context.Context, campaignID string, version int64, jobs map[string]string) error
}

// LogSaver is a Saver that only logs. It is used when no database is configured.
type LogSaver struct {
	logger *slog.Logger
}

// NewLogSaver creates a new log-only saver.
func NewLogSaver(logger *slog.Logger) *LogSaver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSaver{logger: logger}
}

// SaveClipResult logs the clip result.
func (s *LogSaver) SaveClipResult(_ context.Context, campaignID, clipID, resultURL string) error {
	if campaignID == "" {
		return ErrCampaignIDRequired
	}
	s.logger.Info("clip result saved",
		slog.String("campaign_id", campaignID),
		slog.String("clip_id", clipID),
		slog.String("result_url", resultURL),
	)
	return nil
}

// SaveOutstandingJobs logs the outstanding job set.
func (s *LogSaver) SaveOutstandingJobs(_ context.Context, campaignID string, version int64, jobs map[string]string) error {
	if campaignID == "" {
		return ErrCampaignIDRequired
	}
	s.logger.Info("outstanding jobs saved",
		slog.String("campaign_id", campaignID),
		slog.Int64("version", version),
		slog.Int("count", len(jobs)),
		slog.Any("clip_ids", slices.Sorted(maps.Keys(jobs))),
	)
	return nil
}

// Compile-time check that LogSaver implements Saver.
var _ Saver = (*LogSaver)(nil)
