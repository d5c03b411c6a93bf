// Package outbox decouples state transitions from the persistence collaborator.
// The orchestrator publishes intents; a worker delivers them to a
// persistence.Saver with retry so that a slow or failing database never
// blocks polling.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/clipline/internal/persistence"
)

// ErrUnknownKind is returned when an intent has an unsupported kind.
var ErrUnknownKind = errors.New("outbox: unknown intent kind")

// Kind identifies the persistence operation an intent stands for.
type Kind string

const (
	// KindClipResult saves the result URL of a clip that just succeeded.
	KindClipResult Kind = "clip_result"
	// KindOutstandingJobs saves the running job set of a production.
	KindOutstandingJobs Kind = "outstanding_jobs"
)

// Intent is a pending persistence call.
type Intent struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	CampaignID string            `json:"campaign_id"`
	ClipID     string            `json:"clip_id,omitempty"`
	JobID      string            `json:"job_id,omitempty"`
	ResultURL  string            `json:"result_url,omitempty"`
	Jobs       map[string]string `json:"jobs,omitempty"`
	Version    int64             `json:"version,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

var lastVersion atomic.Int64

// nextVersion returns a strictly increasing number derived from the wall clock,
// so snapshots taken after a restart still order after earlier ones.
func nextVersion(now time.Time) int64 {
	v := now.UnixNano()
	for {
		last := lastVersion.Load()
		if v <= last {
			v = last + 1
		}
		if lastVersion.CompareAndSwap(last, v) {
			return v
		}
	}
}

// NewClipResult builds a clip result intent. Its ID is derived from the job so
// that duplicate publications for the same job collapse.
func NewClipResult(campaignID, clipID, jobID, resultURL string) Intent {
	return Intent{
		ID:         fmt.Sprintf("%s:%s:%s:%s", KindClipResult, campaignID, clipID, jobID),
		Kind:       KindClipResult,
		CampaignID: campaignID,
		ClipID:     clipID,
		JobID:      jobID,
		ResultURL:  resultURL,
		CreatedAt:  time.Now(),
	}
}

// NewOutstandingJobs builds an outstanding jobs intent from a snapshot of the job set.
// Each snapshot carries a version so that a late delivery of an older snapshot
// cannot overwrite a newer one.
func NewOutstandingJobs(campaignID string, jobs map[string]string) Intent {
	now := time.Now()
	return Intent{
		ID:         fmt.Sprintf("%s:%s:%s", KindOutstandingJobs, campaignID, uuid.NewString()),
		Kind:       KindOutstandingJobs,
		CampaignID: campaignID,
		Jobs:       maps.Clone(jobs),
		Version:    nextVersion(now),
		CreatedAt:  now,
	}
}

// Publisher accepts intents for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, in Intent) error
}

// Deliver performs the persistence call described by the intent.
func Deliver(ctx context.Context, saver persistence.Saver, in Intent) error {
	switch in.Kind {
	case KindClipResult:
		return saver.SaveClipResult(ctx, in.CampaignID, in.ClipID, in.ResultURL)
	case KindOutstandingJobs:
		return saver.SaveOutstandingJobs(ctx, in.CampaignID, in.Version, in.Jobs)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}
}
