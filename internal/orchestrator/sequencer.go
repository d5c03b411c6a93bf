package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipline/internal/gateway"
	"github.com/maauso/clipline/internal/production"
)

// sequence launches at most one clip per production. Launches of different
// productions run concurrently up to maxSubmits.
func (o *Orchestrator) sequence(ctx context.Context, prods []*production.Production) {
	var g errgroup.Group
	g.SetLimit(o.maxSubmits)

	for _, p := range prods {
		idx := p.NextEligible()
		if idx < 0 {
			continue
		}
		g.Go(func() error {
			o.launch(ctx, p, p.Clips[idx])
			return nil
		})
	}
	_ = g.Wait()
}

// launch claims the clip, submits its job and records the outcome.
func (o *Orchestrator) launch(ctx context.Context, p *production.Production, clip production.Clip) {
	log := o.logger.With(
		slog.String("campaign_id", p.CampaignID),
		slog.String("clip_id", clip.ID),
	)

	snap, err := o.store.Mutate(ctx, p.CampaignID, clip.ID, func(c *production.Clip) error {
		if c.Status != production.StatusPending {
			return errStale
		}
		c.Status = production.StatusStarting
		c.Attempts++
		c.Error = ""
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStale) {
			log.Warn("failed to claim clip", slog.String("error", err.Error()))
		}
		return
	}
	o.notify(EventClipUpdated, snap)

	jobID, submitErr := o.gateway.Submit(ctx, gateway.SubmitRequest{
		CampaignID: p.CampaignID,
		ClipID:     clip.ID,
		Kind:       p.Kind,
		Prompt:     clip.Prompt,
		Style:      p.Style,
	})
	if submitErr == nil && jobID == "" {
		submitErr = fmt.Errorf("%w: empty job ID", gateway.ErrSubmission)
	}
	now := o.now()

	if submitErr != nil {
		log.Error("failed to submit job", slog.String("error", submitErr.Error()))
		snap, err = o.store.Mutate(ctx, p.CampaignID, clip.ID, func(c *production.Clip) error {
			if c.Status != production.StatusStarting {
				return errStale
			}
			c.Status = production.StatusFailed
			c.Error = submitErr.Error()
			c.CompletedAt = now
			return nil
		})
	} else {
		log.Info("job submitted", slog.String("job_id", jobID))
		snap, err = o.store.Mutate(ctx, p.CampaignID, clip.ID, func(c *production.Clip) error {
			if c.Status != production.StatusStarting {
				return errStale
			}
			c.Status = production.StatusProcessing
			c.JobID = jobID
			c.SubmittedAt = now
			c.CompletedAt = time.Time{}
			return nil
		})
	}
	if err != nil {
		if !errors.Is(err, errStale) && !errors.Is(err, production.ErrProductionNotFound) {
			log.Warn("failed to record submission", slog.String("error", err.Error()))
		}
		return
	}
	o.notify(EventClipUpdated, snap)
}
