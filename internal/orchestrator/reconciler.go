package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipline/internal/gateway"
	"github.com/maauso/clipline/internal/outbox"
	"github.com/maauso/clipline/internal/production"
)

// outstandingJob identifies a clip with a live remote job.
type outstandingJob struct {
	campaignID string
	clipID     string
	jobID      string
}

// reconcile polls every PROCESSING clip and applies terminal results. Poll
// errors leave the clip untouched until the next tick.
func (o *Orchestrator) reconcile(ctx context.Context, prods []*production.Production) {
	now := o.now()
	live := make(map[string]struct{})
	byProduction := make(map[string][]outstandingJob)
	for _, p := range prods {
		for _, c := range p.Clips {
			if c.Status != production.StatusProcessing || c.JobID == "" {
				continue
			}
			byProduction[p.CampaignID] = append(byProduction[p.CampaignID], outstandingJob{
				campaignID: p.CampaignID,
				clipID:     c.ID,
				jobID:      c.JobID,
			})
			live[c.JobID] = struct{}{}
			o.warnIfStale(p.CampaignID, c, now)
		}
	}
	for id := range o.staleWarned {
		if _, ok := live[id]; !ok {
			delete(o.staleWarned, id)
		}
	}
	if len(byProduction) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(o.maxPolls)

	if batch, ok := o.gateway.(gateway.BatchPoller); ok {
		for _, jobs := range byProduction {
			g.Go(func() error {
				o.pollBatch(ctx, batch, jobs)
				return nil
			})
		}
	} else {
		for _, jobs := range byProduction {
			for _, j := range jobs {
				g.Go(func() error {
					o.pollOne(ctx, j)
					return nil
				})
			}
		}
	}
	_ = g.Wait()
}

func (o *Orchestrator) pollOne(ctx context.Context, j outstandingJob) {
	res, err := o.gateway.Poll(ctx, j.jobID)
	if err != nil {
		o.logPollError(j, err)
		return
	}
	o.apply(ctx, j, res)
}

func (o *Orchestrator) pollBatch(ctx context.Context, batch gateway.BatchPoller, jobs []outstandingJob) {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.jobID
	}

	results, err := batch.PollMany(ctx, ids)
	if err != nil {
		for _, j := range jobs {
			o.logPollError(j, err)
		}
		return
	}

	for _, j := range jobs {
		res, ok := results[j.jobID]
		if !ok {
			o.logPollError(j, gateway.ErrPollTransient)
			continue
		}
		o.apply(ctx, j, res)
	}
}

func (o *Orchestrator) logPollError(j outstandingJob, err error) {
	o.logger.Warn("failed to poll job",
		slog.String("campaign_id", j.campaignID),
		slog.String("clip_id", j.clipID),
		slog.String("job_id", j.jobID),
		slog.String("error", err.Error()),
	)
}

// apply transitions the clip when res is terminal. The clip must still be
// PROCESSING the same job, so a result is applied at most once per job.
func (o *Orchestrator) apply(ctx context.Context, j outstandingJob, res gateway.PollResult) {
	if !res.Status.IsTerminal() {
		return
	}

	log := o.logger.With(
		slog.String("campaign_id", j.campaignID),
		slog.String("clip_id", j.clipID),
		slog.String("job_id", j.jobID),
	)
	failure := res.Err()
	now := o.now()

	snap, err := o.store.Mutate(ctx, j.campaignID, j.clipID, func(c *production.Clip) error {
		if c.Status != production.StatusProcessing || c.JobID != j.jobID {
			return errStale
		}
		c.CompletedAt = now
		if failure != nil {
			c.Status = production.StatusFailed
			c.Error = failure.Error()
			return nil
		}
		c.Status = production.StatusSucceeded
		c.ResultURL = res.ResultURL
		c.Error = ""
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStale) && !errors.Is(err, production.ErrProductionNotFound) {
			log.Warn("failed to apply job result", slog.String("error", err.Error()))
		}
		return
	}

	if failure != nil {
		log.Error("job failed", slog.String("error", failure.Error()))
	} else {
		log.Info("job succeeded", slog.String("result_url", res.ResultURL))
		o.publish(ctx, outbox.NewClipResult(j.campaignID, j.clipID, j.jobID, res.ResultURL))
	}
	o.notify(EventClipUpdated, snap)
}

// warnIfStale logs once per job when a clip has been processing too long.
// Staleness never fails the clip.
func (o *Orchestrator) warnIfStale(campaignID string, c production.Clip, now time.Time) {
	if !c.IsStale(now, o.staleAfter) {
		return
	}
	if _, ok := o.staleWarned[c.JobID]; ok {
		return
	}
	o.staleWarned[c.JobID] = struct{}{}
	o.logger.Warn("job is taking longer than expected",
		slog.String("campaign_id", campaignID),
		slog.String("clip_id", c.ID),
		slog.String("job_id", c.JobID),
		slog.Duration("processing_for", now.Sub(c.SubmittedAt)),
	)
}
