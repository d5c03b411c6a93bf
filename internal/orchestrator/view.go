package orchestrator

import (
	"time"

	"github.com/maauso/clipline/internal/production"
)

// ClipView is the read model of a clip.
type ClipView struct {
	ID        string               `json:"clipId"`
	Prompt    string               `json:"prompt"`
	JobID     string               `json:"jobId,omitempty"`
	Status    production.Status    `json:"status"`
	ResultURL string               `json:"resultUrl,omitempty"`
	Error     string               `json:"error,omitempty"`
	Attempts  int                  `json:"attempts"`
	Readiness production.Readiness `json:"readiness,omitempty"`
	// Stale is set when the clip has been processing longer than the stale threshold.
	Stale       bool       `json:"stale,omitempty"`
	DependsOn   []string   `json:"dependsOn,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ProductionView is the read model of a production.
type ProductionView struct {
	CampaignID  string          `json:"campaignId"`
	Kind        production.Kind `json:"kind"`
	Style       string          `json:"styleConfig,omitempty"`
	Clips       []ClipView      `json:"clips"`
	Outstanding int             `json:"outstanding"`
	Complete    bool            `json:"complete"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastUpdate  time.Time       `json:"lastUpdate"`
}

// NewProductionView builds the read model of p as of now.
func NewProductionView(p *production.Production, now time.Time, staleAfter time.Duration) ProductionView {
	return ProductionView{
		CampaignID:  p.CampaignID,
		Kind:        p.Kind,
		Style:       p.Style,
		Clips:       clipViews(p, now, staleAfter),
		Outstanding: len(p.Outstanding()),
		Complete:    p.AllSucceeded(),
		CreatedAt:   p.CreatedAt,
		LastUpdate:  p.LastUpdate,
	}
}

func clipViews(p *production.Production, now time.Time, staleAfter time.Duration) []ClipView {
	views := make([]ClipView, len(p.Clips))
	for i, c := range p.Clips {
		v := ClipView{
			ID:        c.ID,
			Prompt:    c.Prompt,
			JobID:     c.JobID,
			Status:    c.Status,
			ResultURL: c.ResultURL,
			Error:     c.Error,
			Attempts:  c.Attempts,
			Stale:     c.IsStale(now, staleAfter),
			DependsOn: p.Deps[c.ID],
		}
		if c.Status == production.StatusPending {
			v.Readiness = p.Readiness(c.ID)
		}
		if !c.SubmittedAt.IsZero() {
			t := c.SubmittedAt
			v.SubmittedAt = &t
		}
		if !c.CompletedAt.IsZero() {
			t := c.CompletedAt
			v.CompletedAt = &t
		}
		views[i] = v
	}
	return views
}
