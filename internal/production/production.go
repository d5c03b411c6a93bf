// Package production provides the Production aggregate for AI media campaigns.
// It includes the Clip state machine, the dependency rules that decide when a
// clip may launch, and the store that holds every in-flight production.
package production

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Kind distinguishes ordered (video) from unordered (image) productions.
type Kind string

const (
	// KindVideo is a multi-scene video; clips launch in dependency order.
	KindVideo Kind = "video"
	// KindImage is a multi-image set; clips have no ordering precondition.
	KindImage Kind = "image"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindVideo || k == KindImage
}

// Status represents the current state of a Clip.
type Status string

const (
	// StatusPending indicates the clip has no job and waits for the sequencer.
	StatusPending Status = "PENDING"
	// StatusStarting indicates the clip is claimed and its job is being submitted.
	StatusStarting Status = "STARTING"
	// StatusProcessing indicates the remote job was accepted and is running.
	StatusProcessing Status = "PROCESSING"
	// StatusSucceeded indicates the remote job produced a result.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates submission or the remote job failed.
	StatusFailed Status = "FAILED"
)

// Static errors for production operations.
var (
	// ErrInvalidTransition is returned when a clip transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrProductionNotFound is returned when no production has the campaign ID.
	ErrProductionNotFound = errors.New("production not found")
	// ErrProductionExists is returned when registering a duplicate campaign ID.
	ErrProductionExists = errors.New("production already registered")
	// ErrClipNotFound is returned when a clip ID is unknown in its production.
	ErrClipNotFound = errors.New("clip not found")
	// ErrInvalidProduction is returned when registration input is malformed.
	ErrInvalidProduction = errors.New("invalid production")
)

// validTransitions defines which clip transitions are allowed.
// FAILED -> PENDING is reserved for an explicit retry.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusStarting},
	StatusStarting:   {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusSucceeded, StatusFailed},
	StatusSucceeded:  {},
	StatusFailed:     {StatusPending},
}

// CanTransition checks if a transition from one status to another is valid.
// A same-status write is always allowed so that label refinements do not fail.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return slices.Contains(validTransitions[from], to)
}

// IsTerminal returns true for SUCCEEDED and FAILED.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Readiness describes why a pending clip has or has not launched yet.
type Readiness string

const (
	// ReadinessReady means every dependency succeeded.
	ReadinessReady Readiness = "ready"
	// ReadinessWaiting means some dependency is still in flight or pending.
	ReadinessWaiting Readiness = "waiting"
	// ReadinessBlocked means some dependency failed and needs a retry.
	ReadinessBlocked Readiness = "blocked"
)

// Clip is one schedulable unit of generation work.
type Clip struct {
	// ID is the scene number or image slot, unique within the production.
	ID string
	// Prompt is handed verbatim to the job gateway.
	Prompt string
	// JobID is the external job handle; empty when no job exists.
	JobID string
	// Status is the current lifecycle state.
	Status Status
	// ResultURL is set only when Status is SUCCEEDED.
	ResultURL string
	// Error is a human-readable reason when Status is FAILED.
	Error string
	// Attempts counts submissions, including retries.
	Attempts int
	// SubmittedAt is when the current job was accepted.
	SubmittedAt time.Time
	// CompletedAt is when the current job reached a terminal state.
	CompletedAt time.Time
}

// Production is one in-flight generation campaign.
type Production struct {
	CampaignID string
	Kind       Kind
	// Style is an opaque configuration blob passed through to submission.
	Style string
	Clips []Clip
	// Deps maps a clip ID to the clip IDs that must succeed before it launches.
	Deps       map[string][]string
	CreatedAt  time.Time
	LastUpdate time.Time
}

// ClipSpec is the registration input for a single clip.
type ClipSpec struct {
	ID        string
	Prompt    string
	DependsOn []string
}

// New builds a Production from clip specs. Video productions without explicit
// dependencies get a linear chain in clip order; image productions get none
// unless the caller declares them.
func New(campaignID string, kind Kind, style string, specs []ClipSpec) (*Production, error) {
	if campaignID == "" {
		return nil, fmt.Errorf("%w: campaign ID is required", ErrInvalidProduction)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidProduction, kind)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one clip is required", ErrInvalidProduction)
	}

	explicit := false
	for _, s := range specs {
		if len(s.DependsOn) > 0 {
			explicit = true
			break
		}
	}

	now := time.Now()
	p := &Production{
		CampaignID: campaignID,
		Kind:       kind,
		Style:      style,
		Clips:      make([]Clip, 0, len(specs)),
		Deps:       make(map[string][]string, len(specs)),
		CreatedAt:  now,
		LastUpdate: now,
	}
	for i, s := range specs {
		p.Clips = append(p.Clips, Clip{ID: s.ID, Prompt: s.Prompt, Status: StatusPending})
		switch {
		case explicit:
			if len(s.DependsOn) > 0 {
				p.Deps[s.ID] = slices.Clone(s.DependsOn)
			}
		case kind == KindVideo && i > 0:
			p.Deps[s.ID] = []string{specs[i-1].ID}
		}
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate checks clip IDs and the dependency graph.
func (p *Production) validate() error {
	index := make(map[string]int, len(p.Clips))
	for i, c := range p.Clips {
		if c.ID == "" {
			return fmt.Errorf("%w: clip ID is required", ErrInvalidProduction)
		}
		if _, dup := index[c.ID]; dup {
			return fmt.Errorf("%w: duplicate clip ID %s", ErrInvalidProduction, c.ID)
		}
		index[c.ID] = i
	}
	for id, deps := range p.Deps {
		for _, d := range deps {
			if _, ok := index[d]; !ok {
				return fmt.Errorf("%w: clip %s depends on unknown clip %s", ErrInvalidProduction, id, d)
			}
			if d == id {
				return fmt.Errorf("%w: clip %s depends on itself", ErrInvalidProduction, id)
			}
		}
	}
	if hasCycle(p.Clips, p.Deps) {
		return fmt.Errorf("%w: dependency cycle", ErrInvalidProduction)
	}
	return nil
}

// hasCycle runs Kahn's algorithm over the dependency graph.
func hasCycle(clips []Clip, deps map[string][]string) bool {
	indegree := make(map[string]int, len(clips))
	dependents := make(map[string][]string, len(clips))
	for _, c := range clips {
		indegree[c.ID] = len(deps[c.ID])
		for _, d := range deps[c.ID] {
			dependents[d] = append(dependents[d], c.ID)
		}
	}
	queue := make([]string, 0, len(clips))
	for _, c := range clips {
		if indegree[c.ID] == 0 {
			queue = append(queue, c.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return visited != len(clips)
}

// ClipIndex returns the position of a clip, or -1.
func (p *Production) ClipIndex(clipID string) int {
	for i := range p.Clips {
		if p.Clips[i].ID == clipID {
			return i
		}
	}
	return -1
}

// HasStarting returns true if any clip is currently claimed for submission.
func (p *Production) HasStarting() bool {
	for _, c := range p.Clips {
		if c.Status == StatusStarting {
			return true
		}
	}
	return false
}

// Readiness reports whether the clip's dependencies allow it to launch. A
// clip is blocked when any clip upstream of it, directly or through pending
// dependencies, has FAILED.
func (p *Production) Readiness(clipID string) Readiness {
	return p.readiness(clipID, make(map[string]Readiness))
}

func (p *Production) readiness(clipID string, memo map[string]Readiness) Readiness {
	if r, ok := memo[clipID]; ok {
		return r
	}
	r := ReadinessReady
	for _, d := range p.Deps[clipID] {
		i := p.ClipIndex(d)
		if i < 0 {
			continue
		}
		switch p.Clips[i].Status {
		case StatusSucceeded:
		case StatusFailed:
			r = ReadinessBlocked
		case StatusPending:
			if p.readiness(d, memo) == ReadinessBlocked {
				r = ReadinessBlocked
			} else {
				r = ReadinessWaiting
			}
		default:
			r = ReadinessWaiting
		}
		if r == ReadinessBlocked {
			break
		}
	}
	memo[clipID] = r
	return r
}

// NextEligible returns the index of the first PENDING clip whose dependencies
// have all succeeded, or -1. No clip is eligible while another is STARTING.
func (p *Production) NextEligible() int {
	if p.HasStarting() {
		return -1
	}
	for i, c := range p.Clips {
		if c.Status == StatusPending && p.Readiness(c.ID) == ReadinessReady {
			return i
		}
	}
	return -1
}

// Outstanding returns clipID -> jobID for every clip with a live remote job.
func (p *Production) Outstanding() map[string]string {
	out := make(map[string]string)
	for _, c := range p.Clips {
		if c.JobID != "" && c.Status == StatusProcessing {
			out[c.ID] = c.JobID
		}
	}
	return out
}

// AllSucceeded returns true if every clip has a result.
func (p *Production) AllSucceeded() bool {
	for _, c := range p.Clips {
		if c.Status != StatusSucceeded {
			return false
		}
	}
	return len(p.Clips) > 0
}

// IsStale returns true if the clip has been processing longer than after.
func (c Clip) IsStale(now time.Time, after time.Duration) bool {
	if after <= 0 || c.Status != StatusProcessing || c.SubmittedAt.IsZero() {
		return false
	}
	return now.Sub(c.SubmittedAt) > after
}

// checkInvariants verifies a proposed clip state before it is committed.
func checkInvariants(c Clip) error {
	switch c.Status {
	case StatusPending:
		if c.JobID != "" || c.ResultURL != "" {
			return ErrInvalidTransition
		}
	case StatusProcessing:
		if c.JobID == "" {
			return ErrInvalidTransition
		}
	case StatusSucceeded:
		if c.ResultURL == "" {
			return ErrInvalidTransition
		}
	}
	if c.Status != StatusSucceeded && c.ResultURL != "" {
		return ErrInvalidTransition
	}
	return nil
}

// Clone creates a deep copy of the production for safe reads.
func (p *Production) Clone() *Production {
	clips := make([]Clip, len(p.Clips))
	copy(clips, p.Clips)

	deps := make(map[string][]string, len(p.Deps))
	for k, v := range p.Deps {
		deps[k] = slices.Clone(v)
	}

	return &Production{
		CampaignID: p.CampaignID,
		Kind:       p.Kind,
		Style:      p.Style,
		Clips:      clips,
		Deps:       deps,
		CreatedAt:  p.CreatedAt,
		LastUpdate: p.LastUpdate,
	}
}
