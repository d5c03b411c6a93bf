package production

import (
	"errors"
	"testing"
	"time"
)

func videoSpecs(ids ...string) []ClipSpec {
	specs := make([]ClipSpec, 0, len(ids))
	for _, id := range ids {
		specs = append(specs, ClipSpec{ID: id, Prompt: "prompt " + id})
	}
	return specs
}

func TestNew_VideoLinearChain(t *testing.T) {
	p, err := New("camp-1", KindVideo, "cinematic", videoSpecs("s0", "s1", "s2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(p.Clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(p.Clips))
	}
	for _, c := range p.Clips {
		if c.Status != StatusPending {
			t.Errorf("expected clip %s PENDING, got %s", c.ID, c.Status)
		}
		if c.JobID != "" {
			t.Errorf("expected clip %s without job, got %s", c.ID, c.JobID)
		}
	}
	if deps := p.Deps["s0"]; len(deps) != 0 {
		t.Errorf("expected s0 without deps, got %v", deps)
	}
	if deps := p.Deps["s2"]; len(deps) != 1 || deps[0] != "s1" {
		t.Errorf("expected s2 to depend on s1, got %v", deps)
	}
}

func TestNew_ImageHasNoDeps(t *testing.T) {
	p, err := New("camp-1", KindImage, "", videoSpecs("square", "vertical"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Deps) != 0 {
		t.Errorf("expected no deps, got %v", p.Deps)
	}
}

func TestNew_ExplicitDeps(t *testing.T) {
	specs := []ClipSpec{
		{ID: "intro"},
		{ID: "a", DependsOn: []string{"intro"}},
		{ID: "b", DependsOn: []string{"intro"}},
		{ID: "outro", DependsOn: []string{"a", "b"}},
	}
	p, err := New("camp-1", KindVideo, "", specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Deps["b"]) != 1 || p.Deps["b"][0] != "intro" {
		t.Errorf("expected b to depend only on intro, got %v", p.Deps["b"])
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		campaignID string
		kind       Kind
		specs      []ClipSpec
	}{
		{"empty campaign", "", KindVideo, videoSpecs("s0")},
		{"unknown kind", "c", Kind("audio"), videoSpecs("s0")},
		{"no clips", "c", KindVideo, nil},
		{"empty clip id", "c", KindVideo, videoSpecs("")},
		{"duplicate clip id", "c", KindImage, videoSpecs("a", "a")},
		{"unknown dependency", "c", KindVideo, []ClipSpec{{ID: "a", DependsOn: []string{"zzz"}}}},
		{"self dependency", "c", KindVideo, []ClipSpec{{ID: "a", DependsOn: []string{"a"}}}},
		{"cycle", "c", KindVideo, []ClipSpec{
			{ID: "a", DependsOn: []string{"b"}},
			{ID: "b", DependsOn: []string{"a"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.campaignID, tt.kind, "", tt.specs)
			if !errors.Is(err, ErrInvalidProduction) {
				t.Errorf("expected ErrInvalidProduction, got %v", err)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"PENDING to STARTING", StatusPending, StatusStarting, true},
		{"STARTING to PROCESSING", StatusStarting, StatusProcessing, true},
		{"STARTING to FAILED", StatusStarting, StatusFailed, true},
		{"PROCESSING to SUCCEEDED", StatusProcessing, StatusSucceeded, true},
		{"PROCESSING to FAILED", StatusProcessing, StatusFailed, true},
		{"FAILED to PENDING", StatusFailed, StatusPending, true},
		{"same status", StatusProcessing, StatusProcessing, true},
		// Invalid transitions
		{"PENDING to PROCESSING", StatusPending, StatusProcessing, false},
		{"PENDING to SUCCEEDED", StatusPending, StatusSucceeded, false},
		{"SUCCEEDED to PENDING", StatusSucceeded, StatusPending, false},
		{"SUCCEEDED to FAILED", StatusSucceeded, StatusFailed, false},
		{"FAILED to PROCESSING", StatusFailed, StatusProcessing, false},
		{"PROCESSING to PENDING", StatusProcessing, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusStarting, false},
		{StatusProcessing, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestProduction_NextEligible_Video(t *testing.T) {
	p, _ := New("c", KindVideo, "", videoSpecs("s0", "s1", "s2"))

	if got := p.NextEligible(); got != 0 {
		t.Fatalf("expected s0 eligible, got %d", got)
	}

	p.Clips[0].Status = StatusProcessing
	p.Clips[0].JobID = "job-0"
	if got := p.NextEligible(); got != -1 {
		t.Errorf("expected nothing eligible while s0 processing, got %d", got)
	}

	p.Clips[0].Status = StatusSucceeded
	p.Clips[0].ResultURL = "https://cdn/s0.mp4"
	if got := p.NextEligible(); got != 1 {
		t.Errorf("expected s1 eligible, got %d", got)
	}

	p.Clips[1].Status = StatusStarting
	if got := p.NextEligible(); got != -1 {
		t.Errorf("expected nothing eligible while s1 starting, got %d", got)
	}
}

func TestProduction_NextEligible_Image(t *testing.T) {
	p, _ := New("c", KindImage, "", videoSpecs("i0", "i1"))

	p.Clips[0].Status = StatusProcessing
	p.Clips[0].JobID = "job-0"
	if got := p.NextEligible(); got != 1 {
		t.Errorf("expected i1 eligible regardless of i0, got %d", got)
	}
}

func TestProduction_Readiness(t *testing.T) {
	p, _ := New("c", KindVideo, "", videoSpecs("s0", "s1", "s2", "s3"))

	if got := p.Readiness("s0"); got != ReadinessReady {
		t.Errorf("expected s0 ready, got %s", got)
	}
	if got := p.Readiness("s1"); got != ReadinessWaiting {
		t.Errorf("expected s1 waiting, got %s", got)
	}

	p.Clips[0].Status = StatusSucceeded
	p.Clips[1].Status = StatusFailed
	if got := p.Readiness("s2"); got != ReadinessBlocked {
		t.Errorf("expected s2 blocked by failed s1, got %s", got)
	}
	if got := p.Readiness("s3"); got != ReadinessBlocked {
		t.Errorf("expected s3 blocked through pending s2, got %s", got)
	}

	p.Clips[1].Status = StatusProcessing
	if got := p.Readiness("s3"); got != ReadinessWaiting {
		t.Errorf("expected s3 waiting once s1 is in flight, got %s", got)
	}
}

func TestProduction_Outstanding(t *testing.T) {
	p, _ := New("c", KindImage, "", videoSpecs("a", "b", "c"))
	p.Clips[0].Status = StatusProcessing
	p.Clips[0].JobID = "job-a"
	p.Clips[1].Status = StatusSucceeded
	p.Clips[1].JobID = "job-b"

	out := p.Outstanding()
	if len(out) != 1 || out["a"] != "job-a" {
		t.Errorf("expected only a outstanding, got %v", out)
	}
}

func TestProduction_AllSucceeded(t *testing.T) {
	p, _ := New("c", KindVideo, "", videoSpecs("s0", "s1"))
	if p.AllSucceeded() {
		t.Error("expected AllSucceeded false for pending clips")
	}
	for i := range p.Clips {
		p.Clips[i].Status = StatusSucceeded
	}
	if !p.AllSucceeded() {
		t.Error("expected AllSucceeded true")
	}
}

func TestClip_IsStale(t *testing.T) {
	now := time.Now()
	c := Clip{Status: StatusProcessing, SubmittedAt: now.Add(-10 * time.Minute)}

	if !c.IsStale(now, 5*time.Minute) {
		t.Error("expected clip processing for 10m to be stale after 5m")
	}
	if c.IsStale(now, 0) {
		t.Error("expected staleness disabled with zero threshold")
	}
	c.Status = StatusSucceeded
	if c.IsStale(now, 5*time.Minute) {
		t.Error("expected succeeded clip never stale")
	}
}

func TestProduction_Clone(t *testing.T) {
	p, _ := New("c", KindVideo, "", videoSpecs("s0", "s1"))

	clone := p.Clone()

	if clone.CampaignID != p.CampaignID {
		t.Errorf("expected CampaignID %s, got %s", p.CampaignID, clone.CampaignID)
	}

	// Verify clips are independent
	clone.Clips[0].Status = StatusFailed
	if p.Clips[0].Status == StatusFailed {
		t.Error("modifying clone clips should not affect original")
	}

	// Verify deps are independent
	clone.Deps["s1"][0] = "other"
	if p.Deps["s1"][0] != "s0" {
		t.Error("modifying clone deps should not affect original")
	}
}
