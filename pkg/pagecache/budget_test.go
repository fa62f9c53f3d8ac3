package pagecache

import "testing"

func TestBudgetTracksUsage(t *testing.T) {
	b := NewBudget(1000)
	b.TrackWithPriority("page_cache", "page_0", 100, PriorityWarm)

	if got := b.TotalUsage(); got != 100 {
		t.Fatalf("total usage = %d, want 100", got)
	}
	if got := b.ComponentUsage("page_cache"); got != 100 {
		t.Fatalf("component usage = %d, want 100", got)
	}
}

func TestBudgetReleaseItem(t *testing.T) {
	b := NewBudget(1000)
	b.TrackWithPriority("page_cache", "page_0", 100, PriorityWarm)
	b.ReleaseItem("page_cache", "page_0")

	if got := b.TotalUsage(); got != 0 {
		t.Fatalf("total usage after release = %d, want 0", got)
	}
}

func TestBudgetIsExceeded(t *testing.T) {
	b := NewBudget(100)
	if b.IsExceeded() {
		t.Fatalf("fresh budget should not be exceeded")
	}
	b.TrackWithPriority("c", "k", 150, PriorityCold)
	if !b.IsExceeded() {
		t.Fatalf("expected budget to be exceeded after tracking 150/100")
	}
}

func TestBudgetIsUnderPressure(t *testing.T) {
	b := NewBudget(100)
	b.SetPressureThreshold(0.5)
	b.TrackWithPriority("c", "k", 60, PriorityCold)

	if !b.IsUnderPressure() {
		t.Fatalf("expected pressure at 60/100 with 0.5 threshold")
	}
}

func TestBudgetEvictionCandidatesOrderColdFirst(t *testing.T) {
	b := NewBudget(1000)
	b.TrackWithPriority("c", "hot", 10, PriorityHot)
	b.TrackWithPriority("c", "cold", 10, PriorityCold)
	b.TrackWithPriority("c", "warm", 10, PriorityWarm)

	candidates := b.EvictionCandidates("c", 15)
	if len(candidates) == 0 || candidates[0] != "cold" {
		t.Fatalf("expected cold item first, got %v", candidates)
	}
}

func TestBudgetRecordAccessPromotesPriority(t *testing.T) {
	b := NewBudget(1000)
	b.TrackWithPriority("c", "k", 10, PriorityCold)
	b.TrackWithPriority("c", "other", 10, PriorityCold)
	for i := 0; i < 10; i++ {
		b.RecordAccess("c", "k")
	}

	candidates := b.EvictionCandidates("c", 10)
	if len(candidates) != 1 || candidates[0] != "other" {
		t.Fatalf("expected promoted k to be passed over for cold other, got %v", candidates)
	}
}
