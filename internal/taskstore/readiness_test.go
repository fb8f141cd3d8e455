package taskstore

import (
	"slices"
	"testing"
	"time"
)

func TestReadiness(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	mustCreate(t, s, "done")
	mustComplete(t, s, "done")
	mustCreate(t, s, "open")
	mustCreate(t, s, "failed")
	if _, err := s.Claim("failed", "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition("failed", StatusFailed, TransitionOptions{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		deps       []string
		ready      bool
		missing    []string
		incomplete []string
	}{
		{name: "no dependencies", ready: true},
		{name: "all completed", deps: []string{"done"}, ready: true},
		{name: "pending dependency", deps: []string{"done", "open"}, incomplete: []string{"open"}},
		{name: "failed dependency", deps: []string{"failed"}, incomplete: []string{"failed"}},
		{name: "missing dependency", deps: []string{"ghost", "done"}, missing: []string{"ghost"}},
		{
			name:       "missing and incomplete",
			deps:       []string{"ghost", "open"},
			missing:    []string{"ghost"},
			incomplete: []string{"open"},
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := "subject-" + string(rune('a'+i))
			mustCreate(t, s, id, tt.deps...)

			report, err := s.Readiness(id)
			if err != nil {
				t.Fatalf("Readiness: %v", err)
			}
			if report.Ready != tt.ready {
				t.Errorf("Ready = %v, want %v", report.Ready, tt.ready)
			}
			if !slices.Equal(report.Missing, tt.missing) {
				t.Errorf("Missing = %v, want %v", report.Missing, tt.missing)
			}
			if !slices.Equal(report.Incomplete, tt.incomplete) {
				t.Errorf("Incomplete = %v, want %v", report.Incomplete, tt.incomplete)
			}
		})
	}
}

func TestClaimOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "deploy", DependsOn: []string{"build", "test"}},
		{ID: "test", DependsOn: []string{"build"}, Priority: 1},
		{ID: "lint", Priority: 1, CreatedAt: base.Add(time.Second)},
		{ID: "build", Priority: 1, CreatedAt: base},
		{ID: "docs", Priority: 0},
		{ID: "external", DependsOn: []string{"not-listed"}, Priority: 5},
		{ID: "cycle-a", DependsOn: []string{"cycle-b"}},
		{ID: "cycle-b", DependsOn: []string{"cycle-a"}},
	}

	got := claimOrder(tasks)
	want := []string{"docs", "build", "lint", "external", "test", "deploy"}
	if !slices.Equal(got, want) {
		t.Errorf("claimOrder = %v, want %v", got, want)
	}
	if claimOrder(nil) != nil {
		t.Error("claimOrder(nil) should be nil")
	}
}
