package state

import (
	"testing"
	"time"

	"github.com/and-other-tales/juno/internal/metrics"
)

func newTestState() *RunState {
	return New([]string{TeamResearch, TeamWriting, TeamJuno}, 1, 3, 0.7)
}

func TestNew_Defaults(t *testing.T) {
	st := newTestState()

	if st.RunID == "" {
		t.Error("expected a run id")
	}
	if st.CurrentTaskSize != 1.0 {
		t.Errorf("expected default task size 1.0, got %v", st.CurrentTaskSize)
	}
	if len(st.Resources) != 3 {
		t.Fatalf("expected 3 resource configs, got %d", len(st.Resources))
	}
	rc := st.Resources[TeamResearch]
	if rc.CurrentAgents != 1 || rc.MaxAgents != 3 {
		t.Errorf("expected research to start at 1 of 3 agents, got %d of %d",
			rc.CurrentAgents, rc.MaxAgents)
	}
}

func TestClone_IsDeep(t *testing.T) {
	st := newTestState()
	st.AppendRecord(&metrics.TaskRecord{TaskID: "t1", TeamName: TeamResearch, Quality: 0.9})
	st.Performance(TeamResearch).RecordGrade(0.9, true, time.Second)
	st.LowQualityStreaks[TeamWriting] = 2
	st.TeamResults[TeamResearch] = "findings"

	c := st.Clone()
	c.Records[0].Quality = 0.1
	c.Performance(TeamResearch).RecordGrade(0.2, false, time.Second)
	c.LowQualityStreaks[TeamWriting] = 9
	c.TeamResults[TeamResearch] = "changed"
	c.Resources[TeamResearch].SetAgents(3)
	c.AppendNotice("cloned")

	if st.Records[0].Quality != 0.9 {
		t.Error("clone shares task records with original")
	}
	if len(st.Performance(TeamResearch).QualityScores) != 1 {
		t.Error("clone shares performance records with original")
	}
	if st.LowQualityStreaks[TeamWriting] != 2 {
		t.Error("clone shares streak map with original")
	}
	if st.TeamResults[TeamResearch] != "findings" {
		t.Error("clone shares team results with original")
	}
	if st.Resources[TeamResearch].CurrentAgents != 1 {
		t.Error("clone shares resource configs with original")
	}
	if len(st.Notices) != 0 {
		t.Error("clone shares notices with original")
	}
}

func TestRecentRecords(t *testing.T) {
	st := newTestState()
	for i := 0; i < 15; i++ {
		st.AppendRecord(&metrics.TaskRecord{TaskID: "t", TeamName: TeamResearch})
	}

	if got := len(st.RecentRecords(10)); got != 10 {
		t.Errorf("expected 10 recent records, got %d", got)
	}
	if got := len(st.RecentRecords(20)); got != 15 {
		t.Errorf("expected all 15 records, got %d", got)
	}
	if got := st.RecentRecords(0); got != nil {
		t.Errorf("expected nil for n=0, got %d records", len(got))
	}
}

func TestPatchQuality(t *testing.T) {
	st := newTestState()
	st.AppendRecord(&metrics.TaskRecord{TaskID: "task-a", Quality: 0})
	st.AppendRecord(&metrics.TaskRecord{TaskID: "task-b", Quality: 0})
	st.AppendRecord(&metrics.TaskRecord{TaskID: "task-a", Quality: 0})

	patched := st.PatchQuality("task-a", 0.85)

	if patched != 2 {
		t.Errorf("expected 2 records patched, got %d", patched)
	}
	if st.Records[0].Quality != 0.85 || st.Records[2].Quality != 0.85 {
		t.Error("matching records not patched")
	}
	if st.Records[1].Quality != 0 {
		t.Error("non-matching record was patched")
	}
}

func TestApplyResourceRequest(t *testing.T) {
	st := newTestState()

	if _, err := st.ApplyResourceRequest(); err == nil {
		t.Error("expected error with no pending request")
	}

	st.ResourceRequests = append(st.ResourceRequests, &metrics.ResourceChangeRequest{
		Team:              TeamResearch,
		CurrentAgents:     1,
		RecommendedAgents: 2,
		Reason:            "high deadline miss rate",
		Timestamp:         time.Now(),
	})

	req, err := st.ApplyResourceRequest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Team != TeamResearch {
		t.Errorf("expected research request, got %q", req.Team)
	}
	if got := st.Resources[TeamResearch].CurrentAgents; got != 2 {
		t.Errorf("expected 2 agents after apply, got %d", got)
	}
	if len(st.ResourceRequests) != 0 {
		t.Error("request was not consumed")
	}

	// Applying beyond max clamps instead of erroring
	st.ResourceRequests = append(st.ResourceRequests, &metrics.ResourceChangeRequest{
		Team: TeamResearch, CurrentAgents: 2, RecommendedAgents: 9,
	})
	if _, err := st.ApplyResourceRequest(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := st.Resources[TeamResearch].CurrentAgents; got != 3 {
		t.Errorf("expected clamp to max 3 agents, got %d", got)
	}
}

func TestResetTaskPressure(t *testing.T) {
	st := newTestState()
	st.CurrentTaskDeadline = time.Now().Add(time.Hour)
	st.CurrentTaskSize = 1.7

	st.ResetTaskPressure()

	if !st.CurrentTaskDeadline.IsZero() {
		t.Error("deadline not cleared")
	}
	if st.CurrentTaskSize != 1.0 {
		t.Errorf("expected size reset to 1.0, got %v", st.CurrentTaskSize)
	}
}
