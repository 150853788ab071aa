package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/and-other-tales/juno/internal/metrics"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(taskID, team string, quality float64) *metrics.TaskRecord {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &metrics.TaskRecord{
		TaskID:     taskID,
		TeamName:   team,
		AgentName:  "search",
		StartTime:  start,
		EndTime:    start.Add(30 * time.Second),
		Deadline:   start.Add(time.Hour),
		Success:    true,
		Quality:    quality,
		TaskSize:   1.5,
		TokensUsed: 250,
		AgentCount: 2,
	}
}

func TestAppendAndRecent(t *testing.T) {
	s := newStore(t)

	if err := s.Append("run-1", sampleRecord("t1", "research", 0.8)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.Append("run-1", sampleRecord("t2", "writing", 0.6)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	records, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Oldest first
	if records[0].TaskID != "t1" || records[1].TaskID != "t2" {
		t.Errorf("expected chronological order, got %s then %s", records[0].TaskID, records[1].TaskID)
	}

	got := records[0]
	if got.TeamName != "research" || got.Quality != 0.8 || got.TaskSize != 1.5 {
		t.Errorf("unexpected record fields: %+v", got)
	}
	if got.AgentCount != 2 || got.TokensUsed != 250 {
		t.Errorf("expected agent count and tokens preserved, got %+v", got)
	}
	if got.Duration() != 30*time.Second {
		t.Errorf("expected 30s duration, got %v", got.Duration())
	}
	if !got.DeadlineMet() {
		t.Error("expected deadline met")
	}
}

func TestRecent_Window(t *testing.T) {
	s := newStore(t)

	for i := 0; i < 5; i++ {
		rec := sampleRecord("t"+string(rune('1'+i)), "research", 0.5)
		if err := s.Append("run-1", rec); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	records, err := s.Recent(3)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].TaskID != "t3" || records[2].TaskID != "t5" {
		t.Errorf("expected the 3 newest in order, got %s..%s", records[0].TaskID, records[2].TaskID)
	}
}

func TestByTeam(t *testing.T) {
	s := newStore(t)

	s.Append("run-1", sampleRecord("t1", "research", 0.8))
	s.Append("run-1", sampleRecord("t2", "writing", 0.6))
	s.Append("run-1", sampleRecord("t3", "research", 0.9))

	records, err := s.ByTeam("research")
	if err != nil {
		t.Fatalf("by-team failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 research records, got %d", len(records))
	}
	for _, r := range records {
		if r.TeamName != "research" {
			t.Errorf("expected only research records, got %s", r.TeamName)
		}
	}
}

func TestNoDeadlineRoundTrips(t *testing.T) {
	s := newStore(t)

	rec := sampleRecord("t1", "research", 0.8)
	rec.Deadline = time.Time{}
	if err := s.Append("run-1", rec); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	records, err := s.Recent(1)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if !records[0].Deadline.IsZero() {
		t.Errorf("expected zero deadline preserved, got %v", records[0].Deadline)
	}
	if !records[0].DeadlineMet() {
		t.Error("expected no-deadline record to count as met")
	}
}

func TestPatchQuality(t *testing.T) {
	s := newStore(t)

	s.Append("run-1", sampleRecord("t1", "research", 0))
	s.Append("run-1", sampleRecord("t1", "writing", 0))
	s.Append("run-1", sampleRecord("t2", "research", 0))

	patched, err := s.PatchQuality("t1", 0.9)
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	if patched != 2 {
		t.Errorf("expected 2 rows patched, got %d", patched)
	}

	records, _ := s.ByTeam("research")
	if records[0].Quality != 0.9 || records[1].Quality != 0 {
		t.Errorf("expected only t1 patched, got %v and %v", records[0].Quality, records[1].Quality)
	}
}

func TestCount(t *testing.T) {
	s := newStore(t)

	if n, _ := s.Count(); n != 0 {
		t.Errorf("expected 0 records in fresh store, got %d", n)
	}
	s.Append("run-1", sampleRecord("t1", "research", 0.5))
	if n, _ := s.Count(); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestFileBackedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "juno.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("failed to open file-backed store: %v", err)
	}
	defer s.Close()

	if err := s.Append("run-1", sampleRecord("t1", "research", 0.7)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	n, err := s.Count()
	if err != nil || n != 1 {
		t.Fatalf("expected 1 record in file store, got %d (err %v)", n, err)
	}
}
