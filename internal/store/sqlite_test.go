package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seantiz/tsunami/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var runSeq int

func makeTestRun() *model.Run {
	runSeq++
	created := time.Date(2024, 3, 5, 4, 8, runSeq%60, 0, time.UTC)
	return &model.Run{
		RunID:      model.NewRunID(created, "chile2010") + "_" + model.NewID(),
		TemplateID: "chile2010",
		Extent:     model.Extent{West: -85, East: -70, South: -45, North: -25},
		FaultLon:   -72.7,
		FaultLat:   -35.8,
		State:      model.StateAllocated,
		RunDir:     "/tmp/web_runs/x",
		CreatedAt:  created,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if got.RunID != r.RunID {
		t.Errorf("RunID = %q, want %q", got.RunID, r.RunID)
	}
	if got.TemplateID != r.TemplateID {
		t.Errorf("TemplateID = %q, want %q", got.TemplateID, r.TemplateID)
	}
	if got.Extent != r.Extent {
		t.Errorf("Extent = %+v, want %+v", got.Extent, r.Extent)
	}
	if got.FaultLon != r.FaultLon || got.FaultLat != r.FaultLat {
		t.Errorf("fault = (%v, %v), want (%v, %v)", got.FaultLon, got.FaultLat, r.FaultLon, r.FaultLat)
	}
	if got.State != model.StateAllocated {
		t.Errorf("State = %q, want %q", got.State, model.StateAllocated)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
	if got.FrameCount != nil || got.FinishedAt != nil {
		t.Errorf("unexpected optional fields set: %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("GetRun error = %v, want ErrNotFound", err)
	}
}

func TestListRunsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := makeTestRun()
		r.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun[%d]: %v", i, err)
		}
	}

	runs, total, err := s.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].CreatedAt.Before(runs[1].CreatedAt) {
		t.Errorf("runs not in DESC order: %v before %v", runs[0].CreatedAt, runs[1].CreatedAt)
	}

	runs2, _, err := s.ListRuns(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListRuns page 3: %v", err)
	}
	if len(runs2) != 1 {
		t.Errorf("len(runs) page 3 = %d, want 1", len(runs2))
	}
}

func TestListRunsEmpty(t *testing.T) {
	s := newTestStore(t)

	runs, total, err := s.ListRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 0 || runs != nil {
		t.Errorf("ListRuns = %v, %d; want nil, 0", runs, total)
	}
}

func TestUpdateRunStateLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	for _, state := range []string{model.StateConfigured, model.StateSimulating, model.StatePlotting} {
		if err := s.UpdateRunState(ctx, r.RunID, state); err != nil {
			t.Fatalf("→%s: %v", state, err)
		}
		got, _ := s.GetRun(ctx, r.RunID)
		if got.State != state {
			t.Errorf("State = %q, want %q", got.State, state)
		}
		if got.FinishedAt != nil {
			t.Errorf("FinishedAt set in non-terminal state %s", state)
		}
	}

	if err := s.UpdateRunState(ctx, r.RunID, model.StateIndexed); err != nil {
		t.Fatalf("→indexed: %v", err)
	}
	got, _ := s.GetRun(ctx, r.RunID)
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil, expected it to be set for indexed state")
	}
}

func TestUpdateRunStateInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		from, to string
	}{
		{"allocated→simulating", model.StateAllocated, model.StateSimulating},
		{"configured→indexed", model.StateConfigured, model.StateIndexed},
		{"failed→configured", model.StateFailed, model.StateConfigured},
		{"indexed→failed", model.StateIndexed, model.StateFailed},
		{"failed→failed", model.StateFailed, model.StateFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := makeTestRun()
			r.State = tc.from
			if err := s.CreateRun(ctx, r); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			err := s.UpdateRunState(ctx, r.RunID, tc.to)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("got error %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestUpdateRunStateNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateRunState(context.Background(), "nonexistent", model.StateConfigured)
	if err != ErrNotFound {
		t.Errorf("UpdateRunState error = %v, want ErrNotFound", err)
	}
}

func TestUpdateRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	// Same-state write records paths without a transition.
	r.TopoPath = "/cache/topo_x.tt3"
	r.DtopoPath = "/tmp/web_runs/x/dtopo_user_fault.tt3"
	if err := s.UpdateRun(ctx, r); err != nil {
		t.Fatalf("UpdateRun (paths): %v", err)
	}

	frames := 7
	duration := 1500
	finished := r.CreatedAt.Add(1500 * time.Millisecond)
	r.State = model.StateFailed
	r.Error = "simulation failed: exit code 2"
	r.FrameCount = &frames
	r.DurationMS = &duration
	r.FinishedAt = &finished
	if err := s.UpdateRun(ctx, r); err != nil {
		t.Fatalf("UpdateRun (failed): %v", err)
	}

	got, err := s.GetRun(ctx, r.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != model.StateFailed || got.Error != r.Error {
		t.Errorf("State/Error = %q/%q", got.State, got.Error)
	}
	if got.TopoPath != r.TopoPath || got.DtopoPath != r.DtopoPath {
		t.Errorf("paths = %q, %q", got.TopoPath, got.DtopoPath)
	}
	if got.FrameCount == nil || *got.FrameCount != 7 {
		t.Errorf("FrameCount = %v, want 7", got.FrameCount)
	}
	if got.DurationMS == nil || *got.DurationMS != 1500 {
		t.Errorf("DurationMS = %v, want 1500", got.DurationMS)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}

	// Terminal runs cannot be rewritten.
	if err := s.UpdateRun(ctx, r); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("UpdateRun on failed run: got %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateRunNotFound(t *testing.T) {
	s := newTestStore(t)

	r := makeTestRun()
	err := s.UpdateRun(context.Background(), r)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestGetRunStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := makeTestRun()
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if i < 2 {
			dur := 100 + i*100 // 100, 200
			r.State = model.StateFailed
			r.DurationMS = &dur
			if err := s.UpdateRun(ctx, r); err != nil {
				t.Fatalf("UpdateRun: %v", err)
			}
		}
	}

	r := makeTestRun()
	r.TemplateID = "tohoku2011"
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun (tohoku): %v", err)
	}

	stats, err := s.GetRunStats(ctx)
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByState[model.StateFailed] != 2 {
		t.Errorf("failed count = %d, want 2", stats.CountByState[model.StateFailed])
	}
	if stats.CountByState[model.StateAllocated] != 2 {
		t.Errorf("allocated count = %d, want 2", stats.CountByState[model.StateAllocated])
	}
	if stats.CountByTemplate["chile2010"] != 3 || stats.CountByTemplate["tohoku2011"] != 1 {
		t.Errorf("CountByTemplate = %v", stats.CountByTemplate)
	}
	if stats.AvgDurationMS != 150 {
		t.Errorf("AvgDurationMS = %f, want 150", stats.AvgDurationMS)
	}
}

func TestGetRunStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetRunStats(context.Background())
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.AvgDurationMS != 0 {
		t.Errorf("AvgDurationMS = %f, want 0", stats.AvgDurationMS)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.db.Exec(createRunsTable); err != nil {
		t.Fatalf("Second migration: %v", err)
	}
}
