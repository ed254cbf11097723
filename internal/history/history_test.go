package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lodestar-cd/lodestar/internal/logging"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "history.db"), logging.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func sampleRun(build int, status string) Run {
	run := Run{
		Pipeline:    "app",
		CommitHash:  "a1b2c3d4",
		Branch:      "main",
		BuildNumber: build,
		ImageRef:    "ns/app:a1b2c3d4-42",
		Status:      status,
		CreatedAt:   time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Stages: []StageRecord{
			{Name: "test", Status: "succeeded", Duration: 3 * time.Second, Detail: "5 passed, 0 failed, 0 skipped"},
			{Name: "build-image", Status: "succeeded", Duration: 90 * time.Second},
		},
	}
	if status == "failed" {
		run.FailedStage = "test"
		run.Stages[0].Status = "failed"
	}
	return run
}

func TestRecordAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Record(ctx, sampleRun(42, "succeeded"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a run id")
	}

	runs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}

	got := runs[0]
	if got.Pipeline != "app" || got.CommitHash != "a1b2c3d4" || got.BuildNumber != 42 {
		t.Errorf("unexpected run: %+v", got)
	}

	exp := []StageRecord{
		{Name: "test", Status: "succeeded", Duration: 3 * time.Second, Detail: "5 passed, 0 failed, 0 skipped"},
		{Name: "build-image", Status: "succeeded", Duration: 90 * time.Second},
	}
	if diff := cmp.Diff(exp, got.Stages); diff != "" {
		t.Errorf("unexpected stages (-want +got):\n%s", diff)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for build := 1; build <= 3; build++ {
		if _, err := store.Record(ctx, sampleRun(build, "succeeded")); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].BuildNumber != 3 || runs[1].BuildNumber != 2 {
		t.Errorf("unexpected ordering: %d, %d", runs[0].BuildNumber, runs[1].BuildNumber)
	}
}

func TestRecordFailedRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Record(ctx, sampleRun(7, "failed")); err != nil {
		t.Fatal(err)
	}

	runs, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	if runs[0].Status != "failed" || runs[0].FailedStage != "test" {
		t.Errorf("unexpected run: %+v", runs[0])
	}
}

func TestWriteTable(t *testing.T) {
	var sb strings.Builder

	run := sampleRun(42, "failed")
	run.CreatedAt = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	if err := WriteTable(&sb, []Run{run}); err != nil {
		t.Fatal(err)
	}

	out := sb.String()
	for _, want := range []string{"#42", "a1b2c3d4", "ns/app:a1b2c3d4-42", "failed (test)", "2026-08-25 12:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}
