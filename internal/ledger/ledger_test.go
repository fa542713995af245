package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// newTestStore opens a ledger backed by a temporary database file.
// The database is automatically closed when the test finishes.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", dbPath, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// beginRun starts a run and fails the test if the ledger rejects it.
func beginRun(t *testing.T, store *Store, run Run) {
	t.Helper()
	if err := store.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun(%q): %v", run.RunID, err)
	}
}

func record(t *testing.T, store *Store, e Entry) {
	t.Helper()
	if err := store.Record(context.Background(), e); err != nil {
		t.Fatalf("Record(%q): %v", e.Name, err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	beginRun(t, store, Run{RunID: "r1", Mode: "put-get", Endpoint: "http://s3", StartedAt: start})
	record(t, store, Entry{RunID: "r1", Name: "size=0_i=0", Mode: "put-get", Category: "none-on-write", Key: "size=0_i=0", Passed: true, Duration: 1500 * time.Millisecond})
	record(t, store, Entry{RunID: "r1", Name: "size=1_i=0", Mode: "put-get", Size: 1, Reason: "ContentMismatch", Error: "differs at 0"})
	if err := store.FinishRun(ctx, "r1", start.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.RunID != "r1" {
		t.Errorf("RunID = %q, want %q", got.RunID, "r1")
	}
	if got.Passed != 1 || got.Failed != 1 {
		t.Errorf("Passed/Failed = %d/%d, want 1/1", got.Passed, got.Failed)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}
	if !got.FinishedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, start.Add(time.Minute))
	}

	all, err := store.Results(ctx, "r1", false)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 results, got %d", len(all))
	}
	if all[0].Seq != 1 || all[1].Seq != 2 {
		t.Errorf("Seq = %d, %d, want 1, 2", all[0].Seq, all[1].Seq)
	}
	if !all[0].Passed {
		t.Error("first result Passed = false, want true")
	}
	if all[0].Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", all[0].Duration)
	}

	failed, err := store.Results(ctx, "r1", true)
	if err != nil {
		t.Fatalf("Results(failed): %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed result, got %d", len(failed))
	}
	if failed[0].Reason != "ContentMismatch" {
		t.Errorf("Reason = %q, want %q", failed[0].Reason, "ContentMismatch")
	}
}

func TestRecordUnknownRun(t *testing.T) {
	store := newTestStore(t)
	if err := store.Record(context.Background(), Entry{RunID: "missing", Name: "x", Mode: "put-get"}); err == nil {
		t.Error("Record for an unknown run succeeded")
	}

	results, err := store.Results(context.Background(), "missing", false)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := newTestStore(t)
	if err := store.FinishRun(context.Background(), "missing", time.Now()); err == nil {
		t.Error("FinishRun for an unknown run succeeded")
	}
}

func TestDuplicateRun(t *testing.T) {
	store := newTestStore(t)
	beginRun(t, store, Run{RunID: "r1", Mode: "plan"})
	if err := store.BeginRun(context.Background(), Run{RunID: "r1", Mode: "plan"}); err == nil {
		t.Error("second BeginRun with the same ID succeeded")
	}
}

func TestRecordConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	beginRun(t, store, Run{RunID: "r1", Mode: "multipart"})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Record(ctx, Entry{RunID: "r1", Name: fmt.Sprintf("k%d", i), Mode: "multipart", Passed: true})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Record: %v", err)
		}
	}

	results, err := store.Results(ctx, "r1", false)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 20 {
		t.Fatalf("expected 20 results, got %d", len(results))
	}
	for i, e := range results {
		if e.Seq != i+1 {
			t.Errorf("results[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	beginRun(t, store, Run{RunID: "r1", Mode: "plan"})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero for an unfinished run", runs[0].FinishedAt)
	}
}

func TestExport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	beginRun(t, store, Run{RunID: "r1", Mode: "put-get"})
	record(t, store, Entry{RunID: "r1", Name: "a", Mode: "put-get", Passed: true})
	record(t, store, Entry{RunID: "r1", Name: "b", Mode: "put-get", Error: "boom"})
	if err := store.FinishRun(ctx, "r1", time.Now()); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	beginRun(t, store, Run{RunID: "r2", Mode: "plan"})

	export := func(opts ExportOptions) Document {
		t.Helper()
		var buf bytes.Buffer
		if err := store.Export(ctx, &buf, opts); err != nil {
			t.Fatalf("Export(%+v): %v", opts, err)
		}
		var doc Document
		if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
			t.Fatalf("decoding export: %v", err)
		}
		return doc
	}

	doc := export(ExportOptions{})
	if doc.Export.Version != ExportVersion {
		t.Errorf("Version = %v, want %v", doc.Export.Version, ExportVersion)
	}
	if doc.Export.Source != "go/"+Version {
		t.Errorf("Source = %q, want %q", doc.Export.Source, "go/"+Version)
	}
	if len(doc.Runs) != 2 || len(doc.Results) != 2 {
		t.Errorf("exported %d runs and %d results, want 2 and 2", len(doc.Runs), len(doc.Results))
	}

	doc = export(ExportOptions{RunID: "r1", FailedOnly: true})
	if len(doc.Runs) != 1 || len(doc.Results) != 1 {
		t.Fatalf("exported %d runs and %d results, want 1 and 1", len(doc.Runs), len(doc.Results))
	}
	if doc.Results[0].Name != "b" {
		t.Errorf("Name = %q, want %q", doc.Results[0].Name, "b")
	}
	if doc.Runs[0].FinishedAt == "" {
		t.Error("FinishedAt missing from a finished run")
	}

	var buf bytes.Buffer
	if err := store.Export(ctx, &buf, ExportOptions{RunID: "nope"}); err == nil {
		t.Error("Export of an unknown run succeeded")
	}
}
