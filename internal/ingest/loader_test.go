package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/adlake/ingest-core/internal/archive"
	"github.com/adlake/ingest-core/internal/schema"
	"github.com/adlake/ingest-core/internal/stage"
	"github.com/adlake/ingest-core/internal/warehouse"
)

func fastLoader(w warehouse.Warehouse) *Loader {
	l := NewLoader(w, schema.DefaultRegistry())
	l.TableReadyDelay = time.Millisecond
	return l
}

func adBatch(table string, dates ...string) Batch {
	rows := make([]schema.Row, 0, len(dates))
	for i, d := range dates {
		rows = append(rows, schema.Row{"date": d, "clicks": i + 1, "cost": float64(i) + 0.5})
	}
	return Batch{Table: table, Columns: []string{"date", "clicks", "cost"}, Rows: rows}
}

func TestLoadEmptyBatchLeavesWarehouseUntouched(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)

	res := l.Load(context.Background(), "marketing", Batch{Table: "NAVER_AD"})
	if res.Outcome != OutcomeInserted || res.RowsLoaded != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if exists, _ := w.DatasetExists(context.Background(), "marketing"); exists {
		t.Fatalf("empty batch created a dataset")
	}
}

func TestLoadCreatesTableAndInserts(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	ctx := context.Background()

	res := l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-01", "2025-03-01"))
	if res.Outcome != OutcomeInserted || res.RowsLoaded != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := w.RowCount("marketing", "NAVER_AD"); got != 2 {
		t.Fatalf("row count = %d, want 2", got)
	}
	fields, err := w.GetTableSchema(ctx, "marketing", "NAVER_AD")
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	// NAVER_AD hints pin the column types; inference never runs for them.
	want := map[string]schema.Type{"date": schema.TypeDate, "clicks": schema.TypeInteger, "cost": schema.TypeFloat}
	for _, f := range fields {
		if want[f.Name] != f.Type {
			t.Fatalf("column %s has type %s", f.Name, f.Type)
		}
	}
}

func TestLoadPointModeSkipsDuplicateDate(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	ctx := context.Background()

	if res := l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-01")); res.Outcome != OutcomeInserted {
		t.Fatalf("first load: %+v", res)
	}
	res := l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-01"))
	if res.Outcome != OutcomeSkipped {
		t.Fatalf("second load should skip: %+v", res)
	}
	if got := w.RowCount("marketing", "NAVER_AD"); got != 1 {
		t.Fatalf("duplicate load changed the table: %d rows", got)
	}
}

func TestLoadRangeModeReplacesSpan(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	ctx := context.Background()

	first := adBatch("GA4_acme_landing", "2025-01-01", "2025-01-02", "2025-01-03")
	if res := l.Load(ctx, "marketing", first); res.Outcome != OutcomeInserted {
		t.Fatalf("first load: %+v", res)
	}

	// The source re-reports the same window with revised numbers.
	revised := adBatch("GA4_acme_landing", "2025-01-01", "2025-01-02", "2025-01-03")
	res := l.Load(ctx, "marketing", revised)
	if res.Outcome != OutcomeInserted || res.RowsLoaded != 3 {
		t.Fatalf("revised load: %+v", res)
	}
	if got := w.RowCount("marketing", "GA4_acme_landing"); got != 3 {
		t.Fatalf("range reload appended instead of replacing: %d rows", got)
	}
}

func TestLoadRangeModeKeepsRowsOutsideSpan(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	ctx := context.Background()

	if res := l.Load(ctx, "marketing", adBatch("GA4_acme", "2024-12-30", "2024-12-31")); res.Outcome != OutcomeInserted {
		t.Fatalf("seed load failed")
	}
	if res := l.Load(ctx, "marketing", adBatch("GA4_acme", "2025-01-01", "2025-01-02")); res.Outcome != OutcomeInserted {
		t.Fatalf("second load failed")
	}
	if got := w.RowCount("marketing", "GA4_acme"); got != 4 {
		t.Fatalf("disjoint span deleted prior rows: %d rows", got)
	}
}

func TestLoadWaitsForDelayedTableVisibility(t *testing.T) {
	w := warehouse.NewLocal()
	w.CreationDelay = 3
	l := fastLoader(w)

	res := l.Load(context.Background(), "marketing", adBatch("NAVER_AD", "2025-03-01"))
	if res.Outcome != OutcomeInserted {
		t.Fatalf("load against slow table creation: %+v", res)
	}
}

func TestLoadTableCreationTimeout(t *testing.T) {
	w := warehouse.NewLocal()
	w.CreationDelay = 50
	l := fastLoader(w)
	l.TableReadyAttempts = 2

	res := l.Load(context.Background(), "marketing", adBatch("NAVER_AD", "2025-03-01"))
	if res.Outcome != OutcomeFailed || res.Reason != "table creation timeout" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoadNeverWidensExistingTable(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	ctx := context.Background()

	if res := l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-01")); res.Outcome != OutcomeInserted {
		t.Fatalf("seed load failed")
	}

	noisy := Batch{
		Table:   "NAVER_AD",
		Columns: []string{"date", "clicks", "typo_column"},
		Rows:    []schema.Row{{"date": "2025-03-02", "clicks": 5, "typo_column": "x"}},
	}
	if res := l.Load(ctx, "marketing", noisy); res.Outcome != OutcomeInserted {
		t.Fatalf("noisy load failed: %+v", res)
	}

	fields, _ := w.GetTableSchema(ctx, "marketing", "NAVER_AD")
	for _, f := range fields {
		if f.Name == "typo_column" {
			t.Fatalf("one noisy batch widened the table: %+v", fields)
		}
	}
	for _, row := range w.Rows("marketing", "NAVER_AD") {
		if _, ok := row["typo_column"]; ok {
			t.Fatalf("stray column value stored: %+v", row)
		}
	}
}

func TestLoadFailsWhenBatchSharesNoColumns(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	ctx := context.Background()

	if res := l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-01")); res.Outcome != OutcomeInserted {
		t.Fatalf("seed load failed")
	}
	alien := Batch{
		Table:   "NAVER_AD",
		Columns: []string{"foo", "bar"},
		Rows:    []schema.Row{{"foo": 1, "bar": 2}},
	}
	res := l.Load(ctx, "marketing", alien)
	if res.Outcome != OutcomeFailed || !strings.Contains(res.Reason, "no schema available") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoadPartialChunkFailureKeepsCommittedChunks(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	l.ChunkSize = 1

	// The creation path issues no load; fail only the first data chunk.
	w.FailNextLoads(1)
	res := l.Load(context.Background(), "marketing", adBatch("NAVER_AD", "2025-03-01", "2025-03-01", "2025-03-01"))
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected failure: %+v", res)
	}
	if res.RowsLoaded != 2 {
		t.Fatalf("rows loaded = %d, want 2 committed chunks", res.RowsLoaded)
	}
	if got := w.RowCount("marketing", "NAVER_AD"); got != 2 {
		t.Fatalf("warehouse row count = %d, want 2", got)
	}
}

func TestLoadGroupsFailuresByCause(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	l.ChunkSize = 1
	w.FailNextLoads(2)

	res := l.Load(context.Background(), "marketing", adBatch("NAVER_AD", "2025-03-01", "2025-03-01", "2025-03-01"))
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected failure: %+v", res)
	}
	if res.Errors[warehouse.CodeLoadJobFailed] != 2 {
		t.Fatalf("grouped errors = %v", res.Errors)
	}
	if !strings.Contains(res.Reason, warehouse.CodeLoadJobFailed+" x2") {
		t.Fatalf("summary not grouped by cause: %q", res.Reason)
	}
}

func TestLoadArchivesOnlyFullSuccess(t *testing.T) {
	w := warehouse.NewLocal()
	s := stage.NewLocalStage(t.TempDir())
	l := fastLoader(w)
	l.Archiver = archive.NewArchiver(s, "")
	ctx := context.Background()

	res := l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-01"))
	if res.Outcome != OutcomeInserted || res.ArchiveBlob == "" {
		t.Fatalf("expected archive artifact: %+v", res)
	}
	if _, err := s.Download(ctx, res.ArchiveBlob); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	keysBefore, _ := s.List(ctx, "archive/")
	w.FailNextLoads(1)
	res = l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-02"))
	if res.Outcome != OutcomeFailed || res.ArchiveBlob != "" {
		t.Fatalf("failed load must not archive: %+v", res)
	}
	keysAfter, _ := s.List(ctx, "archive/")
	if len(keysAfter) != len(keysBefore) {
		t.Fatalf("archive grew after a failed load: %v", keysAfter)
	}
}

func TestRunIsolatesTableFailures(t *testing.T) {
	w := warehouse.NewLocal()
	l := fastLoader(w)
	r := NewRunner(l)
	ctx := context.Background()

	// Seed NAVER_AD so a disjoint-column batch against it fails.
	if res := l.Load(ctx, "marketing", adBatch("NAVER_AD", "2025-03-01")); res.Outcome != OutcomeInserted {
		t.Fatalf("seed load failed")
	}

	batches := []Batch{
		{
			Table:   "NAVER_AD",
			Columns: []string{"foo"},
			Rows:    []schema.Row{{"foo": 1}},
		},
		adBatch("KAKAO_SEARCH_AD", "2025-03-01"),
		adBatch("GA4_acme", "2025-03-01"),
	}
	out := r.Run(ctx, "marketing", batches)

	if out.RunID == "" {
		t.Fatalf("missing run id")
	}
	if len(out.Tables) != 3 {
		t.Fatalf("expected 3 results, got %v", out.Tables)
	}
	if out.Tables["NAVER_AD"].Outcome != OutcomeFailed {
		t.Fatalf("NAVER_AD: %+v", out.Tables["NAVER_AD"])
	}
	if out.Tables["KAKAO_SEARCH_AD"].Outcome != OutcomeInserted {
		t.Fatalf("sibling aborted: %+v", out.Tables["KAKAO_SEARCH_AD"])
	}
	if out.Tables["GA4_acme"].Outcome != OutcomeInserted {
		t.Fatalf("sibling aborted: %+v", out.Tables["GA4_acme"])
	}
	if !out.Failed() {
		t.Fatalf("run with a failed table should report Failed")
	}
}

func TestDateSpan(t *testing.T) {
	rows := []schema.Row{
		{"date": "2025-01-03"},
		{"date": "2025-01-01"},
		{"other": "x"},
		{"date": "2025-01-02"},
	}
	min, max, ok := dateSpan(rows, "date")
	if !ok || min != "2025-01-01" || max != "2025-01-03" {
		t.Fatalf("span = %s..%s ok=%v", min, max, ok)
	}
	if _, _, ok := dateSpan(rows, "missing"); ok {
		t.Fatalf("span over absent field should report !ok")
	}
}
