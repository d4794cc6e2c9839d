package ingest

import (
	"fmt"
	"sort"
	"strings"
)

// Outcome is the per-table verdict of one ingestion call.
type Outcome string

const (
	// OutcomeInserted means every offered row was loaded (or the batch was
	// empty and there was nothing to do).
	OutcomeInserted Outcome = "inserted"
	// OutcomeSkipped means the reporting date was already present and the
	// batch was dropped without touching the table.
	OutcomeSkipped Outcome = "skipped_duplicate_date"
	// OutcomeFailed means at least one load job was rejected; committed
	// sub-batches stay committed.
	OutcomeFailed Outcome = "failed"
)

// Result reports what one ingestion call did to one table.
type Result struct {
	Table   string
	Outcome Outcome
	// Reason is set for failed outcomes.
	Reason string
	// RowsLoaded counts rows from committed sub-batches, which can be
	// nonzero even on failure.
	RowsLoaded int64
	// Errors groups load-job failures by cause, not per row.
	Errors map[string]int
	// ArchiveBlob names the parquet artifact written after a fully
	// successful load, when archiving is enabled.
	ArchiveBlob string
}

func inserted(table string, rows int64) *Result {
	return &Result{Table: table, Outcome: OutcomeInserted, RowsLoaded: rows}
}

func skipped(table, date string) *Result {
	return &Result{
		Table:   table,
		Outcome: OutcomeSkipped,
		Reason:  fmt.Sprintf("date %s already ingested", date),
	}
}

func failed(table, reason string) *Result {
	return &Result{Table: table, Outcome: OutcomeFailed, Reason: reason}
}

// summarize renders the grouped error map as a stable one-line reason.
func summarize(errs map[string]int) string {
	if len(errs) == 0 {
		return ""
	}
	causes := make([]string, 0, len(errs))
	for cause := range errs {
		causes = append(causes, cause)
	}
	sort.Strings(causes)
	parts := make([]string, len(causes))
	for i, cause := range causes {
		parts[i] = fmt.Sprintf("%s x%d", cause, errs[cause])
	}
	return "load job failures: " + strings.Join(parts, "; ")
}
