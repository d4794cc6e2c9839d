package warehouse

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/adlake/ingest-core/internal/schema"
)

// Local is an in-memory Warehouse for tests and offline development. It
// keeps the backend's observable behavior: freshly created tables can be
// made invisible for the first few existence checks, and load jobs can be
// made to fail on demand.
type Local struct {
	mu sync.Mutex

	// CreationDelay makes a new table report "not exists" for that many
	// TableExists calls after creation, mimicking warehouse metadata lag.
	CreationDelay int

	datasets map[string]bool
	tables   map[string]*localTable
	pending  map[string]int

	failLoads int
	loadCalls int
}

type localTable struct {
	fields []schema.Field
	rows   []schema.Row
}

func NewLocal() *Local {
	return &Local{
		datasets: make(map[string]bool),
		tables:   make(map[string]*localTable),
		pending:  make(map[string]int),
	}
}

func key(dataset, table string) string { return dataset + "." + table }

// FailNextLoads makes the next n load jobs fail with E_LOAD_JOB_FAILED.
func (w *Local) FailNextLoads(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failLoads = n
}

// LoadCalls reports how many load jobs were attempted.
func (w *Local) LoadCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadCalls
}

// RowCount reports the number of rows stored in a table, 0 if absent.
func (w *Local) RowCount(dataset, table string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tables[key(dataset, table)]; ok {
		return len(t.rows)
	}
	return 0
}

// Rows returns a copy of a table's rows.
func (w *Local) Rows(dataset, table string) []schema.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return nil
	}
	out := make([]schema.Row, len(t.rows))
	copy(out, t.rows)
	return out
}

func (w *Local) Close() {}

func (w *Local) DatasetExists(_ context.Context, dataset string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.datasets[dataset], nil
}

func (w *Local) EnsureDataset(_ context.Context, dataset string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.datasets[dataset] = true
	return nil
}

func (w *Local) TableExists(_ context.Context, dataset, table string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := key(dataset, table)
	if _, ok := w.tables[k]; !ok {
		return false, nil
	}
	if left := w.pending[k]; left > 0 {
		w.pending[k] = left - 1
		return false, nil
	}
	return true, nil
}

func (w *Local) CreateTable(_ context.Context, dataset, table string, fields []schema.Field) error {
	if len(fields) == 0 {
		return wrapError(CodeBadPayload, false, fmt.Errorf("no fields for table %s.%s", dataset, table))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.datasets[dataset] {
		return wrapError(CodeDatasetNotFound, false, fmt.Errorf("dataset %s not found", dataset))
	}
	k := key(dataset, table)
	if _, ok := w.tables[k]; ok {
		return nil
	}
	w.tables[k] = &localTable{fields: append([]schema.Field(nil), fields...)}
	if w.CreationDelay > 0 {
		w.pending[k] = w.CreationDelay
	}
	return nil
}

func (w *Local) AddColumns(_ context.Context, dataset, table string, fields []schema.Field) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return wrapError(CodeTableNotFound, false, fmt.Errorf("table %s.%s not found", dataset, table))
	}
	have := make(map[string]bool, len(t.fields))
	for _, f := range t.fields {
		have[f.Name] = true
	}
	for _, f := range fields {
		if !have[f.Name] {
			t.fields = append(t.fields, f)
		}
	}
	return nil
}

func (w *Local) GetTableSchema(_ context.Context, dataset, table string) ([]schema.Field, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return nil, wrapError(CodeTableNotFound, false, fmt.Errorf("table %s.%s not found", dataset, table))
	}
	return append([]schema.Field(nil), t.fields...), nil
}

func (w *Local) TruncateTable(_ context.Context, dataset, table string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return wrapError(CodeTableNotFound, false, fmt.Errorf("table %s.%s not found", dataset, table))
	}
	t.rows = nil
	return nil
}

func (w *Local) DeleteRowsInDateRange(_ context.Context, dataset, table, field, start, end string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return wrapError(CodeTableNotFound, false, fmt.Errorf("table %s.%s not found", dataset, table))
	}
	kept := t.rows[:0]
	for _, row := range t.rows {
		d := valueText(row[field])
		// ISO dates compare correctly as strings.
		if d >= start && d <= end {
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return nil
}

func (w *Local) ExistsRowForDate(_ context.Context, dataset, table, field, date string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return false
	}
	for _, row := range t.rows {
		if valueText(row[field]) == date {
			return true
		}
	}
	return false
}

func (w *Local) BulkLoad(_ context.Context, dataset, table string, fields []schema.Field, rows []schema.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if len(fields) == 0 {
		return wrapError(CodeBadPayload, false, fmt.Errorf("no schema for load into %s.%s", dataset, table))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadCalls++
	if w.failLoads > 0 {
		w.failLoads--
		return wrapError(CodeLoadJobFailed, false, fmt.Errorf("injected load failure"))
	}
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return wrapError(CodeTableNotFound, false, fmt.Errorf("table %s.%s not found", dataset, table))
	}

	// Convert every row before committing any, so the job stays all-or-nothing.
	staged := make([]schema.Row, 0, len(rows))
	for i, row := range rows {
		converted := make(schema.Row, len(fields))
		for _, f := range fields {
			v, err := convertValue(row[f.Name], f.Type)
			if err != nil {
				return wrapError(CodeLoadJobFailed, false,
					fmt.Errorf("row %d column %s: %w", i, f.Name, err))
			}
			converted[f.Name] = v
		}
		staged = append(staged, converted)
	}
	t.rows = append(t.rows, staged...)
	return nil
}

func (w *Local) LoadFromReader(ctx context.Context, dataset, table string, r io.Reader, opts StagedLoadOptions) (int64, error) {
	tableFields, err := w.GetTableSchema(ctx, dataset, table)
	if err != nil {
		return 0, err
	}

	var src interface {
		Next() bool
		Values() ([]any, error)
		Err() error
	}
	var fields []schema.Field
	switch opts.Format {
	case FormatCSV, "":
		csvSrc, err := newCSVCopySource(r, tableFields, opts)
		if err != nil {
			return 0, err
		}
		src, fields = csvSrc, csvSrc.fields
	case FormatNDJSON:
		ndSrc, err := newNDJSONCopySource(r, tableFields, opts)
		if err != nil {
			return 0, err
		}
		src, fields = ndSrc, ndSrc.fields
	default:
		return 0, wrapError(CodeBadPayload, false, fmt.Errorf("unknown staged format %q", opts.Format))
	}

	var staged []schema.Row
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		row := make(schema.Row, len(fields))
		for j, f := range fields {
			row[f.Name] = values[j]
		}
		staged = append(staged, row)
	}
	if err := src.Err(); err != nil {
		return 0, wrapError(CodeLoadJobFailed, false, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadCalls++
	if w.failLoads > 0 {
		w.failLoads--
		return 0, wrapError(CodeLoadJobFailed, false, fmt.Errorf("injected load failure"))
	}
	t, ok := w.tables[key(dataset, table)]
	if !ok {
		return 0, wrapError(CodeTableNotFound, false, fmt.Errorf("table %s.%s not found", dataset, table))
	}
	t.rows = append(t.rows, staged...)
	return int64(len(staged)), nil
}

// valueText renders a stored value the way the date probe and the range
// delete compare it.
func valueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
