// Package ingest turns report batches into warehouse rows: schema
// reconciliation, duplicate avoidance per table family, chunked atomic load
// jobs, and per-table result reporting.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adlake/ingest-core/internal/archive"
	"github.com/adlake/ingest-core/internal/schema"
	"github.com/adlake/ingest-core/internal/warehouse"
)

const (
	// DefaultChunkSize bounds one atomic load job.
	DefaultChunkSize = 50000
	// Table creation is asynchronous in the general case; the readiness
	// poll is bounded so a stuck creation cannot hang a run.
	DefaultTableReadyAttempts = 100
	DefaultTableReadyDelay    = 300 * time.Millisecond
)

// Batch is one table's worth of report rows.
type Batch struct {
	Table string
	// Columns carries the connector's column order. When empty, the first
	// row's keys are used in sorted order.
	Columns []string
	Rows    []schema.Row
}

func (b *Batch) columns() []string {
	if len(b.Columns) > 0 {
		return b.Columns
	}
	if len(b.Rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(b.Rows[0]))
	for name := range b.Rows[0] {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// Loader drives single-table ingestion against a warehouse session.
type Loader struct {
	Warehouse warehouse.Warehouse
	Registry  *schema.Registry

	// Archiver, when set, writes a parquet artifact after fully successful
	// loads. Archive failures never fail the ingestion.
	Archiver *archive.Archiver

	ChunkSize          int
	TableReadyAttempts int
	TableReadyDelay    time.Duration
}

// NewLoader builds a loader with default chunking and poll bounds.
func NewLoader(w warehouse.Warehouse, reg *schema.Registry) *Loader {
	if reg == nil {
		reg = schema.DefaultRegistry()
	}
	return &Loader{
		Warehouse:          w,
		Registry:           reg,
		ChunkSize:          DefaultChunkSize,
		TableReadyAttempts: DefaultTableReadyAttempts,
		TableReadyDelay:    DefaultTableReadyDelay,
	}
}

// Load ingests one batch into dataset.table and reports the outcome. It
// never panics and never returns an error: every failure is a Result.
func (l *Loader) Load(ctx context.Context, dataset string, batch Batch) *Result {
	return l.load(ctx, dataset, uuid.NewString(), batch)
}

func (l *Loader) load(ctx context.Context, dataset, runID string, batch Batch) *Result {
	table := batch.Table
	if table == "" {
		return failed(table, "table name is required")
	}
	if len(batch.Rows) == 0 {
		// Nothing to do; the warehouse is not touched.
		return inserted(table, 0)
	}

	if err := l.Warehouse.EnsureDataset(ctx, dataset); err != nil {
		return failed(table, fmt.Sprintf("ensure dataset: %v", err))
	}

	family, ok := l.Registry.Resolve(table)
	if !ok {
		family = &schema.Family{Name: table, Mode: schema.ModePoint, DateField: schema.DefaultDateField}
	}

	fields, created, res := l.reconcileTable(ctx, dataset, family, batch)
	if res != nil {
		return res
	}

	dateField := family.DateField
	loadDate := firstDate(batch.Rows, dateField)

	switch family.Mode {
	case schema.ModeRange:
		// Revised trailing windows replace, never append.
		if min, max, ok := dateSpan(batch.Rows, dateField); ok {
			if err := l.Warehouse.DeleteRowsInDateRange(ctx, dataset, table, dateField, min, max); err != nil {
				return failed(table, fmt.Sprintf("clear date range %s..%s: %v", min, max, err))
			}
			loadDate = min
		}
	default:
		// A freshly created table cannot hold the date yet.
		if !created && loadDate != "" &&
			l.Warehouse.ExistsRowForDate(ctx, dataset, table, dateField, loadDate) {
			return skipped(table, loadDate)
		}
	}

	return l.loadChunks(ctx, dataset, runID, loadDate, batch, fields)
}

// reconcileTable decides the field list for this batch, creating the table
// when missing and waiting for it to become visible.
func (l *Loader) reconcileTable(ctx context.Context, dataset string, family *schema.Family, batch Batch) ([]schema.Field, bool, *Result) {
	table := batch.Table
	exists, err := l.Warehouse.TableExists(ctx, dataset, table)
	if err != nil {
		return nil, false, failed(table, fmt.Sprintf("check table: %v", err))
	}

	columns := batch.columns()
	if exists {
		live, err := l.Warehouse.GetTableSchema(ctx, dataset, table)
		if err != nil {
			return nil, false, failed(table, fmt.Sprintf("read table schema: %v", err))
		}
		// Keep the table's own types; batch columns the table does not
		// have are dropped, never added.
		byName := make(map[string]schema.Field, len(live))
		for _, f := range live {
			byName[f.Name] = f
		}
		var fields []schema.Field
		for _, name := range columns {
			if f, ok := byName[name]; ok {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			return nil, false, failed(table, "no schema available: batch shares no columns with the table")
		}
		return fields, false, nil
	}

	fields := schema.Reconcile(family.Hints, columns, batch.Rows[0], nil)
	if len(fields) == 0 {
		return nil, false, failed(table, "no schema available")
	}
	if err := l.Warehouse.CreateTable(ctx, dataset, table, fields); err != nil {
		return nil, false, failed(table, fmt.Sprintf("create table: %v", err))
	}
	if err := l.waitTableReady(ctx, dataset, table); err != nil {
		return nil, false, failed(table, err.Error())
	}
	return fields, true, nil
}

func (l *Loader) waitTableReady(ctx context.Context, dataset, table string) error {
	attempts := l.TableReadyAttempts
	if attempts <= 0 {
		attempts = DefaultTableReadyAttempts
	}
	delay := l.TableReadyDelay
	if delay <= 0 {
		delay = DefaultTableReadyDelay
	}
	for i := 0; i < attempts; i++ {
		ok, err := l.Warehouse.TableExists(ctx, dataset, table)
		if err != nil {
			return fmt.Errorf("poll table readiness: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return errors.New("table creation timeout")
}

// loadChunks submits the batch as sequential atomic load jobs. A rejected
// chunk is recorded and never rolls back committed chunks.
func (l *Loader) loadChunks(ctx context.Context, dataset, runID, loadDate string, batch Batch, fields []schema.Field) *Result {
	chunkSize := l.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var rowsLoaded int64
	errCounts := make(map[string]int)
	for start := 0; start < len(batch.Rows); start += chunkSize {
		end := start + chunkSize
		if end > len(batch.Rows) {
			end = len(batch.Rows)
		}
		chunk := batch.Rows[start:end]
		if err := l.Warehouse.BulkLoad(ctx, dataset, batch.Table, fields, chunk); err != nil {
			errCounts[errorCause(err)]++
			continue
		}
		rowsLoaded += int64(len(chunk))
	}

	if len(errCounts) > 0 {
		res := failed(batch.Table, summarize(errCounts))
		res.RowsLoaded = rowsLoaded
		res.Errors = errCounts
		return res
	}

	res := inserted(batch.Table, rowsLoaded)
	if l.Archiver != nil {
		if blob, err := l.Archiver.WriteBatch(ctx, dataset, batch.Table, loadDate, runID, fields, batch.Rows); err == nil {
			res.ArchiveBlob = blob
		}
	}
	return res
}

// errorCause groups failures by stable code when available, otherwise by
// message.
func errorCause(err error) string {
	var coded interface{ CodeValue() string }
	if errors.As(err, &coded) {
		return coded.CodeValue()
	}
	return err.Error()
}
