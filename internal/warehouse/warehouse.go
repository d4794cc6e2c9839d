// Package warehouse provides the managed connection to the target columnar
// warehouse: dataset/table DDL, schema lookup, date probes, range deletes,
// and the native atomic bulk-load primitive.
package warehouse

import (
	"context"
	"io"

	"github.com/adlake/ingest-core/internal/schema"
)

// StagedFormat identifies the wire format of a staged payload.
type StagedFormat string

const (
	FormatCSV    StagedFormat = "csv"
	FormatNDJSON StagedFormat = "ndjson"
)

// StagedLoadOptions controls LoadFromReader.
type StagedLoadOptions struct {
	Format StagedFormat

	// SkipHeader treats the first CSV record as a header row naming the
	// payload's columns. Without it Columns must be supplied.
	SkipHeader bool

	// Columns names the payload's columns when no header row is present.
	Columns []string

	// AllowUnknownColumns drops payload columns absent from the table
	// instead of failing the load.
	AllowUnknownColumns bool
}

// Warehouse is a managed warehouse session, one per logical credential set,
// reused across calls and safe for concurrent use across tables.
type Warehouse interface {
	DatasetExists(ctx context.Context, dataset string) (bool, error)
	// EnsureDataset creates the dataset if missing; creating an existing
	// dataset is not an error.
	EnsureDataset(ctx context.Context, dataset string) error

	TableExists(ctx context.Context, dataset, table string) (bool, error)
	CreateTable(ctx context.Context, dataset, table string, fields []schema.Field) error
	// AddColumns grows a table's column set. Schema growth is an explicit
	// operator decision; the reconcile path never calls this.
	AddColumns(ctx context.Context, dataset, table string, fields []schema.Field) error
	GetTableSchema(ctx context.Context, dataset, table string) ([]schema.Field, error)

	TruncateTable(ctx context.Context, dataset, table string) error
	// DeleteRowsInDateRange removes rows whose date field falls in
	// [start, end]. The delete and any following load are independent
	// calls: a concurrent reader may observe the span empty in between.
	DeleteRowsInDateRange(ctx context.Context, dataset, table, field, start, end string) error

	// ExistsRowForDate is a best-effort narrow count probe. A query
	// failure reports false ("cannot confirm duplicate, proceed"): false
	// negatives are acceptable, false positives would skip real data.
	ExistsRowForDate(ctx context.Context, dataset, table, field, date string) bool

	// BulkLoad submits one atomic load job: afterwards either every
	// offered row is visible or none is. Implementations use the
	// warehouse's native load primitive, not row-by-row streaming inserts.
	BulkLoad(ctx context.Context, dataset, table string, fields []schema.Field, rows []schema.Row) error

	// LoadFromReader streams a staged payload into the table without
	// materializing it, returning the number of rows loaded.
	LoadFromReader(ctx context.Context, dataset, table string, r io.Reader, opts StagedLoadOptions) (int64, error)

	Close()
}
