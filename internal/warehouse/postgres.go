package warehouse

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/adlake/ingest-core/internal/schema"
)

// Config holds warehouse connection configuration.
type Config struct {
	DSN string
	// Project is the logical project prefix used in table addressing
	// ({project}.{dataset}.{table}); informational for the SQL backend.
	Project string

	// RateLimit caps warehouse API calls per second (default 20).
	RateLimit float64
	// RateBurst is the limiter burst size (default 10).
	RateBurst int
	// MaxRetries bounds retries of retryable metadata-call failures
	// (default 3). Load jobs are never retried.
	MaxRetries int
}

func (c *Config) normalize() {
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultRetryAttempts
	}
}

// Postgres implements Warehouse on a pooled Postgres connection. Datasets
// map to schemas; the native load-job primitive is COPY, which commits all
// rows of one call or none of them.
type Postgres struct {
	pool    *pgxpool.Pool
	cfg     *Config
	limiter *rate.Limiter
}

// NewPostgres opens a pooled warehouse session and verifies connectivity.
func NewPostgres(ctx context.Context, cfg *Config) (*Postgres, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, wrapError(CodeUnreachable, false, fmt.Errorf("warehouse DSN is required"))
	}
	cfg.normalize()

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, wrapError(CodeUnreachable, true, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyError(err)
	}

	return &Postgres{
		pool:    pool,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}, nil
}

func (w *Postgres) Close() { w.pool.Close() }

func (w *Postgres) wait(ctx context.Context) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return wrapError(CodeTimeout, false, err)
	}
	return nil
}

func (w *Postgres) DatasetExists(ctx context.Context, dataset string) (bool, error) {
	if err := w.wait(ctx); err != nil {
		return false, err
	}
	var exists bool
	err := withRetry(ctx, w.cfg.MaxRetries, func() error {
		row := w.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
			dataset)
		if err := row.Scan(&exists); err != nil {
			return classifyError(err)
		}
		return nil
	})
	return exists, err
}

func (w *Postgres) EnsureDataset(ctx context.Context, dataset string) error {
	if err := w.wait(ctx); err != nil {
		return err
	}
	return withRetry(ctx, w.cfg.MaxRetries, func() error {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{dataset}.Sanitize())
		if _, err := w.pool.Exec(ctx, sql); err != nil {
			return classifyError(err)
		}
		return nil
	})
}

func (w *Postgres) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	if err := w.wait(ctx); err != nil {
		return false, err
	}
	var exists bool
	err := withRetry(ctx, w.cfg.MaxRetries, func() error {
		row := w.pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = $1 AND table_name = $2
			)`, dataset, table)
		if err := row.Scan(&exists); err != nil {
			return classifyError(err)
		}
		return nil
	})
	return exists, err
}

func (w *Postgres) CreateTable(ctx context.Context, dataset, table string, fields []schema.Field) error {
	if len(fields) == 0 {
		return wrapError(CodeBadPayload, false, fmt.Errorf("no fields for table %s.%s", dataset, table))
	}
	if err := w.wait(ctx); err != nil {
		return err
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = fmt.Sprintf("%s %s", pgx.Identifier{f.Name}.Sanitize(), sqlType(f.Type))
	}
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{dataset, table}.Sanitize(), strings.Join(cols, ", "))
	return withRetry(ctx, w.cfg.MaxRetries, func() error {
		if _, err := w.pool.Exec(ctx, sql); err != nil {
			return classifyError(err)
		}
		return nil
	})
}

func (w *Postgres) AddColumns(ctx context.Context, dataset, table string, fields []schema.Field) error {
	if len(fields) == 0 {
		return nil
	}
	if err := w.wait(ctx); err != nil {
		return err
	}
	clauses := make([]string, len(fields))
	for i, f := range fields {
		clauses[i] = fmt.Sprintf("ADD COLUMN IF NOT EXISTS %s %s",
			pgx.Identifier{f.Name}.Sanitize(), sqlType(f.Type))
	}
	sql := fmt.Sprintf("ALTER TABLE %s %s",
		pgx.Identifier{dataset, table}.Sanitize(), strings.Join(clauses, ", "))
	return withRetry(ctx, w.cfg.MaxRetries, func() error {
		if _, err := w.pool.Exec(ctx, sql); err != nil {
			return classifyError(err)
		}
		return nil
	})
}

func (w *Postgres) GetTableSchema(ctx context.Context, dataset, table string) ([]schema.Field, error) {
	if err := w.wait(ctx); err != nil {
		return nil, err
	}
	var fields []schema.Field
	err := withRetry(ctx, w.cfg.MaxRetries, func() error {
		rows, err := w.pool.Query(ctx,
			`SELECT column_name, data_type
			 FROM information_schema.columns
			 WHERE table_schema = $1 AND table_name = $2
			 ORDER BY ordinal_position`, dataset, table)
		if err != nil {
			return classifyError(err)
		}
		defer rows.Close()

		fields = fields[:0]
		for rows.Next() {
			var name, dataType string
			if err := rows.Scan(&name, &dataType); err != nil {
				return classifyError(err)
			}
			fields = append(fields, schema.Field{Name: name, Type: columnType(dataType)})
		}
		if err := rows.Err(); err != nil {
			return classifyError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, wrapError(CodeTableNotFound, false, fmt.Errorf("table %s.%s not found", dataset, table))
	}
	return fields, nil
}

func (w *Postgres) TruncateTable(ctx context.Context, dataset, table string) error {
	if err := w.wait(ctx); err != nil {
		return err
	}
	return withRetry(ctx, w.cfg.MaxRetries, func() error {
		sql := fmt.Sprintf("TRUNCATE TABLE %s", pgx.Identifier{dataset, table}.Sanitize())
		if _, err := w.pool.Exec(ctx, sql); err != nil {
			return classifyError(err)
		}
		return nil
	})
}

func (w *Postgres) DeleteRowsInDateRange(ctx context.Context, dataset, table, field, start, end string) error {
	if err := w.wait(ctx); err != nil {
		return err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s >= $1 AND %s <= $2",
		pgx.Identifier{dataset, table}.Sanitize(),
		pgx.Identifier{field}.Sanitize(), pgx.Identifier{field}.Sanitize())
	return withRetry(ctx, w.cfg.MaxRetries, func() error {
		if _, err := w.pool.Exec(ctx, sql, start, end); err != nil {
			return classifyError(err)
		}
		return nil
	})
}

func (w *Postgres) ExistsRowForDate(ctx context.Context, dataset, table, field, date string) bool {
	if err := w.wait(ctx); err != nil {
		return false
	}
	sql := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s = $1",
		pgx.Identifier{dataset, table}.Sanitize(), pgx.Identifier{field}.Sanitize())
	var count int64
	if err := w.pool.QueryRow(ctx, sql, date).Scan(&count); err != nil {
		// Cannot confirm a duplicate; proceeding risks only a false
		// negative, skipping would risk dropping real data.
		return false
	}
	return count > 0
}

func (w *Postgres) BulkLoad(ctx context.Context, dataset, table string, fields []schema.Field, rows []schema.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if len(fields) == 0 {
		return wrapError(CodeBadPayload, false, fmt.Errorf("no schema for load into %s.%s", dataset, table))
	}
	if err := w.wait(ctx); err != nil {
		return err
	}

	columns := schema.Columns(fields)
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		values := make([]any, len(fields))
		for j, f := range fields {
			v, err := convertValue(rows[i][f.Name], f.Type)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, f.Name, err)
			}
			values[j] = v
		}
		return values, nil
	})

	// One COPY per call: the job is atomic, and a failure is terminal for
	// this call (retry-with-dedup is the caller's decision).
	if _, err := w.pool.CopyFrom(ctx, pgx.Identifier{dataset, table}, columns, src); err != nil {
		return wrapError(CodeLoadJobFailed, false, err)
	}
	return nil
}

func (w *Postgres) LoadFromReader(ctx context.Context, dataset, table string, r io.Reader, opts StagedLoadOptions) (int64, error) {
	if err := w.wait(ctx); err != nil {
		return 0, err
	}
	tableFields, err := w.GetTableSchema(ctx, dataset, table)
	if err != nil {
		return 0, err
	}

	var src pgx.CopyFromSource
	var columns []string
	switch opts.Format {
	case FormatCSV, "":
		csvSrc, err := newCSVCopySource(r, tableFields, opts)
		if err != nil {
			return 0, err
		}
		src, columns = csvSrc, csvSrc.columns()
	case FormatNDJSON:
		ndSrc, err := newNDJSONCopySource(r, tableFields, opts)
		if err != nil {
			return 0, err
		}
		src, columns = ndSrc, ndSrc.columns()
	default:
		return 0, wrapError(CodeBadPayload, false, fmt.Errorf("unknown staged format %q", opts.Format))
	}

	n, err := w.pool.CopyFrom(ctx, pgx.Identifier{dataset, table}, columns, src)
	if err != nil {
		return n, wrapError(CodeLoadJobFailed, false, err)
	}
	return n, nil
}

// projection maps payload columns onto table fields, enforcing the
// unknown-column tolerance flag.
func buildProjection(payloadCols []string, tableFields []schema.Field, allowUnknown bool) ([]int, []schema.Field, error) {
	byName := make(map[string]schema.Field, len(tableFields))
	for _, f := range tableFields {
		byName[f.Name] = f
	}

	var idx []int
	var kept []schema.Field
	for i, name := range payloadCols {
		f, ok := byName[name]
		if !ok {
			if allowUnknown {
				continue
			}
			return nil, nil, wrapError(CodeBadPayload, false,
				fmt.Errorf("payload column %q not present on table", name))
		}
		idx = append(idx, i)
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		return nil, nil, wrapError(CodeBadPayload, false, fmt.Errorf("no payload columns match the table"))
	}
	return idx, kept, nil
}

type csvCopySource struct {
	reader  *csv.Reader
	indices []int
	fields  []schema.Field
	current []any
	err     error
}

func newCSVCopySource(r io.Reader, tableFields []schema.Field, opts StagedLoadOptions) (*csvCopySource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	cols := opts.Columns
	if opts.SkipHeader {
		header, err := reader.Read()
		if err != nil {
			return nil, wrapError(CodeBadPayload, false, fmt.Errorf("read csv header: %w", err))
		}
		cols = header
	}
	if len(cols) == 0 {
		return nil, wrapError(CodeBadPayload, false, fmt.Errorf("csv payload needs a header row or a column list"))
	}

	indices, fields, err := buildProjection(cols, tableFields, opts.AllowUnknownColumns)
	if err != nil {
		return nil, err
	}
	return &csvCopySource{reader: reader, indices: indices, fields: fields}, nil
}

func (s *csvCopySource) columns() []string { return schema.Columns(s.fields) }

func (s *csvCopySource) Next() bool {
	record, err := s.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = wrapError(CodeBadPayload, false, err)
		return false
	}

	values := make([]any, len(s.fields))
	for j, f := range s.fields {
		pos := s.indices[j]
		if pos >= len(record) {
			values[j] = nil
			continue
		}
		v, err := convertText(record[pos], f.Type)
		if err != nil {
			s.err = wrapError(CodeBadPayload, false, fmt.Errorf("column %s: %w", f.Name, err))
			return false
		}
		values[j] = v
	}
	s.current = values
	return true
}

func (s *csvCopySource) Values() ([]any, error) { return s.current, s.err }
func (s *csvCopySource) Err() error             { return s.err }

type ndjsonCopySource struct {
	dec     *json.Decoder
	fields  []schema.Field
	current []any
	err     error
}

func newNDJSONCopySource(r io.Reader, tableFields []schema.Field, opts StagedLoadOptions) (*ndjsonCopySource, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	fields := tableFields
	if len(opts.Columns) > 0 {
		_, kept, err := buildProjection(opts.Columns, tableFields, opts.AllowUnknownColumns)
		if err != nil {
			return nil, err
		}
		fields = kept
	}
	return &ndjsonCopySource{dec: dec, fields: fields}, nil
}

func (s *ndjsonCopySource) columns() []string { return schema.Columns(s.fields) }

func (s *ndjsonCopySource) Next() bool {
	if !s.dec.More() {
		return false
	}
	var row map[string]any
	if err := s.dec.Decode(&row); err != nil {
		s.err = wrapError(CodeBadPayload, false, err)
		return false
	}
	values := make([]any, len(s.fields))
	for j, f := range s.fields {
		v, err := convertValue(row[f.Name], f.Type)
		if err != nil {
			s.err = wrapError(CodeBadPayload, false, fmt.Errorf("column %s: %w", f.Name, err))
			return false
		}
		values[j] = v
	}
	s.current = values
	return true
}

func (s *ndjsonCopySource) Values() ([]any, error) { return s.current, s.err }
func (s *ndjsonCopySource) Err() error             { return s.err }

func sqlType(t schema.Type) string {
	switch t {
	case schema.TypeInteger:
		return "bigint"
	case schema.TypeFloat:
		return "double precision"
	case schema.TypeBoolean:
		return "boolean"
	case schema.TypeDate:
		return "date"
	case schema.TypeDatetime:
		return "timestamptz"
	default:
		return "text"
	}
}

func columnType(dataType string) schema.Type {
	switch strings.ToLower(dataType) {
	case "smallint", "integer", "bigint":
		return schema.TypeInteger
	case "real", "double precision", "numeric":
		return schema.TypeFloat
	case "boolean":
		return schema.TypeBoolean
	case "date":
		return schema.TypeDate
	case "timestamp without time zone", "timestamp with time zone":
		return schema.TypeDatetime
	default:
		return schema.TypeString
	}
}

// convertValue coerces a row value to the wire representation for its
// column type. nil stays NULL.
func convertValue(v any, t schema.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.TypeInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		case json.Number:
			return n.Int64()
		case string:
			return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		}
	case schema.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		case string:
			return strconv.ParseFloat(strings.TrimSpace(n), 64)
		}
	case schema.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(b))
		}
	case schema.TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d, nil
		case string:
			return time.Parse("2006-01-02", strings.TrimSpace(d))
		}
	case schema.TypeDatetime:
		switch d := v.(type) {
		case time.Time:
			return d, nil
		case string:
			return parseDatetime(strings.TrimSpace(d))
		}
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

// convertText coerces a CSV cell. An empty cell is NULL (the staging path
// writes missing values as empty strings).
func convertText(raw string, t schema.Type) (any, error) {
	if raw == "" && t != schema.TypeString {
		return nil, nil
	}
	return convertValue(raw, t)
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

// classifyError converts driver errors into coded warehouse errors.
func classifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42P01":
			return wrapError(CodeTableNotFound, false, err)
		case pgErr.Code == "3F000":
			return wrapError(CodeDatasetNotFound, false, err)
		case strings.HasPrefix(pgErr.Code, "28"):
			return wrapError(CodeAuthInvalid, false, err)
		case pgErr.Code == "57014":
			return wrapError(CodeTimeout, true, err)
		case strings.HasPrefix(pgErr.Code, "08"):
			return wrapError(CodeUnreachable, true, err)
		}
		return wrapError(CodeQueryFailed, false, err)
	}

	lowered := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowered, "connection refused"),
		strings.Contains(lowered, "no such host"),
		strings.Contains(lowered, "unreachable"):
		return wrapError(CodeUnreachable, true, err)
	case strings.Contains(lowered, "timeout"), strings.Contains(lowered, "deadline"):
		return wrapError(CodeTimeout, true, err)
	case strings.Contains(lowered, "password"), strings.Contains(lowered, "authentication"):
		return wrapError(CodeAuthInvalid, false, err)
	}
	return wrapError(CodeQueryFailed, false, err)
}
