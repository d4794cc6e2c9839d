// Package archive writes immutable parquet copies of successfully loaded
// batches into the object stage, partitioned by load date and run. Archive
// failures never fail the ingestion that produced them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/adlake/ingest-core/internal/schema"
	"github.com/adlake/ingest-core/internal/stage"
)

// Archiver writes batch artifacts through a stage session.
type Archiver struct {
	stage  stage.Stage
	prefix string
}

// NewArchiver creates an archiver rooted at prefix ("archive" by default).
func NewArchiver(s stage.Stage, prefix string) *Archiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &Archiver{stage: s, prefix: prefix}
}

// WriteBatch writes one batch as a single snappy-compressed parquet object
// and returns its blob name.
func (a *Archiver) WriteBatch(ctx context.Context, dataset, table, loadDate, runID string, fields []schema.Field, rows []schema.Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	if loadDate == "" {
		loadDate = time.Now().UTC().Format("2006-01-02")
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(buildParquetSchema(fields), pfw, 4)
	if err != nil {
		return "", fmt.Errorf("open parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range rows {
		encoded, err := json.Marshal(projectRow(row, fields))
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return "", fmt.Errorf("encode row %d: %w", i, err)
		}
		if err := pw.Write(string(encoded)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return "", fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return "", fmt.Errorf("finalize parquet: %w", err)
	}
	_ = pfw.Close()

	blob := fmt.Sprintf("%s/%s/%s/dt=%s/run=%s/part-%06d.parquet",
		a.prefix, dataset, table, loadDate, runID, 0)
	if err := a.stage.Upload(ctx, blob, buf.Bytes()); err != nil {
		return "", err
	}
	return blob, nil
}

func buildParquetSchema(fields []schema.Field) string {
	defs := make([]map[string]string, 0, len(fields))
	for _, f := range fields {
		defs = append(defs, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", f.Name, parquetPhysicalType(f.Type)),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": defs,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func parquetPhysicalType(t schema.Type) string {
	switch t {
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeInteger:
		return "INT64"
	case schema.TypeFloat:
		return "DOUBLE"
	default:
		return "BYTE_ARRAY"
	}
}

// projectRow keeps only schema columns and renders date values as strings
// for the BYTE_ARRAY physical type.
func projectRow(row schema.Row, fields []schema.Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v := row[f.Name]
		if ts, ok := v.(time.Time); ok {
			switch f.Type {
			case schema.TypeDate:
				v = ts.Format("2006-01-02")
			default:
				v = ts.Format(time.RFC3339)
			}
		}
		out[f.Name] = v
	}
	return out
}
