package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/adlake/ingest-core/internal/schema"
	"github.com/adlake/ingest-core/internal/stage"
)

var adFields = []schema.Field{
	{Name: "date", Type: schema.TypeString},
	{Name: "clicks", Type: schema.TypeInteger},
	{Name: "cost", Type: schema.TypeFloat},
}

func TestWriteBatchProducesPartitionedArtifact(t *testing.T) {
	s := stage.NewLocalStage(t.TempDir())
	a := NewArchiver(s, "")
	ctx := context.Background()

	rows := []schema.Row{
		{"date": "2025-03-01", "clicks": 10, "cost": 5.5},
		{"date": "2025-03-01", "clicks": 3, "cost": 1.0},
	}
	blob, err := a.WriteBatch(ctx, "marketing", "NAVER_AD", "2025-03-01", "run-1", adFields, rows)
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}
	want := "archive/marketing/NAVER_AD/dt=2025-03-01/run=run-1/part-000000.parquet"
	if blob != want {
		t.Fatalf("blob = %q, want %q", blob, want)
	}

	data, err := s.Download(ctx, blob)
	if err != nil {
		t.Fatalf("download artifact: %v", err)
	}
	// Parquet footers end with the PAR1 magic.
	if len(data) < 8 || string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("artifact is not a parquet file (%d bytes)", len(data))
	}
}

func TestWriteBatchEmptyIsNoop(t *testing.T) {
	s := stage.NewLocalStage(t.TempDir())
	a := NewArchiver(s, "")

	blob, err := a.WriteBatch(context.Background(), "marketing", "NAVER_AD", "2025-03-01", "run-1", adFields, nil)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if blob != "" {
		t.Fatalf("expected no artifact for empty batch, got %q", blob)
	}
	keys, _ := s.List(context.Background(), "archive/")
	if len(keys) != 0 {
		t.Fatalf("stage not empty: %v", keys)
	}
}

func TestBuildParquetSchemaTypes(t *testing.T) {
	def := buildParquetSchema(adFields)
	for _, want := range []string{
		"name=date, type=BYTE_ARRAY",
		"name=clicks, type=INT64",
		"name=cost, type=DOUBLE",
	} {
		if !strings.Contains(def, want) {
			t.Fatalf("schema def missing %q: %s", want, def)
		}
	}
}
