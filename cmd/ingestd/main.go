// Package main implements ingestd, the batch-loading command: it reads
// report batches (NDJSON) or oversized CSV exports and loads them into the
// warehouse.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/adlake/ingest-core/internal/archive"
	"github.com/adlake/ingest-core/internal/bridge"
	"github.com/adlake/ingest-core/internal/config"
	"github.com/adlake/ingest-core/internal/ingest"
	"github.com/adlake/ingest-core/internal/schema"
	"github.com/adlake/ingest-core/internal/stage"
	"github.com/adlake/ingest-core/internal/warehouse"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (env vars override)")
		dataset    = flag.String("dataset", "", "target dataset (overrides config)")
		table      = flag.String("table", "", "target table (default: batch file name)")
		csvPath    = flag.String("csv", "", "load one CSV export through the stage instead of NDJSON batches")
		truncate   = flag.Bool("truncate", false, "truncate the table before a CSV load")
		scrub      = flag.Bool("scrub-timestamps", false, "rewrite offset-timestamp cells to dates before a CSV load")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dataset != "" {
		cfg.Dataset = *dataset
	}
	if cfg.Dataset == "" {
		log.Fatalf("no dataset: set -dataset, INGEST_DATASET, or dataset in the config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wh, err := warehouse.NewPostgres(ctx, cfg.WarehouseConfig())
	if err != nil {
		log.Fatalf("warehouse: %v", err)
	}
	defer wh.Close()

	var st stage.Stage
	if cfg.StageEnabled() {
		s3, err := stage.NewS3Stage(cfg.StageClientConfig())
		if err != nil {
			log.Fatalf("stage: %v", err)
		}
		if err := s3.Ping(ctx); err != nil {
			log.Fatalf("stage ping: %v", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			log.Fatalf("stage bucket: %v", err)
		}
		st = s3
	}

	if *csvPath != "" {
		if st == nil {
			log.Fatalf("csv loads need a configured stage")
		}
		if *table == "" {
			log.Fatalf("-table is required with -csv")
		}
		opts := bridge.Options{Truncate: *truncate}
		if *scrub {
			opts.Transform = bridge.ScrubOffsetTimestamps
		}
		f, err := os.Open(*csvPath)
		if err != nil {
			log.Fatalf("open csv: %v", err)
		}
		defer f.Close()

		rows, err := bridge.New(st, wh).LoadStream(ctx, cfg.Dataset, *table, f, filepath.Base(*csvPath), opts)
		if err != nil {
			log.Fatalf("csv load: %v", err)
		}
		log.Printf("%s.%s: loaded %d rows from %s", cfg.Dataset, *table, rows, *csvPath)
		return
	}

	if flag.NArg() == 0 {
		log.Fatalf("no batch files given")
	}

	registry, err := cfg.Registry()
	if err != nil {
		log.Fatalf("families: %v", err)
	}
	loader := ingest.NewLoader(wh, registry)
	loader.ChunkSize = cfg.Ingest.ChunkSize
	loader.TableReadyAttempts = cfg.Ingest.TableReadyAttempts
	loader.TableReadyDelay = cfg.TableReadyDelay()
	if cfg.Ingest.Archive {
		loader.Archiver = archive.NewArchiver(st, "")
	}

	batches := make([]ingest.Batch, 0, flag.NArg())
	for _, path := range flag.Args() {
		batch, err := readBatch(path, *table)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		batches = append(batches, batch)
	}

	runner := ingest.NewRunner(loader)
	runner.Parallelism = cfg.Ingest.Parallelism
	result := runner.Run(ctx, cfg.Dataset, batches)

	for name, res := range result.Tables {
		switch res.Outcome {
		case ingest.OutcomeFailed:
			log.Printf("%s.%s: %s (%s), %d rows committed", cfg.Dataset, name, res.Outcome, res.Reason, res.RowsLoaded)
		default:
			log.Printf("%s.%s: %s, %d rows", cfg.Dataset, name, res.Outcome, res.RowsLoaded)
		}
	}
	if result.Failed() {
		os.Exit(1)
	}
}

// readBatch parses one NDJSON batch file. The table name comes from the
// -table flag or from the file name (report_NAVER_AD.ndjson -> NAVER_AD is
// the caller's concern; the bare base name is used as-is).
func readBatch(path, table string) (ingest.Batch, error) {
	if table == "" {
		base := filepath.Base(path)
		table = strings.TrimSuffix(base, filepath.Ext(base))
	}

	f, err := os.Open(path)
	if err != nil {
		return ingest.Batch{}, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var rows []schema.Row
	for dec.More() {
		var row schema.Row
		if err := dec.Decode(&row); err != nil {
			return ingest.Batch{}, fmt.Errorf("row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return ingest.Batch{Table: table, Rows: rows}, nil
}
