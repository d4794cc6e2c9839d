// Package bridge moves oversized payloads into the warehouse through the
// object stage instead of inline row loads. Staged objects are transient:
// both the success and the failure path delete them.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/adlake/ingest-core/internal/stage"
	"github.com/adlake/ingest-core/internal/warehouse"
)

// Transform rewrites a parsed table between staging and loading. It must be
// pure: no I/O, same input same output.
type Transform func(*Table) (*Table, error)

// Options controls one bridged load.
type Options struct {
	Format              warehouse.StagedFormat
	AllowUnknownColumns bool

	// RequiredColumns fails the load before touching the table when the
	// payload header is missing any of them.
	RequiredColumns []string

	// Truncate empties the table before loading (full-replace uploads).
	Truncate bool

	// Transform, when set, downloads the staged payload once, applies the
	// function, and loads the transformed copy. CSV only.
	Transform Transform
}

// Bridge wires a stage session to a warehouse session.
type Bridge struct {
	Stage     stage.Stage
	Warehouse warehouse.Warehouse
}

func New(s stage.Stage, w warehouse.Warehouse) *Bridge {
	return &Bridge{Stage: s, Warehouse: w}
}

// LoadStream stages the payload from r under
// {dataset}/{table}/{timestamp}_{originalName}, loads it into the table,
// and deletes every staged object before returning, succeed or fail.
func (b *Bridge) LoadStream(ctx context.Context, dataset, table string, r io.Reader, originalName string, opts Options) (rows int64, err error) {
	if opts.Format == "" {
		opts.Format = warehouse.FormatCSV
	}
	if opts.Transform != nil && opts.Format != warehouse.FormatCSV {
		return 0, fmt.Errorf("transforms are supported for csv payloads only")
	}

	blob := stage.BlobName(dataset, table, originalName)
	if err := b.Stage.UploadStream(ctx, blob, r, -1); err != nil {
		return 0, fmt.Errorf("stage payload: %w", err)
	}
	blobs := []string{blob}
	defer func() {
		// Cleanup must run even when the load was rejected; context
		// cancellation is the one excuse, so use a detached context.
		for _, name := range blobs {
			_, _ = b.Stage.Delete(context.WithoutCancel(ctx), name)
		}
	}()

	loadBlob := blob
	if opts.Transform != nil {
		loadBlob, err = b.transformStaged(ctx, dataset, table, blob, originalName, opts)
		if err != nil {
			return 0, err
		}
		blobs = append(blobs, loadBlob)
	} else if len(opts.RequiredColumns) > 0 && opts.Format == warehouse.FormatCSV {
		if err := b.validateHeader(ctx, blob, opts.RequiredColumns); err != nil {
			return 0, err
		}
	}

	if opts.Truncate {
		if err := b.Warehouse.TruncateTable(ctx, dataset, table); err != nil {
			return 0, fmt.Errorf("truncate before load: %w", err)
		}
	}

	rc, err := b.Stage.Open(ctx, loadBlob)
	if err != nil {
		return 0, fmt.Errorf("open staged payload: %w", err)
	}
	defer rc.Close()

	rows, err = b.Warehouse.LoadFromReader(ctx, dataset, table, rc, warehouse.StagedLoadOptions{
		Format:              opts.Format,
		SkipHeader:          opts.Format == warehouse.FormatCSV,
		AllowUnknownColumns: opts.AllowUnknownColumns,
	})
	if err != nil {
		return rows, fmt.Errorf("load staged payload: %w", err)
	}
	return rows, nil
}

// transformStaged downloads the staged payload once, applies the transform,
// and re-stages the result for loading.
func (b *Bridge) transformStaged(ctx context.Context, dataset, table, blob, originalName string, opts Options) (string, error) {
	rc, err := b.Stage.Open(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("open staged payload: %w", err)
	}
	parsed, err := ParseCSV(rc)
	rc.Close()
	if err != nil {
		return "", err
	}

	if len(opts.RequiredColumns) > 0 {
		if missing := missingColumns(parsed.Columns, opts.RequiredColumns); len(missing) > 0 {
			return "", fmt.Errorf("payload missing required columns: %s", strings.Join(missing, ", "))
		}
	}

	transformed, err := opts.Transform(parsed)
	if err != nil {
		return "", fmt.Errorf("transform payload: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := transformed.Encode(buf); err != nil {
		return "", fmt.Errorf("encode transformed payload: %w", err)
	}
	out := stage.BlobName(dataset, table, "transformed_"+originalName)
	if err := b.Stage.UploadStream(ctx, out, buf, int64(buf.Len())); err != nil {
		return "", fmt.Errorf("stage transformed payload: %w", err)
	}
	return out, nil
}

// validateHeader checks required columns by reading only the header record
// of the staged object.
func (b *Bridge) validateHeader(ctx context.Context, blob string, required []string) error {
	rc, err := b.Stage.Open(ctx, blob)
	if err != nil {
		return fmt.Errorf("open staged payload: %w", err)
	}
	defer rc.Close()

	header, err := readHeader(rc)
	if err != nil {
		return err
	}
	if missing := missingColumns(header, required); len(missing) > 0 {
		return fmt.Errorf("payload missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
