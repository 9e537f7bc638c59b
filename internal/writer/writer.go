// Package writer emits a bucket table to one file per requested format.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tlcetl/internal/metrics"
	"tlcetl/internal/table"
	"tlcetl/internal/tlc"

	"github.com/xuri/excelize/v2"
)

// DefaultAvroChunkRows bounds how many rows the avro path materializes at once.
const DefaultAvroChunkRows = 1_000_000

type Options struct {
	// AvroChunkRows is the avro append size; 0 means DefaultAvroChunkRows.
	AvroChunkRows int
	// SheetRows is the xlsx row limit per sheet, header included;
	// 0 means the format's limit.
	SheetRows int
}

type Writer struct {
	opts Options
}

func New(opts Options) *Writer {
	if opts.AvroChunkRows <= 0 {
		opts.AvroChunkRows = DefaultAvroChunkRows
	}
	if opts.SheetRows <= 1 {
		opts.SheetRows = excelize.TotalRows
	}
	return &Writer{opts: opts}
}

// Path is where a table named baseName is written for format f.
func Path(dir, baseName string, f tlc.Format) string {
	return filepath.Join(dir, baseName+"."+f.Ext())
}

// Write serializes t once per format into dir/baseName.<ext>, replacing any
// existing file. It returns the paths written so far, also on error.
func (w *Writer) Write(t *table.Table, baseName, dir string, formats []tlc.Format) ([]string, error) {
	if err := t.Check(); err != nil {
		return nil, fmt.Errorf("write %s: %v", baseName, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("write %s: %w", baseName, err)
	}

	var written []string
	for _, f := range formats {
		path := Path(dir, baseName, f)
		start := time.Now()
		var err error
		switch f {
		case tlc.Parquet:
			err = writeParquet(path, t)
		case tlc.CSV:
			err = writeCSV(path, t)
		case tlc.XLSX:
			err = writeXLSX(path, t, w.opts.SheetRows)
		case tlc.Avro:
			err = writeAvro(path, baseName, t, w.opts.AvroChunkRows)
		default:
			err = fmt.Errorf("%w: output format %q", tlc.ErrUnsupportedFormat, f)
		}
		metrics.RecordStep("write_"+string(f), err, time.Since(start))
		if err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		metrics.RecordRows("written", t.NumRows())
		written = append(written, path)
	}
	return written, nil
}
