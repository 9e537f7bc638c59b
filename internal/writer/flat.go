package writer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	pqparser "tlcetl/internal/parser/parquet"
	"tlcetl/internal/table"

	"github.com/xuri/excelize/v2"
)

func writeParquet(path string, t *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pqparser.Write(f, t); err != nil {
		_ = f.Close()
		return err
	}
	// The parquet writer closes its sink.
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// writeCSV writes a header line and one line per row; nulls are empty fields.
func writeCSV(path string, t *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)
	cw := csv.NewWriter(bw)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for i := 0; i < t.NumRows(); i++ {
		for ci, c := range t.Columns {
			if c.IsNull(i) {
				rec[ci] = ""
			} else {
				rec[ci] = c.Text(i)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// writeXLSX streams rows into Sheet1 and continues on Sheet2, Sheet3, ...
// once a sheet holds sheetRows rows. Every sheet starts with the header.
func writeXLSX(path string, t *table.Table, sheetRows int) error {
	xf := excelize.NewFile()
	defer xf.Close()

	header := make([]any, len(t.Columns))
	for i, name := range t.Names() {
		header[i] = name
	}

	var (
		sw    *excelize.StreamWriter
		sheet int
		row   int
	)
	next := func() error {
		if sw != nil {
			if err := sw.Flush(); err != nil {
				return err
			}
		}
		sheet++
		name := fmt.Sprintf("Sheet%d", sheet)
		if sheet > 1 {
			if _, err := xf.NewSheet(name); err != nil {
				return err
			}
		}
		var err error
		if sw, err = xf.NewStreamWriter(name); err != nil {
			return err
		}
		row = 1
		return sw.SetRow("A1", header)
	}
	if err := next(); err != nil {
		return err
	}

	vals := make([]any, len(t.Columns))
	for i := 0; i < t.NumRows(); i++ {
		if row == sheetRows {
			if err := next(); err != nil {
				return err
			}
		}
		row++
		for ci, c := range t.Columns {
			vals[ci] = c.Value(i)
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, vals); err != nil {
			return fmt.Errorf("sheet %d row %d: %w", sheet, row, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return xf.SaveAs(path)
}
