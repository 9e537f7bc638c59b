package writer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	pqparser "tlcetl/internal/parser/parquet"
	"tlcetl/internal/table"
	"tlcetl/internal/tlc"

	"github.com/google/go-cmp/cmp"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
	"github.com/xuri/excelize/v2"
)

// bucketTable has n rows; every third fare is null.
func bucketTable(n int) *table.Table {
	vendor := table.NewColumn("VendorID", table.Int, n)
	fare := table.NewColumn("fare_amount", table.Float, n)
	cat := table.NewColumn("category", table.String, n)
	for i := 0; i < n; i++ {
		vendor.AppendInt(int64(i))
		if i%3 == 2 {
			fare.AppendNull()
		} else {
			fare.AppendFloat(float64(i) + 0.5)
		}
		if i%2 == 0 {
			cat.AppendString("yellow")
		} else {
			cat.AppendString("green")
		}
	}
	return table.New(vendor, fare, cat)
}

type avroRow struct {
	VendorID   *int     `avro:"VendorID"`
	FareAmount *float32 `avro:"fare_amount"`
	Category   *string  `avro:"category"`
}

func readAvro(t *testing.T, path string) []avroRow {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := ocf.NewDecoder(f)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	var out []avroRow
	for dec.HasNext() {
		var r avroRow
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, r)
	}
	if err := dec.Error(); err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return out
}

func TestWrite_AllFormats(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	w := New(Options{})
	paths, err := w.Write(bucketTable(5), "yellow_green_tripdata_2021-01", dir, []tlc.Format{tlc.Parquet, tlc.CSV, tlc.XLSX, tlc.Avro})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := []string{
		filepath.Join(dir, "yellow_green_tripdata_2021-01.parquet"),
		filepath.Join(dir, "yellow_green_tripdata_2021-01.csv"),
		filepath.Join(dir, "yellow_green_tripdata_2021-01.xlsx"),
		filepath.Join(dir, "yellow_green_tripdata_2021-01.avro"),
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("paths (-want +got):\n%s", diff)
	}

	b, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	pq, err := pqparser.Read(context.Background(), b)
	if err != nil {
		t.Fatalf("parquet.Read: %v", err)
	}
	if pq.NumRows() != 5 || !pq.Column("fare_amount").IsNull(2) {
		t.Fatalf("parquet round trip: %+v", pq)
	}

	cf, err := os.Open(paths[1])
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer cf.Close()
	recs, err := csv.NewReader(cf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if diff := cmp.Diff([]string{"VendorID", "fare_amount", "category"}, recs[0]); diff != "" {
		t.Fatalf("csv header (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2", "", "yellow"}, recs[3]); diff != "" {
		t.Fatalf("csv row 2 (-want +got):\n%s", diff)
	}

	rows := readAvro(t, paths[3])
	if len(rows) != 5 || *rows[1].VendorID != 1 || rows[2].FareAmount != nil || *rows[4].Category != "yellow" {
		t.Fatalf("avro rows: %+v", rows)
	}
}

// TestWrite_AvroChunkBoundaries checks the row count survives chunked
// appends below, at and above the chunk size.
func TestWrite_AvroChunkBoundaries(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 3, 4, 10} {
		dir := t.TempDir()
		w := New(Options{AvroChunkRows: 4})
		paths, err := w.Write(bucketTable(n), "b", dir, []tlc.Format{tlc.Avro})
		if err != nil {
			t.Fatalf("n=%d: Write: %v", n, err)
		}
		rows := readAvro(t, paths[0])
		if len(rows) != n {
			t.Fatalf("n=%d: got %d avro rows", n, len(rows))
		}
		for i, r := range rows {
			if *r.VendorID != i {
				t.Fatalf("n=%d: row %d VendorID=%d", n, i, *r.VendorID)
			}
		}
	}
}

func TestWrite_AvroAboveDefaultChunk(t *testing.T) {
	if testing.Short() {
		t.Skip("writes a million rows")
	}
	t.Parallel()

	const n = DefaultAvroChunkRows + 5
	c := table.NewColumn("VendorID", table.Int, n)
	for i := 0; i < n; i++ {
		c.AppendInt(int64(i % 3))
	}
	dir := t.TempDir()
	paths, err := New(Options{}).Write(table.New(c), "big", dir, []tlc.Format{tlc.Avro})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := ocf.NewDecoder(f)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	got := 0
	for dec.HasNext() {
		var r struct {
			VendorID *int `avro:"VendorID"`
		}
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got++
	}
	if got != n {
		t.Fatalf("got %d rows, want %d", got, n)
	}
}

func TestWrite_OverwritesExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := New(Options{AvroChunkRows: 2})
	for _, n := range []int{7, 3} {
		if _, err := w.Write(bucketTable(n), "b", dir, []tlc.Format{tlc.Avro, tlc.CSV}); err != nil {
			t.Fatalf("Write(%d): %v", n, err)
		}
	}
	if rows := readAvro(t, filepath.Join(dir, "b.avro")); len(rows) != 3 {
		t.Fatalf("avro not overwritten: %d rows", len(rows))
	}
	b, err := os.ReadFile(filepath.Join(dir, "b.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil || len(recs) != 4 {
		t.Fatalf("csv not overwritten: %d records, err=%v", len(recs), err)
	}
}

func TestWrite_XLSXSpillsSheets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := New(Options{SheetRows: 3})
	paths, err := w.Write(bucketTable(5), "b", dir, []tlc.Format{tlc.XLSX})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	xf, err := excelize.OpenFile(paths[0])
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer xf.Close()
	if diff := cmp.Diff([]string{"Sheet1", "Sheet2", "Sheet3"}, xf.GetSheetList()); diff != "" {
		t.Fatalf("sheets (-want +got):\n%s", diff)
	}
	total := 0
	for _, s := range xf.GetSheetList() {
		rows, err := xf.GetRows(s)
		if err != nil {
			t.Fatalf("GetRows(%s): %v", s, err)
		}
		if rows[0][0] != "VendorID" {
			t.Fatalf("%s: missing header: %v", s, rows[0])
		}
		total += len(rows) - 1
	}
	if total != 5 {
		t.Fatalf("xlsx data rows = %d, want 5", total)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).Write(bucketTable(1), "b", t.TempDir(), []tlc.Format{"json"})
	if !errors.Is(err, tlc.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestAvroSchema(t *testing.T) {
	t.Parallel()

	big := table.NewColumn("dropoff_datetime", table.Int, 2)
	big.AppendInt(1_609_459_200_000)
	big.AppendNull()
	ok := table.NewColumn("2nd flag", table.Bool, 2)
	ok.AppendBool(true)
	ok.AppendBool(false)

	s, types, err := AvroSchema("taxi-zones", table.New(big, ok))
	if err != nil {
		t.Fatalf("AvroSchema: %v", err)
	}
	if diff := cmp.Diff([]string{"long", "boolean"}, types); diff != "" {
		t.Fatalf("types (-want +got):\n%s", diff)
	}
	rec := s.(*avro.RecordSchema)
	if rec.Name() != "taxi_zones" {
		t.Fatalf("record name = %q", rec.Name())
	}
	var names []string
	for _, f := range rec.Fields() {
		names = append(names, f.Name())
		u, ok := f.Type().(*avro.UnionSchema)
		if !ok || !u.Nullable() {
			t.Fatalf("field %s is not a nullable union: %s", f.Name(), f.Type())
		}
	}
	if diff := cmp.Diff([]string{"dropoff_datetime", "_2nd_flag"}, names); diff != "" {
		t.Fatalf("field names (-want +got):\n%s", diff)
	}

	a := table.NewColumn("a b", table.String, 0)
	b := table.NewColumn("a-b", table.String, 0)
	if _, _, err := AvroSchema("x", table.New(a, b)); err == nil {
		t.Fatal("expected error for colliding field names")
	}
}

func TestAvroType(t *testing.T) {
	t.Parallel()

	ints := func(vals ...int64) *table.Column {
		c := table.NewColumn("n", table.Int, len(vals))
		for _, v := range vals {
			c.AppendInt(v)
		}
		return c
	}
	nullWide := ints(1)
	nullWide.AppendNull()
	nullWide.Ints[1] = 1 << 40

	tests := []struct {
		name string
		col  *table.Column
		want string
	}{
		{"int32_bounds", ints(math.MinInt32, math.MaxInt32), "int"},
		{"above_int32", ints(0, math.MaxInt32+1), "long"},
		{"epoch_millis", ints(1_609_459_200_000), "long"},
		{"wide_value_null", nullWide, "int"},
		{"float", table.NewColumn("f", table.Float, 0), "float"},
		{"bool", table.NewColumn("b", table.Bool, 0), "boolean"},
		{"string", table.NewColumn("s", table.String, 0), "string"},
		{"timestamp", table.NewColumn("ts", table.Timestamp, 0), "string"},
	}
	for _, tc := range tests {
		if got := avroType(tc.col); got != tc.want {
			t.Errorf("%s: avroType = %q, want %q", tc.name, got, tc.want)
		}
	}
}
