package normalize

import (
	"errors"
	"testing"
	"time"

	"tlcetl/internal/table"
	"tlcetl/internal/tlc"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	yellowFile = tlc.FileDescriptor{Name: "yellow_tripdata_2021-01", Extension: ".parquet", Category: tlc.YellowGreen, SourceCategory: tlc.Yellow}
	greenFile  = tlc.FileDescriptor{Name: "green_tripdata_2021-01", Extension: ".parquet", Category: tlc.YellowGreen, SourceCategory: tlc.Green}
)

func tripTable(prefix string) *table.Table {
	vendor := table.NewColumn("VendorID", table.Int, 2)
	vendor.AppendInt(1)
	vendor.AppendInt(2)

	pickup := table.NewColumn(prefix+"pickup_datetime", table.Timestamp, 2)
	pickup.AppendTimestamp(time.Date(2021, 1, 1, 0, 30, 10, 123_456_789, time.UTC))
	pickup.AppendNull()

	ehail := table.NewColumn("ehail_fee", table.Float, 2)
	ehail.AppendNull()
	ehail.AppendNull()

	return table.New(vendor, pickup, ehail)
}

func TestNormalize_Merged(t *testing.T) {
	t.Parallel()

	raw := tripTable("tpep_")
	got, err := Normalize(raw, yellowFile, tlc.YellowGreen)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if diff := cmp.Diff([]string{"VendorID", "pickup_datetime", "category"}, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	pickup := got.Column("pickup_datetime")
	if pickup.Type != table.Int {
		t.Fatalf("pickup type = %s, want integer", pickup.Type)
	}
	want := time.Date(2021, 1, 1, 0, 30, 10, 123_000_000, time.UTC).UnixMilli()
	if pickup.Ints[0] != want || !pickup.IsNull(1) {
		t.Fatalf("pickup = %v valid=%v, want %d then null", pickup.Ints, pickup.Valid, want)
	}
	cat := got.Column(CategoryColumn)
	if diff := cmp.Diff([]string{"yellow", "yellow"}, cat.Strings); diff != "" {
		t.Fatalf("category (-want +got):\n%s", diff)
	}

	// The input is untouched.
	if raw.Columns[1].Name != "tpep_pickup_datetime" || raw.Columns[1].Type != table.Timestamp || len(raw.Columns) != 3 {
		t.Fatalf("input mutated: %v", raw.Names())
	}
}

// TestNormalize_MergedSchemasAgree checks both sides of a merged bucket end
// up with identical column sets and concatenate under the strict policy.
func TestNormalize_MergedSchemasAgree(t *testing.T) {
	t.Parallel()

	y, err := Normalize(tripTable("tpep_"), yellowFile, tlc.YellowGreen)
	if err != nil {
		t.Fatalf("yellow: %v", err)
	}
	g, err := Normalize(tripTable("lpep_"), greenFile, tlc.YellowGreen)
	if err != nil {
		t.Fatalf("green: %v", err)
	}
	if diff := cmp.Diff(y.Names(), g.Names()); diff != "" {
		t.Fatalf("names differ (-yellow +green):\n%s", diff)
	}

	all, err := table.Concat([]*table.Table{y, g}, table.Strict)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if diff := cmp.Diff([]string{"yellow", "yellow", "green", "green"}, all.Column(CategoryColumn).Strings); diff != "" {
		t.Fatalf("category (-want +got):\n%s", diff)
	}
}

// TestNormalize_AllNullColumnStillConcatenates covers a month where one
// member's file has no values for a column the other member fills in.
func TestNormalize_AllNullColumnStillConcatenates(t *testing.T) {
	t.Parallel()

	fees := func(prefix string, vals ...float64) *table.Table {
		vendor := table.NewColumn("VendorID", table.Int, 2)
		pickup := table.NewColumn(prefix+"pickup_datetime", table.Timestamp, 2)
		fee := table.NewColumn("airport_fee", table.Float, 2)
		for i := 0; i < 2; i++ {
			vendor.AppendInt(int64(i + 1))
			pickup.AppendTimestamp(time.Date(2021, 1, 1+i, 0, 0, 0, 0, time.UTC))
			if vals == nil {
				fee.AppendNull()
			} else {
				fee.AppendFloat(vals[i])
			}
		}
		return table.New(vendor, pickup, fee)
	}

	y, err := Normalize(fees("tpep_"), yellowFile, tlc.YellowGreen)
	if err != nil {
		t.Fatalf("yellow: %v", err)
	}
	if diff := cmp.Diff([]string{"airport_fee"}, y.Dropped); diff != "" {
		t.Fatalf("dropped (-want +got):\n%s", diff)
	}
	g, err := Normalize(fees("lpep_", 1.25, 0), greenFile, tlc.YellowGreen)
	if err != nil {
		t.Fatalf("green: %v", err)
	}

	all, err := table.Concat([]*table.Table{y, g}, table.Strict)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if diff := cmp.Diff([]string{"VendorID", "pickup_datetime", "category", "airport_fee"}, all.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	fee := all.Column("airport_fee")
	got := []any{fee.Value(0), fee.Value(1), fee.Value(2), fee.Value(3)}
	if diff := cmp.Diff([]any{nil, nil, 1.25, 0.0}, got); diff != "" {
		t.Fatalf("airport_fee (-want +got):\n%s", diff)
	}
}

// TestNormalize_DroppedNamesAreHarmonized checks prefixed all-null columns
// are recorded under their merged name.
func TestNormalize_DroppedNamesAreHarmonized(t *testing.T) {
	t.Parallel()

	vendor := table.NewColumn("VendorID", table.Int, 1)
	vendor.AppendInt(1)
	dropoff := table.NewColumn("tpep_dropoff_datetime", table.Timestamp, 1)
	dropoff.AppendNull()

	got, err := Normalize(table.New(vendor, dropoff), yellowFile, tlc.YellowGreen)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if diff := cmp.Diff([]string{"dropoff_datetime"}, got.Dropped); diff != "" {
		t.Fatalf("dropped (-want +got):\n%s", diff)
	}
}

func TestNormalize_RawCategoryKeepsNames(t *testing.T) {
	t.Parallel()

	d := yellowFile
	d.Category = tlc.Yellow
	got, err := Normalize(tripTable("tpep_"), d, tlc.Yellow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if diff := cmp.Diff([]string{"VendorID", "tpep_pickup_datetime"}, got.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   *table.Table
		d    tlc.FileDescriptor
		req  tlc.Category
	}{
		{"merged", tripTable("lpep_"), greenFile, tlc.YellowGreen},
		{"raw", tripTable("tpep_"), yellowFile, tlc.Yellow},
		{"empty", table.New(table.NewColumn("a", table.Timestamp, 0)), yellowFile, tlc.YellowGreen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			once, err := Normalize(tc.in, tc.d, tc.req)
			if err != nil {
				t.Fatalf("first: %v", err)
			}
			twice, err := Normalize(once, tc.d, tc.req)
			if err != nil {
				t.Fatalf("second: %v", err)
			}
			if diff := cmp.Diff(once, twice, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("not idempotent (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	t.Parallel()

	fhv := tlc.FileDescriptor{Name: "fhv_tripdata_2021-01", SourceCategory: tlc.FHV, Category: tlc.FHV}
	if _, err := Normalize(tripTable(""), fhv, tlc.YellowGreen); !errors.Is(err, tlc.ErrNormalization) {
		t.Fatalf("foreign source: expected ErrNormalization, got %v", err)
	}

	clash := tripTable("tpep_")
	dup := table.NewColumn("pickup_datetime", table.Int, 2)
	dup.AppendInt(1)
	dup.AppendInt(2)
	clash.Columns = append(clash.Columns, dup)
	if _, err := Normalize(clash, yellowFile, tlc.YellowGreen); !errors.Is(err, tlc.ErrNormalization) {
		t.Fatalf("name clash: expected ErrNormalization, got %v", err)
	}

	if _, err := Normalize(nil, yellowFile, tlc.Yellow); !errors.Is(err, tlc.ErrNormalization) {
		t.Fatalf("nil: expected ErrNormalization, got %v", err)
	}
}

func TestToEpochMillis_FloorsNegative(t *testing.T) {
	t.Parallel()

	c := table.NewColumn("ts", table.Timestamp, 3)
	c.AppendTimestamp(time.Unix(0, -1).UTC())
	c.AppendTimestamp(time.Unix(0, -2_000_000).UTC())
	c.AppendTimestamp(time.Unix(1, 999_999).UTC())
	toEpochMillis(c)
	if diff := cmp.Diff([]int64{-1, -2, 1000}, c.Ints); diff != "" {
		t.Fatalf("millis (-want +got):\n%s", diff)
	}
}

func TestRuleFor(t *testing.T) {
	t.Parallel()

	r, ok := RuleFor(tlc.YellowGreen)
	if !ok || r.rename("tpep_dropoff_datetime") != "dropoff_datetime" || r.rename("lpep_") != "lpep_" {
		t.Fatalf("unexpected yellow_green rule %+v", r)
	}
	if _, ok := RuleFor(tlc.FHV); ok {
		t.Fatal("fhv must not have a merge rule")
	}
}
