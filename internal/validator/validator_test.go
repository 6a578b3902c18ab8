package validator

import (
	"testing"

	"geo-correlate/internal/models"
	"geo-correlate/internal/parser"
)

func pairs(rows ...[]string) []parser.RawPair {
	out := make([]parser.RawPair, len(rows))
	for i, r := range rows {
		out[i] = parser.RawPair{Row: i, Values: r, Raw: "raw"}
	}
	return out
}

func TestValidate_Reasons(t *testing.T) {
	set, diags := Validate("A", pairs(
		[]string{"51.5", "-0.1"},
		[]string{"abc", "1"},
		[]string{"91", "0"},
		[]string{"0", "-180.5"},
		[]string{"1"},
		[]string{" ", "2"},
		[]string{"NaN", "2"},
		[]string{"Inf", "2"},
		[]string{" 90 ", "180"},
		[]string{"-90", "-180"},
	), Options{})

	if set.Label != "A" || set.Len() != 3 {
		t.Fatalf("want 3 valid points, got %+v", set)
	}
	wantRows := []int{0, 8, 9}
	for i, r := range wantRows {
		if set.Rows[i] != r {
			t.Fatalf("rows = %v, want %v", set.Rows, wantRows)
		}
	}
	if set.Points[0] != (models.Point{Lat: 51.5, Lon: -0.1}) {
		t.Fatalf("point 0 = %v", set.Points[0])
	}

	want := []struct {
		row    int
		reason models.Reason
	}{
		{1, models.ReasonNotNumeric},
		{2, models.ReasonOutOfRange},
		{3, models.ReasonOutOfRange},
		{4, models.ReasonMissingComponent},
		{5, models.ReasonMissingComponent},
		{6, models.ReasonNotNumeric},
		{7, models.ReasonNotNumeric},
	}
	if len(diags) != len(want) {
		t.Fatalf("got %d diagnostics, want %d: %+v", len(diags), len(want), diags)
	}
	for i, w := range want {
		d := diags[i]
		if d.RowIndex != w.row || d.Reason != w.reason || d.SourceLabel != "A" || d.RawValue != "raw" {
			t.Fatalf("diagnostic %d = %+v, want row %d %s", i, d, w.row, w.reason)
		}
	}
}

func TestValidate_LonLatOrder(t *testing.T) {
	set, diags := Validate("B", pairs([]string{"120", "45"}), Options{Order: OrderLonLat})
	if len(diags) != 0 || set.Points[0] != (models.Point{Lat: 45, Lon: 120}) {
		t.Fatalf("unexpected %+v %+v", set, diags)
	}

	// the same row read lat-first is out of range
	_, diags = Validate("B", pairs([]string{"120", "45"}), Options{})
	if len(diags) != 1 || diags[0].Reason != models.ReasonOutOfRange {
		t.Fatalf("unexpected %+v", diags)
	}
}

func TestValidate_DecimalComma(t *testing.T) {
	in := pairs([]string{"41,5", "28,9"})
	if _, diags := Validate("A", in, Options{}); len(diags) != 1 || diags[0].Reason != models.ReasonNotNumeric {
		t.Fatalf("comma accepted without DecimalComma: %+v", diags)
	}
	set, diags := Validate("A", in, Options{DecimalComma: true})
	if len(diags) != 0 || set.Points[0] != (models.Point{Lat: 41.5, Lon: 28.9}) {
		t.Fatalf("unexpected %+v %+v", set, diags)
	}
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]Order{"": OrderLatLon, "lat,lon": OrderLatLon, "LON, LAT": OrderLonLat} {
		got, err := ParseOrder(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q, %v", in, got, err)
		}
	}
	if _, err := ParseOrder("x,y"); err == nil {
		t.Fatalf("expected error")
	}
}
