package table

import (
	"encoding/json"
	"testing"

	"github.com/kaelis/skyshard/internal/errors"
)

func TestAppend_UpsertIdempotent(t *testing.T) {
	tbl := New(Column{Name: "Flux", Type: Float64})

	for i := 0; i < 2; i++ {
		if err := tbl.Append("src-1", 42, map[string]Value{"Flux": Float(1.5)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if tbl.Len() != 1 {
		t.Fatalf("expected 1 row after duplicate append, got %d", tbl.Len())
	}
	v, ok := tbl.Value("src-1", "Flux")
	if !ok {
		t.Fatal("row not found")
	}
	if f, _ := v.Float64(); f != 1.5 {
		t.Errorf("expected Flux=1.5, got %v", f)
	}
}

func TestAppend_Validation(t *testing.T) {
	tbl := New(Column{Name: "Flux", Type: Float64})

	tests := []struct {
		name    string
		rowName string
		vals    map[string]Value
		wantErr error
	}{
		{name: "empty name", rowName: "", wantErr: errors.ErrInvalidName},
		{name: "unknown column", rowName: "a", vals: map[string]Value{"Nope": Float(1)}, wantErr: errors.ErrColumnMissing},
		{name: "type mismatch", rowName: "a", vals: map[string]Value{"Flux": Str("x")}, wantErr: errors.ErrColumnType},
		{name: "null any column", rowName: "a", vals: map[string]Value{"Flux": Null()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tbl.Append(tt.rowName, 1, tt.vals)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMerge_SchemaWidening(t *testing.T) {
	// Existing partition has row B without the Flux column.
	existing := New()
	if err := existing.Append("B", 20, nil); err != nil {
		t.Fatal(err)
	}

	incoming := New(Column{Name: "Flux", Type: Float64})
	if err := incoming.Append("B", 20, map[string]Value{"Flux": Float(5.0)}); err != nil {
		t.Fatal(err)
	}

	existing.Merge(incoming)

	if existing.Len() != 1 {
		t.Fatalf("expected one row B, got %d", existing.Len())
	}
	if !existing.HasColumn("Flux") {
		t.Fatal("schema was not widened with Flux")
	}
	v, _ := existing.Value("B", "Flux")
	if f, ok := v.Float64(); !ok || f != 5.0 {
		t.Errorf("expected B.Flux=5.0, got %v (ok=%v)", f, ok)
	}
}

func TestMerge_NullOnlyWhereNotSupplied(t *testing.T) {
	left := New(Column{Name: "Flux", Type: Float64})
	if err := left.Append("A", 1, map[string]Value{"Flux": Float(1)}); err != nil {
		t.Fatal(err)
	}

	right := New(Column{Name: "Alpha", Type: Float64})
	if err := right.Append("B", 2, map[string]Value{"Alpha": Float(2)}); err != nil {
		t.Fatal(err)
	}

	left.Merge(right)

	if left.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", left.Len())
	}
	checks := []struct {
		row, col string
		null     bool
		want     float64
	}{
		{"A", "Flux", false, 1},
		{"A", "Alpha", true, 0},
		{"B", "Flux", true, 0},
		{"B", "Alpha", false, 2},
	}
	for _, c := range checks {
		v, ok := left.Value(c.row, c.col)
		if !ok {
			t.Fatalf("%s.%s missing", c.row, c.col)
		}
		if v.IsNull() != c.null {
			t.Errorf("%s.%s null=%v, want %v", c.row, c.col, v.IsNull(), c.null)
		}
		if !c.null {
			if f, _ := v.Float64(); f != c.want {
				t.Errorf("%s.%s=%v, want %v", c.row, c.col, f, c.want)
			}
		}
	}
}

func TestMerge_PreservesUnmatchedRows(t *testing.T) {
	left := New(Column{Name: "Flux", Type: Float64})
	for _, name := range []string{"A", "B"} {
		if err := left.Append(name, 1, map[string]Value{"Flux": Float(1)}); err != nil {
			t.Fatal(err)
		}
	}

	right := New(Column{Name: "Flux", Type: Float64})
	if err := right.Append("B", 9, map[string]Value{"Flux": Float(7)}); err != nil {
		t.Fatal(err)
	}
	if err := right.Append("C", 3, map[string]Value{"Flux": Float(3)}); err != nil {
		t.Fatal(err)
	}

	left.Merge(right)

	if left.Len() != 3 {
		t.Fatalf("expected rows A,B,C, got %v", left.Names())
	}
	if v, _ := left.Value("B", "Flux"); !v.Equal(Float(7)) {
		t.Errorf("B.Flux should take incoming value 7, got %+v", v)
	}
	if got := left.FinePixelAt(1); got != 9 {
		t.Errorf("B.fine_pixel should be overwritten to 9, got %d", got)
	}
}

func TestProject(t *testing.T) {
	tbl := New(
		Column{Name: "Flux", Type: Float64},
		Column{Name: "Alpha", Type: Float64},
	)
	if err := tbl.Append("A", 10, map[string]Value{"Flux": Float(1), "Alpha": Float(2)}); err != nil {
		t.Fatal(err)
	}

	// Unknown projected names are silently dropped.
	p := tbl.Project([]string{"Flux", "DoesNotExist"})
	if !p.HasColumn("Flux") || p.HasColumn("Alpha") || p.HasColumn("DoesNotExist") {
		t.Errorf("unexpected projected schema: %v", p.Attrs())
	}
	if p.Len() != 1 || p.FinePixelAt(0) != 10 {
		t.Error("projection must keep rows and fine_pixel")
	}

	// Nil projection returns the full schema.
	full := tbl.Project(nil)
	if len(full.Attrs()) != 2 {
		t.Errorf("nil projection dropped columns: %v", full.Attrs())
	}

	// Empty projection keeps only the mandatory columns.
	empty := tbl.Project([]string{})
	if len(empty.Attrs()) != 0 || empty.Len() != 1 {
		t.Errorf("empty projection: attrs=%v rows=%d", empty.Attrs(), empty.Len())
	}
}

func TestFilterGreater(t *testing.T) {
	tbl := New(Column{Name: "Flux", Type: Float64})
	rows := map[string]Value{
		"dim":    Float(0.5),
		"edge":   Float(2.0),
		"bright": Float(9.0),
		"nullv":  Null(),
	}
	fine := int64(0)
	for name, v := range rows {
		if err := tbl.Append(name, fine, map[string]Value{"Flux": v}); err != nil {
			t.Fatal(err)
		}
		fine++
	}

	out, applied := tbl.FilterGreater("Flux", 2.0)
	if !applied {
		t.Fatal("filter should apply, column exists")
	}
	if out.Len() != 1 {
		t.Fatalf("expected only the strictly greater row, got %v", out.Names())
	}
	if _, ok := out.Lookup("bright"); !ok {
		t.Errorf("bright should survive, got %v", out.Names())
	}

	same, applied := tbl.FilterGreater("Missing", 1.0)
	if applied {
		t.Error("filter on a missing column must report not applied")
	}
	if same.Len() != tbl.Len() {
		t.Error("unapplied filter must leave the table unchanged")
	}
}

func TestAppendRowJSON(t *testing.T) {
	tbl := New(
		Column{Name: "Flux", Type: Float64},
		Column{Name: "Kind", Type: String},
	)
	if err := tbl.Append("3C48", 123, map[string]Value{"Flux": Float(15.7), "Kind": Str("calibrator")}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Append("blank", 7, nil); err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(tbl.AppendRowJSON(nil, 0, "vlssr"), &got); err != nil {
		t.Fatalf("row 0 is not valid JSON: %v", err)
	}
	if got["catalog"] != "vlssr" || got["name"] != "3C48" || got["fine_pixel"] != float64(123) {
		t.Errorf("unexpected row object: %v", got)
	}
	if got["Flux"] != 15.7 || got["Kind"] != "calibrator" {
		t.Errorf("unexpected attributes: %v", got)
	}

	got = nil
	if err := json.Unmarshal(tbl.AppendRowJSON(nil, 1, ""), &got); err != nil {
		t.Fatalf("row 1 is not valid JSON: %v", err)
	}
	if _, has := got["catalog"]; has {
		t.Error("catalog field must be omitted when empty")
	}
	if got["Flux"] != nil {
		t.Errorf("null cell must encode as JSON null, got %v", got["Flux"])
	}
}
