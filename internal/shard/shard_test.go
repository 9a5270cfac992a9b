package shard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kaelis/skyshard/internal/errors"
	"github.com/kaelis/skyshard/internal/table"
)

func testTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New(
		table.Column{Name: "Flux", Type: table.Float64},
		table.Column{Name: "Epoch", Type: table.Int64},
		table.Column{Name: "Kind", Type: table.String},
	)
	rows := []struct {
		name string
		fine int64
		vals map[string]table.Value
	}{
		{"src-a", 10, map[string]table.Value{"Flux": table.Float(1.25), "Epoch": table.Int(2020), "Kind": table.Str("point")}},
		{"src-b", 20, map[string]table.Value{"Flux": table.Float(-3.5)}},
		{"src-c", 30, nil},
	}
	for _, r := range rows {
		if err := tbl.Append(r.name, r.fine, r.vals); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vlssr", "42")
	want := testTable(t)

	if err := Write(path, want, DefaultOptions()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must not survive a successful write")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got.Len() != want.Len() {
		t.Fatalf("row count %d, want %d", got.Len(), want.Len())
	}
	for _, name := range want.Names() {
		wi, _ := want.Lookup(name)
		gi, ok := got.Lookup(name)
		if !ok {
			t.Fatalf("row %s missing after round trip", name)
		}
		if got.FinePixelAt(gi) != want.FinePixelAt(wi) {
			t.Errorf("%s fine_pixel %d, want %d", name, got.FinePixelAt(gi), want.FinePixelAt(wi))
		}
		for _, c := range want.Attrs() {
			wv, _ := want.Value(name, c.Name)
			gv, ok := got.Value(name, c.Name)
			if !ok {
				t.Fatalf("%s column %s missing", name, c.Name)
			}
			if !gv.Equal(wv) {
				t.Errorf("%s.%s = %+v, want %+v", name, c.Name, gv, wv)
			}
		}
	}
}

func TestWriteRead_EmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "13")

	if err := Write(path, table.New(), DefaultOptions()); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("expected empty table, got %d rows", got.Len())
	}
}

func TestWrite_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "7")

	if err := Write(path, testTable(t), DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	small := table.New()
	if err := small.Append("only", 1, nil); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, small, DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 {
		t.Errorf("overwrite must replace, not append: got %d rows", got.Len())
	}
}

func TestRead_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "99")
	if err := os.WriteFile(path, []byte("name fine_pixel\nA 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Read(path)
	if err == nil {
		t.Fatal("expected error for non-parquet shard")
	}
	if !errors.IsIOFailure(err) {
		t.Errorf("malformed shard must surface as IO failure, got %v", err)
	}
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "does-not-exist"))
	if !errors.Is(err, errors.ErrShardRead) {
		t.Errorf("expected ErrShardRead, got %v", err)
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"zstd", CompressionZstd},
		{"snappy", CompressionSnappy},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"bogus", CompressionZstd},
	}
	for _, tt := range tests {
		if got := ParseCompressionType(tt.in); got != tt.want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
