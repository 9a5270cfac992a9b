package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kaelis/skyshard/internal/shard"
	"github.com/kaelis/skyshard/internal/table"
)

func TestIndex_GetOrCreate(t *testing.T) {
	x := newPartitionIndex(t.TempDir(), "lotss", shard.DefaultOptions())

	a := x.GetOrCreate(4)
	b := x.GetOrCreate(4)
	if a != b {
		t.Error("GetOrCreate must return the same partition for the same pixel")
	}
	if _, ok := x.Get(5); ok {
		t.Error("Get must not create partitions")
	}
	x.GetOrCreate(5)
	if got := len(x.Partitions()); got != 2 {
		t.Errorf("expected 2 partitions, got %d", got)
	}
}

func TestIndex_PartitionsSnapshot(t *testing.T) {
	x := newPartitionIndex(t.TempDir(), "lotss", shard.DefaultOptions())
	x.GetOrCreate(1)

	snap := x.Partitions()
	x.GetOrCreate(2)
	if len(snap) != 1 {
		t.Error("an earlier snapshot must not see later partitions")
	}
	if len(x.Partitions()) != 2 {
		t.Error("a fresh snapshot must see all partitions")
	}
}

func TestIndex_ScanSkipsNonShards(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"12", "340"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Stray entries a scan must ignore.
	if err := os.WriteFile(filepath.Join(dir, "12.tmp"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "17"), 0755); err != nil {
		t.Fatal(err)
	}

	x := newPartitionIndex(dir, "lotss", shard.DefaultOptions())
	if err := x.scan(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	pixels := map[uint32]bool{}
	for _, p := range x.Partitions() {
		pixels[p.Pixel()] = true
	}
	if len(pixels) != 2 || !pixels[12] || !pixels[340] {
		t.Errorf("expected pixels {12, 340}, got %v", pixels)
	}
}

func TestIndex_SaveAll(t *testing.T) {
	dir := t.TempDir()
	x := newPartitionIndex(dir, "lotss", shard.DefaultOptions())

	for _, pix := range []uint32{1, 2, 3} {
		tbl := table.New(table.Column{Name: "Flux", Type: table.Float64})
		if err := tbl.Append("S1", int64(pix)*100, map[string]table.Value{"Flux": table.Float(1)}); err != nil {
			t.Fatal(err)
		}
		if err := x.GetOrCreate(pix).Add(tbl); err != nil {
			t.Fatal(err)
		}
	}
	if err := x.SaveAll(); err != nil {
		t.Fatalf("save all: %v", err)
	}

	for _, pix := range []string{"1", "2", "3"} {
		if _, err := os.Stat(filepath.Join(dir, pix)); err != nil {
			t.Errorf("shard %s not written: %v", pix, err)
		}
	}
}

func TestIndex_Metadata(t *testing.T) {
	dir := t.TempDir()
	meta := &Metadata{
		Attributes: []AttributeSpec{
			{Name: "Flux", Type: "float64", Unit: "mJy"},
			{Name: "Alpha", Type: "float64"},
		},
		DefaultAttributes: []string{"Flux"},
	}
	if err := meta.Save(dir); err != nil {
		t.Fatal(err)
	}

	x := newPartitionIndex(dir, "lotss", shard.DefaultOptions())
	ok, err := x.HasAttribute("Alpha")
	if err != nil || !ok {
		t.Errorf("HasAttribute(Alpha) = %v, %v", ok, err)
	}
	ok, err = x.HasAttribute("Nope")
	if err != nil || ok {
		t.Errorf("HasAttribute(Nope) = %v, %v", ok, err)
	}

	proj, err := x.DefaultProjection()
	if err != nil {
		t.Fatal(err)
	}
	if len(proj) != 1 || proj[0] != "Flux" {
		t.Errorf("default projection = %v", proj)
	}
}

func TestIndex_MetadataAbsent(t *testing.T) {
	x := newPartitionIndex(t.TempDir(), "lotss", shard.DefaultOptions())

	proj, err := x.DefaultProjection()
	if err != nil {
		t.Fatalf("absent metadata must not fail: %v", err)
	}
	if len(proj) != 0 {
		t.Errorf("absent metadata must yield an empty projection, got %v", proj)
	}
}
