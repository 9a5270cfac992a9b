// Package shard reads and writes partition shard files.
//
// A shard holds one partition's table as Parquet: the two mandatory
// columns plus whatever attribute columns that catalog carries. The
// schema is built dynamically from the table's column tags, so
// different catalogs (and different generations of the same catalog)
// can persist different attribute sets side by side.
package shard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/kaelis/skyshard/internal/errors"
	"github.com/kaelis/skyshard/internal/table"
)

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// Options configures shard encoding.
type Options struct {
	// Compression algorithm for all columns.
	Compression CompressionType
}

// DefaultOptions returns the default shard options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// buildSchema maps a table schema to a flat Parquet schema. The two
// mandatory columns are required, attribute columns optional so null
// cells round-trip.
func buildSchema(t *table.Table) *parquet.Schema {
	group := parquet.Group{
		table.ColName:      parquet.String(),
		table.ColFinePixel: parquet.Int(64),
	}
	for _, c := range t.Attrs() {
		var node parquet.Node
		switch c.Type {
		case table.Int64:
			node = parquet.Int(64)
		case table.String:
			node = parquet.String()
		default:
			node = parquet.Leaf(parquet.DoubleType)
		}
		group[c.Name] = parquet.Optional(node)
	}
	return parquet.NewSchema("partition", group)
}

// Write persists the table to path, replacing any previous shard. The
// write goes through a temp file and rename so readers never observe a
// half-written shard.
func Write(path string, t *table.Table, opts Options) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(errors.ErrShardWrite, "create directory %s: %v", dir, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(errors.ErrShardWrite, "create %s: %v", tmp, err)
	}

	if err := writeTable(f, t, opts); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(errors.ErrShardWrite, "close %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(errors.ErrShardWrite, "rename to %s: %v", path, err)
	}
	return nil
}

func writeTable(w io.Writer, t *table.Table, opts Options) error {
	schema := buildSchema(t)
	pw := parquet.NewGenericWriter[any](w, schema, parquet.Compression(getCompression(opts.Compression)))

	// Parquet groups order fields by name; map each table column to
	// its leaf column index.
	fields := schema.Fields()
	colOf := make(map[string]int, len(fields))
	for i, f := range fields {
		colOf[f.Name()] = i
	}

	attrs := t.Attrs()
	rows := make([]parquet.Row, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := make(parquet.Row, len(fields))

		ci := colOf[table.ColName]
		row[ci] = parquet.ValueOf(t.NameAt(i)).Level(0, 0, ci)
		ci = colOf[table.ColFinePixel]
		row[ci] = parquet.ValueOf(t.FinePixelAt(i)).Level(0, 0, ci)

		for ai, c := range attrs {
			ci = colOf[c.Name]
			v := t.ValueAt(i, ai)
			if v.IsNull() {
				row[ci] = parquet.ValueOf(nil).Level(0, 0, ci)
				continue
			}
			switch c.Type {
			case table.Int64:
				n, _ := v.Int64()
				row[ci] = parquet.ValueOf(n).Level(0, 1, ci)
			case table.String:
				s, _ := v.Str()
				row[ci] = parquet.ValueOf(s).Level(0, 1, ci)
			default:
				f, _ := v.Float64()
				row[ci] = parquet.ValueOf(f).Level(0, 1, ci)
			}
		}

		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if _, err := pw.WriteRows(rows); err != nil {
			return errors.Wrapf(errors.ErrShardWrite, "write rows: %v", err)
		}
	}
	if err := pw.Close(); err != nil {
		return errors.Wrapf(errors.ErrShardWrite, "close writer: %v", err)
	}
	return nil
}

// Read parses a shard file into a table. A malformed file is reported
// to the caller; it poisons that single partition, not the store.
func Read(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrShardRead, "open %s: %v", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrShardRead, "stat %s: %v", path, err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, errors.Wrapf(errors.ErrShardCorrupt, "%s: %v", path, err)
	}

	return decodeFile(pf, path)
}

func decodeFile(pf *parquet.File, path string) (*table.Table, error) {
	fields := pf.Schema().Fields()

	nameCol, fineCol := -1, -1
	var attrs []table.Column
	attrCol := make(map[int]int) // leaf column -> attr index
	for i, f := range fields {
		switch f.Name() {
		case table.ColName:
			nameCol = i
		case table.ColFinePixel:
			fineCol = i
		default:
			ct, err := columnType(f)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrShardCorrupt, "%s column %q: %v", path, f.Name(), err)
			}
			attrCol[i] = len(attrs)
			attrs = append(attrs, table.Column{Name: f.Name(), Type: ct})
		}
	}
	if nameCol < 0 || fineCol < 0 {
		return nil, errors.Wrapf(errors.ErrShardCorrupt, "%s: missing mandatory columns", path)
	}

	t := table.New(attrs...)
	buf := make([]parquet.Row, 64)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				if derr := decodeRow(t, row, nameCol, fineCol, attrCol, attrs); derr != nil {
					rows.Close()
					return nil, errors.Wrapf(errors.ErrShardCorrupt, "%s: %v", path, derr)
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, errors.Wrapf(errors.ErrShardRead, "%s: %v", path, err)
			}
		}
		rows.Close()
	}
	return t, nil
}

func decodeRow(t *table.Table, row parquet.Row, nameCol, fineCol int, attrCol map[int]int, attrs []table.Column) error {
	var name string
	var fine int64
	vals := make(map[string]table.Value, len(attrs))

	for _, v := range row {
		switch col := v.Column(); col {
		case nameCol:
			name = v.String()
		case fineCol:
			fine = v.Int64()
		default:
			ai, ok := attrCol[col]
			if !ok || v.IsNull() {
				continue
			}
			switch attrs[ai].Type {
			case table.Int64:
				vals[attrs[ai].Name] = table.Int(v.Int64())
			case table.String:
				vals[attrs[ai].Name] = table.Str(v.String())
			default:
				vals[attrs[ai].Name] = table.Float(v.Double())
			}
		}
	}

	return t.Append(name, fine, vals)
}

func columnType(f parquet.Field) (table.ColumnType, error) {
	switch f.Type().Kind() {
	case parquet.Double, parquet.Float:
		return table.Float64, nil
	case parquet.Int64, parquet.Int32:
		return table.Int64, nil
	case parquet.ByteArray:
		return table.String, nil
	default:
		return 0, fmt.Errorf("unsupported kind %v", f.Type().Kind())
	}
}
