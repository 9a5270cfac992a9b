// Package table implements the typed tabular model backing catalog
// partitions.
//
// Every table carries the two mandatory columns, name (the unique
// source identifier) and fine_pixel (the source's fine-resolution
// HEALPix id), plus an open-ended set of typed attribute columns that
// vary by catalog. Cells are nullable; merging two tables widens the
// schema to their union and upserts rows keyed on name.
package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/kaelis/skyshard/internal/errors"
)

// Mandatory column names present in every partition table.
const (
	ColName      = "name"
	ColFinePixel = "fine_pixel"
)

// ColumnType tags the value type of an attribute column.
type ColumnType int

const (
	// Float64 is a double-precision attribute (fluxes, errors, spectral
	// indices - the common case).
	Float64 ColumnType = iota
	// Int64 is an integer attribute.
	Int64
	// String is a text attribute.
	String
)

// String returns the YAML/wire name of the column type.
func (t ColumnType) String() string {
	switch t {
	case Float64:
		return "float"
	case Int64:
		return "int"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// ParseColumnType parses a column type name. Unrecognized names map to
// Float64, the dominant attribute type in source catalogs.
func ParseColumnType(s string) ColumnType {
	switch s {
	case "int", "int64", "integer":
		return Int64
	case "string", "str", "text":
		return String
	default:
		return Float64
	}
}

// Column describes one attribute column.
type Column struct {
	Name string
	Type ColumnType
}

// Value is one nullable cell.
type Value struct {
	typ   ColumnType
	f     float64
	i     int64
	s     string
	valid bool
}

// Null returns the null cell.
func Null() Value { return Value{} }

// Float returns a float cell.
func Float(v float64) Value { return Value{typ: Float64, f: v, valid: true} }

// Int returns an integer cell.
func Int(v int64) Value { return Value{typ: Int64, i: v, valid: true} }

// Str returns a string cell.
func Str(v string) Value { return Value{typ: String, s: v, valid: true} }

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool { return !v.valid }

// Type returns the cell's type tag. Meaningless for null cells.
func (v Value) Type() ColumnType { return v.typ }

// Float64 returns the cell as a float. Integer cells are widened; null
// and string cells report false.
func (v Value) Float64() (float64, bool) {
	if !v.valid {
		return 0, false
	}
	switch v.typ {
	case Float64:
		return v.f, true
	case Int64:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Int64 returns the cell as an integer.
func (v Value) Int64() (int64, bool) {
	if !v.valid || v.typ != Int64 {
		return 0, false
	}
	return v.i, true
}

// Str returns the cell as a string.
func (v Value) Str() (string, bool) {
	if !v.valid || v.typ != String {
		return "", false
	}
	return v.s, true
}

// Equal reports cell equality, with null equal only to null.
func (v Value) Equal(o Value) bool {
	if v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	return v.typ == o.typ && v.f == o.f && v.i == o.i && v.s == o.s
}

func (v Value) appendJSON(dst []byte) []byte {
	if !v.valid {
		return append(dst, "null"...)
	}
	switch v.typ {
	case Float64:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return append(dst, "null"...)
		}
		return strconv.AppendFloat(dst, v.f, 'g', -1, 64)
	case Int64:
		return strconv.AppendInt(dst, v.i, 10)
	default:
		b, _ := json.Marshal(v.s)
		return append(dst, b...)
	}
}

type row struct {
	name  string
	fine  int64
	attrs []Value // aligned to Table.attrs
}

// Table is an ordered set of rows with a typed, widenable schema.
// name is the unique row key; appending a row with an existing name
// upserts it. Tables are not safe for concurrent mutation.
type Table struct {
	attrs  []Column
	rows   []row
	byName map[string]int
}

// New creates an empty table with the given attribute columns beyond
// the two mandatory ones.
func New(attrs ...Column) *Table {
	t := &Table{byName: make(map[string]int)}
	for _, c := range attrs {
		t.widen(c)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool { return t == nil || len(t.rows) == 0 }

// Attrs returns a copy of the attribute schema, in column order.
func (t *Table) Attrs() []Column {
	out := make([]Column, len(t.attrs))
	copy(out, t.attrs)
	return out
}

// HasColumn reports whether the attribute column exists.
func (t *Table) HasColumn(name string) bool {
	return t.colIndex(name) >= 0
}

func (t *Table) colIndex(name string) int {
	for i, c := range t.attrs {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// widen adds an attribute column if absent, null-filling existing rows.
func (t *Table) widen(c Column) int {
	if i := t.colIndex(c.Name); i >= 0 {
		return i
	}
	t.attrs = append(t.attrs, c)
	for i := range t.rows {
		t.rows[i].attrs = append(t.rows[i].attrs, Null())
	}
	return len(t.attrs) - 1
}

// Append upserts a row keyed on name. Values for columns absent from
// vals are null; vals keys must name existing columns of matching type.
func (t *Table) Append(name string, fine int64, vals map[string]Value) error {
	if name == "" {
		return errors.Wrap(errors.ErrInvalidName, "empty source name")
	}

	attrs := make([]Value, len(t.attrs))
	idx, exists := t.byName[name]
	if exists {
		copy(attrs, t.rows[idx].attrs)
	}

	for k, v := range vals {
		ci := t.colIndex(k)
		if ci < 0 {
			return errors.Wrapf(errors.ErrColumnMissing, "column %q", k)
		}
		if !v.IsNull() && v.typ != t.attrs[ci].Type {
			return errors.Wrapf(errors.ErrColumnType, "column %q wants %s, got %s", k, t.attrs[ci].Type, v.typ)
		}
		attrs[ci] = v
	}

	if exists {
		t.rows[idx] = row{name: name, fine: fine, attrs: attrs}
		return nil
	}
	t.byName[name] = len(t.rows)
	t.rows = append(t.rows, row{name: name, fine: fine, attrs: attrs})
	return nil
}

// Merge folds other into t: a full-outer upsert keyed on name. Columns
// of other missing from t are added to t null-filled first (schema
// widening); matched rows take other's cells for every column other
// carries, unmatched rows on either side are preserved.
func (t *Table) Merge(other *Table) {
	if other.IsEmpty() && len(other.attrs) == 0 {
		return
	}

	colMap := make([]int, len(other.attrs))
	for i, c := range other.attrs {
		colMap[i] = t.widen(c)
	}

	for _, r := range other.rows {
		if idx, ok := t.byName[r.name]; ok {
			dst := t.rows[idx].attrs
			for i, v := range r.attrs {
				dst[colMap[i]] = v
			}
			t.rows[idx].fine = r.fine
			continue
		}

		attrs := make([]Value, len(t.attrs))
		for i, v := range r.attrs {
			attrs[colMap[i]] = v
		}
		t.byName[r.name] = len(t.rows)
		t.rows = append(t.rows, row{name: r.name, fine: r.fine, attrs: attrs})
	}
}

// Project returns a new table keeping name, fine_pixel and the
// attribute columns present in both the table and keep. Requested
// names absent from the schema are silently dropped. A nil keep
// returns a copy with the full schema.
func (t *Table) Project(keep []string) *Table {
	if keep == nil {
		return t.Clone()
	}

	var cols []Column
	var idxs []int
	seen := make(map[string]bool, len(keep))
	for _, name := range keep {
		if seen[name] {
			continue
		}
		seen[name] = true
		if ci := t.colIndex(name); ci >= 0 {
			cols = append(cols, t.attrs[ci])
			idxs = append(idxs, ci)
		}
	}

	out := New(cols...)
	for _, r := range t.rows {
		attrs := make([]Value, len(idxs))
		for i, ci := range idxs {
			attrs[i] = r.attrs[ci]
		}
		out.byName[r.name] = len(out.rows)
		out.rows = append(out.rows, row{name: r.name, fine: r.fine, attrs: attrs})
	}
	return out
}

// FilterRows returns a new table with the rows keep admits.
func (t *Table) FilterRows(keep func(name string, finePixel int64) bool) *Table {
	out := New(t.attrs...)
	for _, r := range t.rows {
		if !keep(r.name, r.fine) {
			continue
		}
		attrs := make([]Value, len(r.attrs))
		copy(attrs, r.attrs)
		out.byName[r.name] = len(out.rows)
		out.rows = append(out.rows, row{name: r.name, fine: r.fine, attrs: attrs})
	}
	return out
}

// FilterGreater returns the rows whose attr value exceeds threshold.
// Null cells never pass. If the column is absent the table is returned
// unchanged and ok is false, so the caller can decide whether an
// unapplied filter matters.
func (t *Table) FilterGreater(attr string, threshold float64) (out *Table, ok bool) {
	ci := t.colIndex(attr)
	if ci < 0 {
		return t, false
	}

	out = New(t.attrs...)
	for _, r := range t.rows {
		v, numeric := r.attrs[ci].Float64()
		if !numeric || v <= threshold {
			continue
		}
		attrs := make([]Value, len(r.attrs))
		copy(attrs, r.attrs)
		out.byName[r.name] = len(out.rows)
		out.rows = append(out.rows, row{name: r.name, fine: r.fine, attrs: attrs})
	}
	return out, true
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New(t.attrs...)
	out.rows = make([]row, len(t.rows))
	for i, r := range t.rows {
		attrs := make([]Value, len(r.attrs))
		copy(attrs, r.attrs)
		out.rows[i] = row{name: r.name, fine: r.fine, attrs: attrs}
		out.byName[r.name] = i
	}
	return out
}

// Names returns the row names in row order.
func (t *Table) Names() []string {
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.name
	}
	return out
}

// NameAt returns the name of row i.
func (t *Table) NameAt(i int) string { return t.rows[i].name }

// FinePixelAt returns the fine pixel of row i.
func (t *Table) FinePixelAt(i int) int64 { return t.rows[i].fine }

// Lookup returns the row index for a source name.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// Value returns the named row's cell in the named column.
func (t *Table) Value(name, col string) (Value, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return Null(), false
	}
	ci := t.colIndex(col)
	if ci < 0 {
		return Null(), false
	}
	return t.rows[idx].attrs[ci], true
}

// ValueAt returns row i's cell in attribute column ci.
func (t *Table) ValueAt(i, ci int) Value { return t.rows[i].attrs[ci] }

// AppendRowJSON appends row i as a JSON object. When catalog is
// non-empty it is emitted as the leading "catalog" field so merged
// multi-catalog streams keep provenance.
func (t *Table) AppendRowJSON(dst []byte, i int, catalog string) []byte {
	r := t.rows[i]
	dst = append(dst, '{')
	if catalog != "" {
		dst = append(dst, `"catalog":`...)
		b, _ := json.Marshal(catalog)
		dst = append(dst, b...)
		dst = append(dst, ',')
	}
	dst = append(dst, `"name":`...)
	b, _ := json.Marshal(r.name)
	dst = append(dst, b...)
	dst = append(dst, `,"fine_pixel":`...)
	dst = strconv.AppendInt(dst, r.fine, 10)
	for ci, c := range t.attrs {
		dst = append(dst, ',')
		b, _ := json.Marshal(c.Name)
		dst = append(dst, b...)
		dst = append(dst, ':')
		dst = r.attrs[ci].appendJSON(dst)
	}
	return append(dst, '}')
}

func (t *Table) String() string {
	return fmt.Sprintf("table(%d rows, %d attrs)", len(t.rows), len(t.attrs))
}
