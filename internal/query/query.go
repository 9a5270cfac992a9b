// Package query implements the regional streaming search over the
// pixel-sharded datastore.
//
// A Query is built once against the catalogs currently known to the
// Datastore, validated eagerly, and consumed exactly once. Execution
// walks (catalog, coarse pixel) partitions one at a time, filters each
// batch by fine-pixel membership and attribute thresholds, and hands
// every surviving batch to the consumer before touching the next
// partition, so memory stays bounded by one partition's rows.
package query

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/kaelis/skyshard/internal/catalog"
	"github.com/kaelis/skyshard/internal/errors"
	"github.com/kaelis/skyshard/internal/logging"
	"github.com/kaelis/skyshard/internal/pixel"
	"github.com/kaelis/skyshard/internal/query/streamjson"
	"github.com/kaelis/skyshard/internal/table"
)

// Spec describes one regional search.
type Spec struct {
	// Catalogs selects namespaces: "*" (or empty) for all, otherwise a
	// comma-separated allow-list.
	Catalogs string

	// Coarse selects partitions. An empty set makes the query
	// degenerate: it streams an empty result, it does not fail.
	Coarse *pixel.CoarseSet

	// Fine selects rows within the chosen partitions. An empty set
	// means coarse-only selection: every row passes the spatial stage.
	Fine *pixel.FineSet

	// Filters maps attribute names to lower thresholds; a row survives
	// when its value is strictly greater. Keys unknown to every
	// selected catalog are dropped at validation with a logged notice.
	Filters map[string]any
}

// Batch is one non-empty filtered partition's worth of results.
type Batch struct {
	Catalog string
	Rows    *table.Table
}

// Query is a validated, single-use streaming search.
type Query struct {
	log      *slog.Logger
	indexes  []*catalog.PartitionIndex
	coarse   *pixel.CoarseSet
	fine     *pixel.FineSet
	filters  map[string]any
	consumed atomic.Bool
}

// New resolves and validates a search spec against the datastore.
// A selector matching no catalog is an error; filter keys recognized
// by at least one selected catalog are retained and applied
// per-catalog at execution time by column presence.
func New(store *catalog.Datastore, spec Spec) (*Query, error) {
	selector := spec.Catalogs
	if selector == "" {
		selector = "*"
	}
	indexes, err := store.Resolve(selector)
	if err != nil {
		return nil, err
	}

	log := logging.Component("query")

	filters := make(map[string]any, len(spec.Filters))
	for attr, threshold := range spec.Filters {
		known := false
		for _, idx := range indexes {
			has, err := idx.HasAttribute(attr)
			if err != nil {
				return nil, err
			}
			if has {
				known = true
				break
			}
		}
		if !known {
			log.Warn("dropping filter on attribute unknown to all selected catalogs", "attribute", attr)
			continue
		}
		filters[attr] = threshold
	}

	return &Query{
		log:     log,
		indexes: indexes,
		coarse:  spec.Coarse,
		fine:    spec.Fine,
		filters: filters,
	}, nil
}

// Catalogs returns the resolved catalog names.
func (q *Query) Catalogs() []string {
	out := make([]string, len(q.indexes))
	for i, idx := range q.indexes {
		out[i] = idx.Name()
	}
	return out
}

// Batches executes the search lazily: partitions are read and
// filtered one at a time as the consumer pulls. Stopping early stops
// the scan; ctx cancellation does too. The sequence can be consumed
// once.
func (q *Query) Batches(ctx context.Context) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		if !q.consumed.CompareAndSwap(false, true) {
			yield(Batch{}, errors.ErrStreamConsumed)
			return
		}
		if q.coarse.IsEmpty() {
			return
		}

		attrs := q.sortedFilterAttrs()
		for _, idx := range q.indexes {
			projection, err := idx.DefaultProjection()
			if err != nil {
				yield(Batch{}, err)
				return
			}

			for _, px := range q.coarse.Values() {
				if ctx.Err() != nil {
					yield(Batch{}, ctx.Err())
					return
				}

				rows, err := idx.GetOrCreate(px).All(projection)
				if err != nil {
					yield(Batch{}, err)
					return
				}

				rows = q.filter(idx.Name(), rows, attrs)
				if rows.IsEmpty() {
					continue
				}
				if !yield(Batch{Catalog: idx.Name(), Rows: rows}, nil) {
					return
				}
			}
		}
	}
}

func (q *Query) sortedFilterAttrs() []string {
	attrs := make([]string, 0, len(q.filters))
	for attr := range q.filters {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)
	return attrs
}

func (q *Query) filter(catalogName string, rows *table.Table, attrs []string) *table.Table {
	if !q.fine.IsEmpty() {
		rows = rows.FilterRows(func(_ string, fine int64) bool {
			return fine >= 0 && q.fine.Contains(uint64(fine))
		})
	}

	for _, attr := range attrs {
		threshold, ok := asFloat(q.filters[attr])
		if !ok {
			q.log.Warn("skipping filter with non-numeric threshold",
				"catalog", catalogName, "attribute", attr, "threshold", q.filters[attr])
			continue
		}
		// Applied only when the catalog's batch carries the column.
		if filtered, applied := rows.FilterGreater(attr, threshold); applied {
			rows = filtered
		}
	}
	return rows
}

// Stream executes the search and writes the results to w as one JSON
// array, one element per source, flushing batch by batch. The array is
// closed only after the scan completes; a mid-stream error aborts the
// array and propagates.
func (q *Query) Stream(ctx context.Context, w io.Writer) error {
	enc := streamjson.NewEncoder(w)
	var buf []byte

	for batch, err := range q.Batches(ctx) {
		if err != nil {
			return err
		}
		for i := 0; i < batch.Rows.Len(); i++ {
			buf = batch.Rows.AppendRowJSON(buf[:0], i, batch.Catalog)
			if err := enc.Element(buf); err != nil {
				return err
			}
		}
		flush(w)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	flush(w)
	return nil
}

// asFloat coerces a filter threshold to float64. Strings and other
// non-numeric values are rejected; the filter is then skipped for that
// batch rather than failing the query.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

type flusher interface{ Flush() }

func flush(w io.Writer) {
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
}
