// Package stats computes per-catalog attribute distribution summaries.
//
// Summaries fold every partition of a catalog through DDSketch, so the
// quantiles are approximate (1% relative accuracy) but the fold never
// holds more than one partition's rows.
package stats

import (
	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/kaelis/skyshard/internal/catalog"
	"github.com/kaelis/skyshard/internal/table"
)

// defaultAccuracy is the DDSketch relative accuracy.
const defaultAccuracy = 0.01

// AttributeStats summarizes one numeric attribute's distribution.
type AttributeStats struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Summary describes one catalog's content.
type Summary struct {
	Catalog    string           `json:"catalog"`
	Partitions int              `json:"partitions"`
	Sources    int              `json:"sources"`
	Attributes []AttributeStats `json:"attributes"`
}

type accumulator struct {
	sketch *ddsketch.DDSketch
	count  int64
	sum    float64
	min    float64
	max    float64
}

func newAccumulator() (*accumulator, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(defaultAccuracy)
	if err != nil {
		return nil, err
	}
	return &accumulator{sketch: sketch}, nil
}

func (a *accumulator) add(v float64) {
	if a.count == 0 || v < a.min {
		a.min = v
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.count++
	a.sum += v
	a.sketch.Add(v)
}

func (a *accumulator) stats(name string) AttributeStats {
	s := AttributeStats{
		Name:  name,
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
	}
	if a.count > 0 {
		s.Avg = a.sum / float64(a.count)
		s.P50, _ = a.sketch.GetValueAtQuantile(0.50)
		s.P90, _ = a.sketch.GetValueAtQuantile(0.90)
		s.P95, _ = a.sketch.GetValueAtQuantile(0.95)
		s.P99, _ = a.sketch.GetValueAtQuantile(0.99)
	}
	return s
}

// Summarize folds every partition of the catalog into a Summary,
// covering each numeric attribute seen in the data.
func Summarize(idx *catalog.PartitionIndex) (*Summary, error) {
	summary := &Summary{Catalog: idx.Name()}
	accs := make(map[string]*accumulator)
	var order []string

	for _, p := range idx.Partitions() {
		t, err := p.All(nil)
		if err != nil {
			return nil, err
		}
		summary.Partitions++
		summary.Sources += t.Len()

		for ci, col := range t.Attrs() {
			if col.Type == table.String {
				continue
			}
			acc := accs[col.Name]
			if acc == nil {
				acc, err = newAccumulator()
				if err != nil {
					return nil, err
				}
				accs[col.Name] = acc
				order = append(order, col.Name)
			}
			for i := 0; i < t.Len(); i++ {
				if v, ok := t.ValueAt(i, ci).Float64(); ok {
					acc.add(v)
				}
			}
		}
	}

	for _, name := range order {
		summary.Attributes = append(summary.Attributes, accs[name].stats(name))
	}
	return summary, nil
}
