// Package catalog implements the pixel-sharded spatial datastore: one
// Partition per (catalog, coarse pixel) pair, one PartitionIndex per
// catalog namespace, and the Datastore root aggregate that discovers
// namespaces from the dataset directory tree.
package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/kaelis/skyshard/internal/logging"
	"github.com/kaelis/skyshard/internal/shard"
	"github.com/kaelis/skyshard/internal/table"
)

// Partition holds the row set for one (namespace, coarse pixel) pair,
// backed by the shard file {root}/{namespace}/{pixel}.
//
// The dataset is an explicit lazy cache slot: nothing is read from
// disk until the first access, and Clear drops the slot so the next
// access re-reads. Mutation and persistence are decoupled - Add only
// touches memory, Save writes the whole shard back.
type Partition struct {
	namespace string
	pixel     uint32
	path      string
	opts      shard.Options
	log       *slog.Logger

	mu    sync.Mutex
	data  *table.Table // nil until loaded
	dirty bool
}

func newPartition(dir, namespace string, pixel uint32, opts shard.Options) *Partition {
	return &Partition{
		namespace: namespace,
		pixel:     pixel,
		path:      filepath.Join(dir, strconv.FormatUint(uint64(pixel), 10)),
		opts:      opts,
		log:       logging.Catalog("partition", namespace).With("pixel", pixel),
	}
}

// Pixel returns the coarse pixel id owning this partition.
func (p *Partition) Pixel() uint32 { return p.pixel }

// Namespace returns the owning catalog namespace.
func (p *Partition) Namespace() string { return p.namespace }

// Path returns the backing shard file path.
func (p *Partition) Path() string { return p.path }

// ensureLoaded populates the dataset slot. A missing backing file
// yields an empty table with the minimal schema; a malformed one is a
// fatal condition for this partition and propagates.
func (p *Partition) ensureLoaded() error {
	if p.data != nil {
		return nil
	}

	if _, err := os.Stat(p.path); os.IsNotExist(err) {
		p.data = table.New()
		return nil
	}

	t, err := shard.Read(p.path)
	if err != nil {
		return err
	}
	p.log.Debug("partition loaded", "rows", t.Len())
	p.data = t
	return nil
}

// Add upserts rows into the partition. An empty partition adopts the
// incoming schema directly; otherwise the dataset is widened to the
// union schema and merged keyed on name.
func (p *Partition) Add(rows *table.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(); err != nil {
		return err
	}

	if p.data.IsEmpty() && len(p.data.Attrs()) == 0 {
		p.data = rows.Clone()
	} else {
		p.data.Merge(rows)
	}
	p.dirty = true
	return nil
}

// Save writes the in-memory dataset back to the shard file, replacing
// it entirely. A partition that was never loaded or mutated is left
// untouched on disk.
func (p *Partition) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data == nil || !p.dirty {
		return nil
	}
	if err := shard.Write(p.path, p.data, p.opts); err != nil {
		return err
	}
	p.log.Debug("partition saved", "rows", p.data.Len())
	p.dirty = false
	return nil
}

// All returns the dataset, or a projected view of it: name and
// fine_pixel plus the attribute columns present in both the projection
// and the schema. Projected names absent from the schema are silently
// dropped. The returned table is the caller's to mutate.
func (p *Partition) All(projection []string) (*table.Table, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}
	return p.data.Project(projection), nil
}

// Len returns the row count, loading the dataset if needed.
func (p *Partition) Len() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(); err != nil {
		return 0, err
	}
	return p.data.Len(), nil
}

// Clear drops the in-memory dataset, forcing the next access to
// re-read the shard. Unsaved mutations are discarded.
func (p *Partition) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = nil
	p.dirty = false
}
