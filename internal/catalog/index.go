package catalog

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kaelis/skyshard/internal/errors"
	"github.com/kaelis/skyshard/internal/logging"
	"github.com/kaelis/skyshard/internal/shard"
)

// saveWorkers bounds the parallelism of SaveAll.
const saveWorkers = 4

// PartitionIndex owns every partition of one catalog namespace along
// with that namespace's catalogue descriptor.
type PartitionIndex struct {
	namespace string
	dir       string
	opts      shard.Options
	log       *slog.Logger

	mu         sync.Mutex
	partitions []*Partition // creation order
	meta       *Metadata
	metaLoaded bool
}

func newPartitionIndex(dir, namespace string, opts shard.Options) *PartitionIndex {
	return &PartitionIndex{
		namespace: namespace,
		dir:       dir,
		opts:      opts,
		log:       logging.Catalog("index", namespace),
	}
}

// Name returns the catalog namespace.
func (x *PartitionIndex) Name() string { return x.namespace }

// Dir returns the namespace directory under the dataset root.
func (x *PartitionIndex) Dir() string { return x.dir }

// GetOrCreate returns the partition for the coarse pixel, creating and
// caching it on first reference. The partition cache is small (a few
// hundred coarse pixels at most), so lookup is a linear scan.
func (x *PartitionIndex) GetOrCreate(pixel uint32) *Partition {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, p := range x.partitions {
		if p.pixel == pixel {
			return p
		}
	}
	p := newPartition(x.dir, x.namespace, pixel, x.opts)
	x.partitions = append(x.partitions, p)
	return p
}

// Get returns the cached partition for the coarse pixel, if any.
func (x *PartitionIndex) Get(pixel uint32) (*Partition, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, p := range x.partitions {
		if p.pixel == pixel {
			return p, true
		}
	}
	return nil, false
}

// Partitions returns a fresh snapshot of the cached partitions in
// creation order. Every call yields an independent slice, so repeated
// traversals see all partitions.
func (x *PartitionIndex) Partitions() []*Partition {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]*Partition, len(x.partitions))
	copy(out, x.partitions)
	return out
}

// Metadata returns the catalogue descriptor, loading it at most once.
// An absent descriptor file yields an empty attribute list; a
// malformed one propagates.
func (x *PartitionIndex) Metadata() (*Metadata, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.metadataLocked()
}

func (x *PartitionIndex) metadataLocked() (*Metadata, error) {
	if x.metaLoaded {
		return x.meta, nil
	}
	m, err := loadMetadata(x.dir)
	if err != nil {
		return nil, err
	}
	x.meta = m
	x.metaLoaded = true
	return m, nil
}

// HasAttribute reports whether the catalog recognizes the attribute.
func (x *PartitionIndex) HasAttribute(attr string) (bool, error) {
	m, err := x.Metadata()
	if err != nil {
		return false, err
	}
	return m.Has(attr), nil
}

// DefaultProjection returns the configured default attribute subset,
// or the full attribute list when no subset is configured.
func (x *PartitionIndex) DefaultProjection() ([]string, error) {
	m, err := x.Metadata()
	if err != nil {
		return nil, err
	}
	return m.DefaultProjection(), nil
}

// SaveAll persists every cached partition.
func (x *PartitionIndex) SaveAll() error {
	var g errgroup.Group
	g.SetLimit(saveWorkers)
	for _, p := range x.Partitions() {
		g.Go(p.Save)
	}
	return g.Wait()
}

// scan populates the partition cache from the namespace directory.
// Shard files are named by their coarse pixel id; everything else
// (the catalogue descriptor, temp files) is ignored.
func (x *PartitionIndex) scan() error {
	entries, err := os.ReadDir(x.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(errors.ErrShardRead, "list %s: %v", x.dir, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		pixel, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		x.partitions = append(x.partitions, newPartition(x.dir, x.namespace, uint32(pixel), x.opts))
	}
	x.log.Debug("namespace scanned", "partitions", len(x.partitions))
	return nil
}
