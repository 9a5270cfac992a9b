package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kaelis/skyshard/internal/config"
	"github.com/kaelis/skyshard/internal/errors"
	"github.com/kaelis/skyshard/internal/logging"
	"github.com/kaelis/skyshard/internal/shard"
	"github.com/kaelis/skyshard/internal/table"
)

const (
	// MarkerFile is the freshness marker under the dataset root.
	// Ingestion rewrites it after new data lands; Reload short-circuits
	// while its content is unchanged.
	MarkerFile = ".last_updated"

	// stagingMarker tags directories used by ingestion as scratch
	// space. They are excluded from namespace discovery.
	stagingMarker = "staging"

	// scanWorkers bounds the parallelism of the reload directory scan.
	scanWorkers = 4
)

// Datastore is the root aggregate: one PartitionIndex per discovered
// catalog namespace under the dataset root.
//
// Reload builds a complete replacement namespace map and swaps it in
// under the write lock, so queries that resolved their indexes before
// the swap keep streaming from the previous snapshot to completion.
type Datastore struct {
	root   string
	filter []string // nil admits every catalog
	opts   shard.Options
	log    *slog.Logger

	mu      sync.RWMutex
	indexes map[string]*PartitionIndex
	marker  string
	loaded  bool

	reloads singleflight.Group
}

// New creates a Datastore over the configured dataset root. No disk
// access happens until the first Reload.
func New(cfg *config.Config) *Datastore {
	return &Datastore{
		root:   cfg.DataDir,
		filter: cfg.CatalogFilter(),
		opts:   shard.Options{Compression: shard.ParseCompressionType(cfg.Compression.Algorithm)},
		log:    logging.Component("datastore"),
	}
}

// Root returns the dataset root directory.
func (d *Datastore) Root() string { return d.root }

// Reload rebuilds the namespace map from the directory tree. It is a
// cheap no-op while the freshness marker is unchanged from the
// previous reload. Concurrent calls collapse into one scan.
func (d *Datastore) Reload() error {
	_, err, _ := d.reloads.Do("reload", func() (any, error) {
		return nil, d.reload()
	})
	return err
}

func (d *Datastore) reload() error {
	token, tokenOK := d.readMarker()

	d.mu.RLock()
	unchanged := d.loaded && tokenOK && token == d.marker
	d.mu.RUnlock()
	if unchanged {
		return nil
	}

	indexes, err := d.discover()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.indexes = indexes
	d.marker = token
	d.loaded = true
	d.mu.Unlock()

	d.log.Info("datastore reloaded", "catalogs", len(indexes), "marker", token)
	return nil
}

// readMarker returns the marker token and whether it could be read.
// A missing or unreadable marker disables the short-circuit so the
// scan always runs.
func (d *Datastore) readMarker() (string, bool) {
	data, err := os.ReadFile(filepath.Join(d.root, MarkerFile))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// discover lists the dataset root and builds a fresh namespace map,
// eagerly populating each index's partition cache.
func (d *Datastore) discover() (map[string]*PartitionIndex, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			d.log.Warn("dataset root missing, serving empty store", "root", d.root)
			return map[string]*PartitionIndex{}, nil
		}
		return nil, errors.Wrapf(errors.ErrRootMissing, "list %s: %v", d.root, err)
	}

	indexes := make(map[string]*PartitionIndex)
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || strings.Contains(name, stagingMarker) {
			continue
		}
		if d.filter != nil && !slices.Contains(d.filter, name) {
			continue
		}
		indexes[name] = newPartitionIndex(filepath.Join(d.root, name), name, d.opts)
	}

	var g errgroup.Group
	g.SetLimit(scanWorkers)
	for _, idx := range indexes {
		g.Go(idx.scan)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return indexes, nil
}

// Namespaces returns the discovered catalog names, sorted.
func (d *Datastore) Namespaces() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.indexes))
	for name := range d.indexes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasNamespace reports whether the catalog is known to the store.
func (d *Datastore) HasNamespace(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.indexes[name]
	return ok
}

// Index returns the PartitionIndex for a catalog.
func (d *Datastore) Index(name string) (*PartitionIndex, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.indexes[name]
	return idx, ok
}

// AddNamespace registers a catalog and creates its directory.
func (d *Datastore) AddNamespace(name string) (*PartitionIndex, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\") {
		return nil, errors.Wrapf(errors.ErrInvalidName, "namespace %q", name)
	}
	dir := filepath.Join(d.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(errors.ErrShardWrite, "create namespace dir %s: %v", dir, err)
	}
	return d.getOrCreateIndex(name), nil
}

func (d *Datastore) getOrCreateIndex(name string) *PartitionIndex {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexes == nil {
		d.indexes = make(map[string]*PartitionIndex)
	}
	if idx, ok := d.indexes[name]; ok {
		return idx
	}
	idx := newPartitionIndex(filepath.Join(d.root, name), name, d.opts)
	d.indexes[name] = idx
	return idx
}

// Source is one catalog row handed to AddSource.
type Source struct {
	Name      string
	FinePixel int64
	Attrs     map[string]table.Value
}

// AddSource upserts a single source into the partition for
// (namespace, pixel), creating the namespace's index if absent.
func (d *Datastore) AddSource(namespace string, pixel uint32, src Source) error {
	cols := make([]table.Column, 0, len(src.Attrs))
	vals := make(map[string]table.Value, len(src.Attrs))
	for name, v := range src.Attrs {
		if v.IsNull() {
			continue
		}
		cols = append(cols, table.Column{Name: name, Type: v.Type()})
		vals[name] = v
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

	t := table.New(cols...)
	if err := t.Append(src.Name, src.FinePixel, vals); err != nil {
		return err
	}
	return d.AddDataset(namespace, pixel, t)
}

// AddDataset upserts a table of rows into the partition for
// (namespace, pixel), creating the namespace's index if absent.
func (d *Datastore) AddDataset(namespace string, pixel uint32, rows *table.Table) error {
	idx := d.getOrCreateIndex(namespace)
	return idx.GetOrCreate(pixel).Add(rows)
}

// All merges every partition of the given index - or of every
// namespace when idx is nil - into one combined table under the same
// schema-widening upsert rule as Partition.Add.
func (d *Datastore) All(idx *PartitionIndex) (*table.Table, error) {
	indexes := []*PartitionIndex{idx}
	if idx == nil {
		indexes = indexes[:0]
		for _, name := range d.Namespaces() {
			if x, ok := d.Index(name); ok {
				indexes = append(indexes, x)
			}
		}
	}

	combined := table.New()
	for _, x := range indexes {
		for _, p := range x.Partitions() {
			t, err := p.All(nil)
			if err != nil {
				return nil, err
			}
			combined.Merge(t)
		}
	}
	return combined, nil
}

// SaveAll persists every cached partition across every namespace.
func (d *Datastore) SaveAll() error {
	d.mu.RLock()
	indexes := make([]*PartitionIndex, 0, len(d.indexes))
	for _, idx := range d.indexes {
		indexes = append(indexes, idx)
	}
	d.mu.RUnlock()

	for _, idx := range indexes {
		if err := idx.SaveAll(); err != nil {
			return err
		}
	}
	return nil
}

// TouchMarker rewrites the freshness marker so the next Reload rescans.
// Ingestion calls this after landing new shards.
func (d *Datastore) TouchMarker(token string) error {
	if err := os.MkdirAll(d.root, 0755); err != nil {
		return errors.Wrapf(errors.ErrShardWrite, "create root %s: %v", d.root, err)
	}
	path := filepath.Join(d.root, MarkerFile)
	if err := os.WriteFile(path, []byte(token+"\n"), 0644); err != nil {
		return errors.Wrapf(errors.ErrShardWrite, "write marker %s: %v", path, err)
	}
	return nil
}

// Resolve maps a namespace selector to live PartitionIndexes: "*"
// matches every discovered catalog, otherwise the selector is a
// comma-separated allow-list. Selecting nothing is an error, not an
// empty result.
func (d *Datastore) Resolve(selector string) ([]*PartitionIndex, error) {
	var want []string
	if selector != "" && selector != "*" {
		for _, p := range strings.Split(selector, ",") {
			if p = strings.TrimSpace(p); p != "" {
				want = append(want, p)
			}
		}
	}

	var out []*PartitionIndex
	for _, name := range d.Namespaces() {
		if want != nil && !slices.Contains(want, name) {
			continue
		}
		if idx, ok := d.Index(name); ok {
			out = append(out, idx)
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(errors.ErrNoCatalogMatch, "selector %q", selector)
	}
	return out, nil
}
