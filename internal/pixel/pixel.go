// Package pixel provides the HEALPix pixel-set types used to select
// partitions and sources.
//
// Two resolutions are in play, both under the nested ordering scheme: a
// coarse index identifying partition boundaries and a fine index
// identifying individual source positions. The package treats pixel ids
// as opaque non-negative integers; it performs no spherical geometry.
package pixel

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/kaelis/skyshard/internal/errors"
)

// CoarseSet is a set of coarse pixel ids, selecting partitions.
type CoarseSet struct {
	rb *roaring.Bitmap
}

// NewCoarseSet creates a coarse pixel set from the given ids.
func NewCoarseSet(pixels ...uint32) *CoarseSet {
	return &CoarseSet{rb: roaring.BitmapOf(pixels...)}
}

// Add adds a pixel id to the set.
func (s *CoarseSet) Add(p uint32) {
	s.rb.Add(p)
}

// Contains reports whether p is in the set.
func (s *CoarseSet) Contains(p uint32) bool {
	return s.rb.Contains(p)
}

// IsEmpty reports whether the set has no pixels.
func (s *CoarseSet) IsEmpty() bool {
	return s == nil || s.rb.IsEmpty()
}

// Cardinality returns the number of pixels in the set.
func (s *CoarseSet) Cardinality() uint64 {
	if s == nil {
		return 0
	}
	return s.rb.GetCardinality()
}

// Values returns the pixel ids in ascending order. The slice is a
// fresh copy on every call.
func (s *CoarseSet) Values() []uint32 {
	if s == nil {
		return nil
	}
	return s.rb.ToArray()
}

func (s *CoarseSet) String() string {
	return fmt.Sprintf("coarse%v", s.Values())
}

// FineSet is a set of fine pixel ids, selecting individual sources
// within the chosen partitions.
type FineSet struct {
	rb *roaring64.Bitmap
}

// NewFineSet creates a fine pixel set from the given ids.
func NewFineSet(pixels ...uint64) *FineSet {
	return &FineSet{rb: roaring64.BitmapOf(pixels...)}
}

// Add adds a pixel id to the set.
func (s *FineSet) Add(p uint64) {
	s.rb.Add(p)
}

// Contains reports whether p is in the set.
func (s *FineSet) Contains(p uint64) bool {
	return s.rb.Contains(p)
}

// IsEmpty reports whether the set has no pixels. An empty fine set
// means coarse-only selection: every row in the chosen partitions
// passes the spatial stage.
func (s *FineSet) IsEmpty() bool {
	return s == nil || s.rb.IsEmpty()
}

// Cardinality returns the number of pixels in the set.
func (s *FineSet) Cardinality() uint64 {
	if s == nil {
		return 0
	}
	return s.rb.GetCardinality()
}

// Values returns the pixel ids in ascending order.
func (s *FineSet) Values() []uint64 {
	if s == nil {
		return nil
	}
	return s.rb.ToArray()
}

func (s *FineSet) String() string {
	return fmt.Sprintf("fine%v", s.Values())
}

// Grid relates the two resolutions of the sharding scheme.
type Grid struct {
	coarseNside int
	fineNside   int
	shift       uint
}

// NewGrid builds a Grid for the given nested-scheme resolutions. Both
// must be powers of two with fineNside > coarseNside.
func NewGrid(coarseNside, fineNside int) (*Grid, error) {
	if coarseNside <= 0 || bits.OnesCount(uint(coarseNside)) != 1 {
		return nil, errors.Wrapf(errors.ErrInvalidNside, "coarse nside %d is not a power of two", coarseNside)
	}
	if fineNside <= coarseNside || bits.OnesCount(uint(fineNside)) != 1 {
		return nil, errors.Wrapf(errors.ErrInvalidNside, "fine nside %d must be a larger power of two than %d", fineNside, coarseNside)
	}

	// In the nested scheme each step in nside subdivides a pixel into
	// four children, so the parent id is the child id shifted right by
	// two bits per step.
	steps := bits.TrailingZeros(uint(fineNside)) - bits.TrailingZeros(uint(coarseNside))
	return &Grid{
		coarseNside: coarseNside,
		fineNside:   fineNside,
		shift:       uint(2 * steps),
	}, nil
}

// CoarseNside returns the partition-boundary resolution.
func (g *Grid) CoarseNside() int { return g.coarseNside }

// FineNside returns the per-source resolution.
func (g *Grid) FineNside() int { return g.fineNside }

// CoarseOf returns the coarse pixel containing the given fine pixel.
func (g *Grid) CoarseOf(fine uint64) uint32 {
	return uint32(fine >> g.shift)
}

// Contains reports whether the fine pixel nests inside the coarse one.
func (g *Grid) Contains(coarse uint32, fine uint64) bool {
	return g.CoarseOf(fine) == coarse
}

// CoarseFootprint returns the distinct coarse pixels covering the
// given fine set, in ascending order.
func (g *Grid) CoarseFootprint(fine *FineSet) []uint32 {
	var out []uint32
	for _, f := range fine.Values() {
		c := g.CoarseOf(f)
		if len(out) == 0 || out[len(out)-1] != c {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ConeSearcher computes the pixel sets covered by a spherical cone.
// Implementations live outside this module; results are treated as
// opaque integer sets and are not geometrically validated here.
type ConeSearcher interface {
	// PixelSets returns the coarse and fine pixel sets covering the
	// cone centred on (ra, dec) degrees with the given field-of-view
	// radius in degrees.
	PixelSets(ra, dec, radius float64) (*CoarseSet, *FineSet, error)
}
