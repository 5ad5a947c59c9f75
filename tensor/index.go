// Package tensor implements labeled dense tensors.
//
// A tensor leg is labeled by an Index, an immutable token carrying a
// dimension, a process-wide unique id and a set of tags. Two tensors
// sharing an Index share that dimension, and contraction pairs legs up
// by Index identity rather than by position.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
//   - The ITensor Software Library for Tensor Network Calculations, Fishman, White, Stoudenmire
package tensor

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// idCounter issues Index ids.
// It is the only process-wide mutable state in this package.
var idCounter atomic.Uint64

// Index labels one tensor leg.
// Index values are immutable after creation and compare equal iff their
// ids match. The zero Index is invalid.
type Index struct {
	id   uint64
	dim  int
	tags []string
}

// NewIndex creates an Index with a fresh id.
func NewIndex(dim int, tags ...string) (Index, error) {
	if dim <= 0 {
		return Index{}, errors.Wrapf(ErrInvalidDimension, "%d", dim)
	}
	ts := slices.Clone(tags)
	slices.Sort(ts)
	ts = slices.Compact(ts)
	return Index{id: idCounter.Add(1), dim: dim, tags: ts}, nil
}

// MustIndex is NewIndex that panics on error.
func MustIndex(dim int, tags ...string) Index {
	ix, err := NewIndex(dim, tags...)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return ix
}

// Dim returns the dimension of the leg labeled by ix.
func (ix Index) Dim() int { return ix.dim }

// ID returns the unique id of ix.
func (ix Index) ID() uint64 { return ix.id }

// Tags returns a copy of the tags of ix in sorted order.
func (ix Index) Tags() []string { return slices.Clone(ix.tags) }

// HasTag reports whether ix carries tag.
func (ix Index) HasTag(tag string) bool {
	_, ok := slices.BinarySearch(ix.tags, tag)
	return ok
}

// Copy returns an Index identical to ix, id included.
func (ix Index) Copy() Index {
	return Index{id: ix.id, dim: ix.dim, tags: ix.tags}
}

// Sim returns an Index with the same dimension and tags as ix but a
// fresh id. The result never compares equal to ix.
func (ix Index) Sim() Index {
	return Index{id: idCounter.Add(1), dim: ix.dim, tags: ix.tags}
}

// Equal reports whether a and b are the same Index.
func (ix Index) Equal(other Index) bool { return ix.id == other.id }

func (ix Index) String() string {
	if len(ix.tags) == 0 {
		return fmt.Sprintf("(dim=%d id=%d)", ix.dim, ix.id)
	}
	return fmt.Sprintf("(dim=%d id=%d %s)", ix.dim, ix.id, strings.Join(ix.tags, ","))
}

// IndexIn reports whether ix appears in legs.
func IndexIn(legs []Index, ix Index) bool {
	return indexPos(legs, ix) >= 0
}

// indexPos returns the position of ix in legs, or -1.
func indexPos(legs []Index, ix Index) int {
	for i, l := range legs {
		if l.id == ix.id {
			return i
		}
	}
	return -1
}
