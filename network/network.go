// Package network implements tree tensor networks.
//
// A Network is a connected acyclic graph whose vertices hold labeled
// tensors and whose edges are Indices shared between exactly two
// vertices ("bonds"). The matrix product state is the path-graph
// special case. Vertices are addressed by their 0-based position.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package network

import (
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"

	"github.com/tensor4all/tensornet/tensor"
)

// TagSite is carried by site indices created by package constructors.
const TagSite = "Site"

// Network is a tree of tensors connected by shared bond indices.
// Mutating operations are not safe for concurrent use on the same
// network.
type Network struct {
	vertices []*tensor.Dense
	adj      [][]int
	bonds    map[[2]int]tensor.Index

	form   Form
	center int
}

// New builds a network from tensors. Every Index shared by exactly two
// tensors becomes a bond; the resulting graph must be a connected tree
// with at most one bond per vertex pair, and no Index may appear in
// more than two tensors.
func New(tensors []*tensor.Dense) (*Network, error) {
	if len(tensors) == 0 {
		return nil, errors.Wrap(ErrEmptyNetwork, "no tensors")
	}
	n := &Network{
		vertices: slices.Clone(tensors),
		adj:      make([][]int, len(tensors)),
		bonds:    make(map[[2]int]tensor.Index),
		form:     FormNone,
		center:   -1,
	}

	holders := make(map[uint64][]int)
	indices := make(map[uint64]tensor.Index)
	for v, t := range tensors {
		for _, ix := range t.Indices() {
			holders[ix.ID()] = append(holders[ix.ID()], v)
			indices[ix.ID()] = ix
		}
	}
	for id, vs := range holders {
		if len(vs) > 2 {
			return nil, errors.Wrapf(ErrDisconnectedNetwork, "index %v appears in %d tensors", indices[id], len(vs))
		}
		if len(vs) != 2 {
			continue
		}
		key := edgeKey(vs[0], vs[1])
		if _, ok := n.bonds[key]; ok {
			return nil, errors.Wrapf(ErrDisconnectedNetwork, "vertices %d and %d share more than one index", vs[0], vs[1])
		}
		n.bonds[key] = indices[id]
		n.adj[vs[0]] = append(n.adj[vs[0]], vs[1])
		n.adj[vs[1]] = append(n.adj[vs[1]], vs[0])
	}
	for v := range n.adj {
		slices.Sort(n.adj[v])
	}

	if len(n.bonds) != len(tensors)-1 {
		return nil, errors.Wrapf(ErrDisconnectedNetwork, "%d bonds for %d vertices", len(n.bonds), len(tensors))
	}
	visited := make([]bool, len(tensors))
	queue := []int{0}
	visited[0] = true
	count := 1
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range n.adj[v] {
			if !visited[w] {
				visited[w] = true
				count++
				queue = append(queue, w)
			}
		}
	}
	if count != len(tensors) {
		return nil, errors.Wrapf(ErrDisconnectedNetwork, "%d of %d vertices reachable", count, len(tensors))
	}
	return n, nil
}

// NewMPS builds a path network whose vertex order is the given tensor
// order: consecutive tensors must share their bond.
func NewMPS(tensors []*tensor.Dense) (*Network, error) {
	n, err := New(tensors)
	if err != nil {
		return nil, err
	}
	if !n.IsPath() {
		return nil, errors.Wrap(ErrDisconnectedNetwork, "tensors do not chain into a path")
	}
	return n, nil
}

// RandomMPS builds a random path network over fresh site indices of
// the given dimensions, with bond dimensions capped at bondDim.
func RandomMPS(rng *rand.Rand, kind tensor.Kind, siteDims []int, bondDim int) (*Network, error) {
	if len(siteDims) == 0 {
		return nil, errors.Wrap(ErrEmptyNetwork, "no sites")
	}
	sites := make([]tensor.Index, len(siteDims))
	for i, d := range siteDims {
		ix, err := tensor.NewIndex(d, TagSite)
		if err != nil {
			return nil, err
		}
		sites[i] = ix
	}

	// Bond i sits between sites i and i+1; its dimension is capped by
	// the dense ranks of the two sides, as in an exact Schmidt split.
	bonds := make([]tensor.Index, len(siteDims)-1)
	left := 1
	for i := range bonds {
		left = capAt(left*siteDims[i], bondDim)
		right := 1
		for _, d := range siteDims[i+1:] {
			right = capAt(right*d, bondDim)
		}
		ix, err := tensor.NewIndex(min(left, right), tensor.TagLink)
		if err != nil {
			return nil, err
		}
		bonds[i] = ix
	}

	tensors := make([]*tensor.Dense, len(siteDims))
	for i := range siteDims {
		legs := make([]tensor.Index, 0, 3)
		if i > 0 {
			legs = append(legs, bonds[i-1])
		}
		legs = append(legs, sites[i])
		if i < len(bonds) {
			legs = append(legs, bonds[i])
		}
		t, err := tensor.Rand(rng, kind, legs...)
		if err != nil {
			return nil, err
		}
		tensors[i] = t
	}
	return NewMPS(tensors)
}

func capAt(a, limit int) int {
	if a > limit {
		return limit
	}
	return a
}

// Len returns the number of vertices.
func (n *Network) Len() int { return len(n.vertices) }

// EdgeCount returns the number of bonds.
func (n *Network) EdgeCount() int { return len(n.bonds) }

// Tensor returns the tensor at vertex v.
func (n *Network) Tensor(v int) (*tensor.Dense, error) {
	if v < 0 || v >= len(n.vertices) {
		return nil, errors.Wrapf(ErrDisconnectedNetwork, "vertex %d of %d", v, len(n.vertices))
	}
	return n.vertices[v], nil
}

// Collect returns the vertex tensors in canonical vertex order.
func (n *Network) Collect() []*tensor.Dense { return slices.Clone(n.vertices) }

// Bond returns the bond Index between u and v.
func (n *Network) Bond(u, v int) (tensor.Index, bool) {
	ix, ok := n.bonds[edgeKey(u, v)]
	return ix, ok
}

// BondDim returns the bond dimension between u and v, or 0 if the
// vertices are not adjacent.
func (n *Network) BondDim(u, v int) int {
	ix, ok := n.Bond(u, v)
	if !ok {
		return 0
	}
	return ix.Dim()
}

// BondDims returns the bond dimensions between consecutive vertices.
// It is meaningful for path networks.
func (n *Network) BondDims() []int {
	dims := make([]int, 0, len(n.vertices)-1)
	for i := 0; i+1 < len(n.vertices); i++ {
		dims = append(dims, n.BondDim(i, i+1))
	}
	return dims
}

// MaxBondDim returns the largest bond dimension, or 0 with no bonds.
func (n *Network) MaxBondDim() int {
	m := 0
	for _, ix := range n.bonds {
		m = max(m, ix.Dim())
	}
	return m
}

// SiteIndices returns the external (non-bond) legs per vertex.
func (n *Network) SiteIndices() [][]tensor.Index {
	out := make([][]tensor.Index, len(n.vertices))
	for v, t := range n.vertices {
		for _, ix := range t.Indices() {
			if !n.isBond(v, ix) {
				out[v] = append(out[v], ix)
			}
		}
	}
	return out
}

// Center returns the orthogonality center vertex, or -1 when the
// network carries no canonical form.
func (n *Network) Center() int { return n.center }

// Form returns the active canonical form.
func (n *Network) Form() Form { return n.form }

// IsPath reports whether the vertices chain into a path in order.
func (n *Network) IsPath() bool {
	for i := 0; i+1 < len(n.vertices); i++ {
		if _, ok := n.Bond(i, i+1); !ok {
			return false
		}
	}
	return len(n.bonds) == len(n.vertices)-1
}

// Clone returns a deep copy. Index identities are preserved, so the
// clone shares site and bond Indices with the original.
func (n *Network) Clone() *Network {
	out := &Network{
		vertices: make([]*tensor.Dense, len(n.vertices)),
		adj:      make([][]int, len(n.adj)),
		bonds:    make(map[[2]int]tensor.Index, len(n.bonds)),
		form:     n.form,
		center:   n.center,
	}
	for i, t := range n.vertices {
		out.vertices[i] = t.Clone()
	}
	for i, a := range n.adj {
		out.adj[i] = slices.Clone(a)
	}
	for k, v := range n.bonds {
		out.bonds[k] = v
	}
	return out
}

func (n *Network) isBond(v int, ix tensor.Index) bool {
	for _, w := range n.adj[v] {
		if b, ok := n.Bond(v, w); ok && b.Equal(ix) {
			return true
		}
	}
	return false
}

// path returns the unique tree path from vertex from to vertex to,
// inclusive of both endpoints.
func (n *Network) path(from, to int) []int {
	parent := make([]int, len(n.vertices))
	for i := range parent {
		parent[i] = -1
	}
	parent[from] = from
	queue := []int{from}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if v == to {
			break
		}
		for _, w := range n.adj[v] {
			if parent[w] < 0 {
				parent[w] = v
				queue = append(queue, w)
			}
		}
	}
	if parent[to] < 0 {
		return nil
	}
	rev := []int{to}
	for v := to; v != from; v = parent[v] {
		rev = append(rev, parent[v])
	}
	slices.Reverse(rev)
	return rev
}

func edgeKey(u, v int) [2]int {
	if u > v {
		u, v = v, u
	}
	return [2]int{u, v}
}
