package network

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tensor4all/tensornet/tensor"
)

// Inner returns <a|b>, the inner product over the shared site indices.
// The bra layer is conjugated and its bonds relabeled, so a and b may
// be the same network.
func Inner(a, b *Network) (complex128, error) {
	if a.Len() != b.Len() {
		return 0, errors.Wrapf(ErrIncompatibleTopology, "%d %d vertices", a.Len(), b.Len())
	}

	bra, err := simBonds(a)
	if err != nil {
		return 0, err
	}

	var f *tensor.Dense
	for i := range bra {
		braI := bra[i].Conj()
		if f == nil {
			f = braI
		} else if f, err = tensor.Contract(f, braI); err != nil {
			return 0, err
		}
		if f, err = tensor.Contract(f, b.vertices[i]); err != nil {
			return 0, err
		}
	}
	if f.Rank() != 0 {
		return 0, errors.Wrapf(ErrIncompatibleTopology, "open legs %v after contraction", f.Indices())
	}
	return f.At(), nil
}

// Norm returns the L2 norm of the state the network represents.
func (n *Network) Norm() (float64, error) {
	ip, err := Inner(n, n)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(math.Abs(real(ip))), nil
}

// ToDense contracts the whole network into a single tensor over the
// site indices. Exponential in the number of sites; meant for small
// validation cases.
func (n *Network) ToDense() (*tensor.Dense, error) {
	return tensor.ContractAll(n.vertices...)
}

// Evaluate reconstructs a single entry of the represented tensor. The
// network must have exactly one site index per vertex; coords are
// 0-based positions in vertex order.
func (n *Network) Evaluate(coords ...int) (complex128, error) {
	sites := n.SiteIndices()
	if len(coords) != len(n.vertices) {
		return 0, errors.Wrapf(ErrIncompatibleTopology, "%d coords for %d vertices", len(coords), len(n.vertices))
	}

	var f *tensor.Dense
	var err error
	for v, t := range n.vertices {
		if len(sites[v]) != 1 {
			return 0, errors.Wrapf(ErrIncompatibleTopology, "vertex %d has %d site indices", v, len(sites[v]))
		}
		sel, err1 := tensor.OneHot(tensor.Assignment{Index: sites[v][0], Pos: coords[v]})
		if err1 != nil {
			return 0, err1
		}
		slice, err1 := tensor.Contract(t, sel)
		if err1 != nil {
			return 0, err1
		}
		if f == nil {
			f = slice
		} else if f, err = tensor.Contract(f, slice); err != nil {
			return 0, err
		}
	}
	if f.Rank() != 0 {
		return 0, errors.Wrapf(ErrIncompatibleTopology, "open legs %v after contraction", f.Indices())
	}
	return f.At(), nil
}

// simBonds returns the vertex tensors with every bond Index replaced
// by a same-shaped fresh one, consistently across the two endpoints.
func simBonds(n *Network) ([]*tensor.Dense, error) {
	sims := make(map[uint64]tensor.Index, len(n.bonds))
	for _, ix := range n.bonds {
		sims[ix.ID()] = ix.Sim()
	}
	out := make([]*tensor.Dense, len(n.vertices))
	for v, t := range n.vertices {
		for _, ix := range t.Indices() {
			sim, ok := sims[ix.ID()]
			if !ok {
				continue
			}
			var err error
			if t, err = t.ReplaceIndex(ix, sim); err != nil {
				return nil, err
			}
		}
		out[v] = t
	}
	return out, nil
}
