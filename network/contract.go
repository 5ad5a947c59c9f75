package network

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tensor4all/tensornet/tensor"
)

// Method selects the network contraction algorithm.
type Method int

const (
	// Naive forms the exact product; bond dimensions multiply.
	Naive Method = iota
	// Zipup contracts in a single sweep, truncating each bond as it is
	// formed. Linear cost, non-variational.
	Zipup
	// Fit runs alternating-least-squares sweeps minimizing the error
	// of the product at a fixed bond budget.
	Fit
)

func (m Method) String() string {
	switch m {
	case Naive:
		return "naive"
	case Zipup:
		return "zipup"
	case Fit:
		return "fit"
	default:
		return "invalid"
	}
}

// ContractOptions tune the approximate contraction methods. MaxDim
// and Tol bound each truncated bond as in TruncateOptions. MaxSweeps
// and RTol stop the Fit iteration; zero values mean the defaults of
// 16 sweeps and 1e-10 relative change.
type ContractOptions struct {
	MaxDim    int
	Tol       float64
	MaxSweeps int
	RTol      float64
}

const (
	defaultFitSweeps = 16
	defaultFitRTol   = 1e-10
)

// Contract combines two path networks with matching site structure,
// contracting the site indices the two networks share at each vertex
// (the MPO×MPS product is the typical case).
func Contract(a, b *Network, method Method, opts ContractOptions) (*Network, error) {
	if err := alignCheck(a, b); err != nil {
		return nil, err
	}
	switch method {
	case Naive:
		return naiveContract(a, b)
	case Zipup:
		return zipupContract(a, b, opts)
	case Fit:
		return fitContract(a, b, opts)
	default:
		return nil, errors.Errorf("method %v", method)
	}
}

func alignCheck(a, b *Network) error {
	if !a.IsPath() || !b.IsPath() {
		return errors.Wrap(ErrIncompatibleTopology, "inputs must be path networks")
	}
	if a.Len() != b.Len() {
		return errors.Wrapf(ErrIncompatibleTopology, "%d %d vertices", a.Len(), b.Len())
	}
	for _, ix := range a.bonds {
		for _, jx := range b.bonds {
			if ix.Equal(jx) {
				return errors.Wrapf(ErrIncompatibleTopology, "networks share bond %v", ix)
			}
		}
	}
	aSites, bSites := a.SiteIndices(), b.SiteIndices()
	for i := range aSites {
		shared := 0
		for _, ix := range aSites[i] {
			if tensor.IndexIn(bSites[i], ix) {
				shared++
			}
		}
		if shared == 0 {
			return errors.Wrapf(ErrIncompatibleTopology, "no shared site index at vertex %d", i)
		}
	}
	return nil
}

func naiveContract(a, b *Network) (*Network, error) {
	n := a.Len()
	cores := make([]*tensor.Dense, n)
	for i := range n {
		m, err := tensor.Contract(a.vertices[i], b.vertices[i])
		if err != nil {
			return nil, err
		}
		cores[i] = m
	}

	// Fuse the (a, b) bond pair at each edge into a single bond shared
	// by the adjacent cores.
	for i := 0; i+1 < n; i++ {
		ab, _ := a.Bond(i, i+1)
		bb, _ := b.Bond(i, i+1)
		fused := tensor.MustIndex(ab.Dim()*bb.Dim(), tensor.TagLink)
		var err error
		if cores[i], err = cores[i].Fuse(fused, ab, bb); err != nil {
			return nil, err
		}
		if cores[i+1], err = cores[i+1].Fuse(fused, ab, bb); err != nil {
			return nil, err
		}
	}
	return NewMPS(cores)
}

func zipupContract(a, b *Network, opts ContractOptions) (*Network, error) {
	n := a.Len()
	cores := make([]*tensor.Dense, n)
	var carry *tensor.Dense
	for i := range n {
		m, err := tensor.Contract(a.vertices[i], b.vertices[i])
		if err != nil {
			return nil, err
		}
		if carry != nil {
			if m, err = tensor.Contract(carry, m); err != nil {
				return nil, err
			}
		}
		if i == n-1 {
			cores[i] = m
			break
		}

		ab, _ := a.Bond(i, i+1)
		bb, _ := b.Bond(i, i+1)
		rows := make([]tensor.Index, 0, m.Rank())
		for _, ix := range m.Indices() {
			if !ix.Equal(ab) && !ix.Equal(bb) {
				rows = append(rows, ix)
			}
		}
		res, err := tensor.SVD(m, rows, tensor.SVDOptions{MaxDim: opts.MaxDim, Tol: opts.Tol})
		if err != nil {
			return nil, err
		}
		cores[i] = res.U
		carry = tensor.ScaleRows(res.Vh, res.S)
	}
	return NewMPS(cores)
}

// fitContract minimizes || x - a*b || over matrix product states x of
// bond dimension at most opts.MaxDim by alternating-least-squares
// sweeps, in the manner of a single-site DMRG pass. The sweep is
// initialized from the zip-up product. Convergence is declared when
// the relative change of ||x|| between successive sweeps drops below
// RTol; in the orthogonal gauge kept here, ||x|| is the norm of the
// projection of a*b and grows monotonically toward it.
func fitContract(a, b *Network, opts ContractOptions) (*Network, error) {
	maxSweeps := opts.MaxSweeps
	if maxSweeps == 0 {
		maxSweeps = defaultFitSweeps
	}
	rtol := opts.RTol
	if rtol == 0 {
		rtol = defaultFitRTol
	}

	x, err := zipupContract(a, b, opts)
	if err != nil {
		return nil, err
	}
	n := x.Len()
	if n == 1 {
		return x, nil
	}
	if err := x.Orthogonalize(0, FormUnitary); err != nil {
		return nil, err
	}
	cores := x.vertices
	xbond := make([]tensor.Index, n-1)
	for i := range xbond {
		xbond[i], _ = x.Bond(i, i+1)
	}

	// renv[i] is the environment of all sites right of i; lenv[i] of
	// all sites left of i.
	renv := make([]*tensor.Dense, n)
	lenv := make([]*tensor.Dense, n)
	for i := n - 1; i >= 1; i-- {
		if renv[i-1], err = envStep(renvAt(renv, i), cores[i], a.vertices[i], b.vertices[i]); err != nil {
			return nil, err
		}
	}

	prevNorm := math.Inf(-1)
	for range maxSweeps {
		// Left-to-right: update each core from its environments and
		// re-orthogonalize it toward the next site.
		for i := 0; i+1 < n; i++ {
			m, err := coreUpdate(lenvAt(lenv, i), renvAt(renv, i), a.vertices[i], b.vertices[i])
			if err != nil {
				return nil, err
			}
			rows := make([]tensor.Index, 0, m.Rank())
			for _, ix := range m.Indices() {
				if !ix.Equal(xbond[i]) {
					rows = append(rows, ix)
				}
			}
			q, _, newBond, err := tensor.QR(m, rows)
			if err != nil {
				return nil, err
			}
			cores[i] = q
			xbond[i] = newBond
			if lenv[i], err = envStep(lenvAt(lenv, i), q, a.vertices[i], b.vertices[i]); err != nil {
				return nil, err
			}
		}

		// Right-to-left.
		for i := n - 1; i >= 1; i-- {
			m, err := coreUpdate(lenvAt(lenv, i), renvAt(renv, i), a.vertices[i], b.vertices[i])
			if err != nil {
				return nil, err
			}
			rows := make([]tensor.Index, 0, m.Rank())
			for _, ix := range m.Indices() {
				if !ix.Equal(xbond[i-1]) {
					rows = append(rows, ix)
				}
			}
			q, _, newBond, err := tensor.QR(m, rows)
			if err != nil {
				return nil, err
			}
			cores[i] = q
			xbond[i-1] = newBond
			if renv[i-1], err = envStep(renvAt(renv, i), q, a.vertices[i], b.vertices[i]); err != nil {
				return nil, err
			}
		}

		// Close the sweep at site 0; the remaining cores are
		// orthonormal, so ||x|| = ||cores[0]||.
		m, err := coreUpdate(nil, renvAt(renv, 0), a.vertices[0], b.vertices[0])
		if err != nil {
			return nil, err
		}
		cores[0] = m

		norm := m.Norm()
		if math.Abs(norm-prevNorm) <= rtol*math.Max(norm, 1) {
			break
		}
		prevNorm = norm
	}
	return NewMPS(cores)
}

func renvAt(renv []*tensor.Dense, i int) *tensor.Dense {
	if i+1 < len(renv) {
		return renv[i]
	}
	return nil
}

func lenvAt(lenv []*tensor.Dense, i int) *tensor.Dense {
	if i == 0 {
		return nil
	}
	return lenv[i-1]
}

// envStep extends an environment across one site: the conjugated x
// core and the two product factors are absorbed, leaving the three
// open bonds toward the unvisited part of the chain.
func envStep(f, xcore, ai, bi *tensor.Dense) (*tensor.Dense, error) {
	g := xcore.Conj()
	var err error
	if f != nil {
		if g, err = tensor.Contract(g, f); err != nil {
			return nil, err
		}
	}
	if g, err = tensor.Contract(g, ai); err != nil {
		return nil, err
	}
	return tensor.Contract(g, bi)
}

// coreUpdate computes the locally optimal core: the product site
// tensors sandwiched between the left and right environments.
func coreUpdate(l, r, ai, bi *tensor.Dense) (*tensor.Dense, error) {
	m, err := tensor.Contract(ai, bi)
	if err != nil {
		return nil, err
	}
	if l != nil {
		if m, err = tensor.Contract(l, m); err != nil {
			return nil, err
		}
	}
	if r != nil {
		if m, err = tensor.Contract(m, r); err != nil {
			return nil, err
		}
	}
	return m, nil
}
