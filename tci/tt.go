package tci

import (
	"github.com/pkg/errors"

	"github.com/tensor4all/tensornet/network"
	"github.com/tensor4all/tensornet/tensor"
)

// TT is a tensor train produced by cross interpolation. Core k is
// stored row-major with shape (rank k-1, dims[k], rank k); the outer
// ranks are 1.
type TT struct {
	dims  []int
	ranks []int
	cores [][]float64
}

// Len returns the number of sites.
func (tt *TT) Len() int { return len(tt.dims) }

// BondDims returns the ranks between consecutive sites.
func (tt *TT) BondDims() []int { return append([]int(nil), tt.ranks...) }

// Evaluate returns the tensor-train value at the given 0-based
// coordinates by a chain of vector-matrix products.
func (tt *TT) Evaluate(coords ...int) (float64, error) {
	if len(coords) != len(tt.dims) {
		return 0, errors.Errorf("%d coords for %d sites", len(coords), len(tt.dims))
	}
	for k, c := range coords {
		if c < 0 || c >= tt.dims[k] {
			return 0, errors.Errorf("coord %d out of range for site %d of dim %d", c, k, tt.dims[k])
		}
	}

	v := []float64{1}
	for k, c := range coords {
		rl, rr := tt.rankAt(k), tt.rankAt(k+1)
		next := make([]float64, rr)
		core := tt.cores[k]
		for b := range rl {
			vb := v[b]
			if vb == 0 {
				continue
			}
			row := core[(b*tt.dims[k]+c)*rr:]
			for j := range rr {
				next[j] += vb * row[j]
			}
		}
		v = next
	}
	return v[0], nil
}

// Sum returns the sum of the represented tensor over its full domain.
func (tt *TT) Sum() float64 {
	v := []float64{1}
	for k, d := range tt.dims {
		rl, rr := tt.rankAt(k), tt.rankAt(k+1)
		next := make([]float64, rr)
		core := tt.cores[k]
		for b := range rl {
			vb := v[b]
			if vb == 0 {
				continue
			}
			for s := range d {
				row := core[(b*d+s)*rr:]
				for j := range rr {
					next[j] += vb * row[j]
				}
			}
		}
		v = next
	}
	return v[0]
}

// Network converts the train into a path network over fresh site
// indices.
func (tt *TT) Network() (*network.Network, error) {
	n := len(tt.dims)
	sites := make([]tensor.Index, n)
	for k, d := range tt.dims {
		sites[k] = tensor.MustIndex(d, network.TagSite)
	}
	bonds := make([]tensor.Index, n-1)
	for k, r := range tt.ranks {
		bonds[k] = tensor.MustIndex(r, tensor.TagLink)
	}

	cores := make([]*tensor.Dense, n)
	for k := range tt.dims {
		legs := make([]tensor.Index, 0, 3)
		if k > 0 {
			legs = append(legs, bonds[k-1])
		}
		legs = append(legs, sites[k])
		if k < n-1 {
			legs = append(legs, bonds[k])
		}
		t, err := tensor.FromReal(tt.cores[k], legs...)
		if err != nil {
			return nil, err
		}
		cores[k] = t
	}
	return network.NewMPS(cores)
}

func (tt *TT) rankAt(k int) int {
	if k == 0 || k == len(tt.dims) {
		return 1
	}
	return tt.ranks[k-1]
}
