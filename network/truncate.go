package network

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tensor4all/tensornet/tensor"
)

// TruncateOptions bound a truncation sweep. MaxDim 0 means no rank
// cap; Tol 0 means no weight-based truncation. At least one must be
// set.
type TruncateOptions struct {
	MaxDim int
	// Tol is the largest allowed relative squared discarded weight per
	// bond.
	Tol float64
}

// TruncationResult reports the realized truncation error.
type TruncationResult struct {
	// BondErrs maps each bond to sqrt of its relative squared
	// discarded weight.
	BondErrs map[[2]int]float64
	// Err is the L2 combination of the per-bond errors,
	// sqrt(sum of squared bond errors).
	Err float64
}

// Truncate reduces bond dimensions within the budget given by opts.
// The network must already be in the Unitary canonical form; Truncate
// never canonicalizes implicitly and returns ErrNotCanonicalized
// otherwise. Each bond is truncated exactly once by a singular value
// decomposition, sweeping depth-first away from the orthogonality
// center, which is restored at the end. Bond dimensions never grow.
func (n *Network) Truncate(opts TruncateOptions) (TruncationResult, error) {
	if n.form != FormUnitary || n.center < 0 {
		return TruncationResult{}, errors.Wrapf(ErrNotCanonicalized, "form %v center %d", n.form, n.center)
	}
	if opts.MaxDim < 0 || opts.Tol < 0 {
		return TruncationResult{}, errors.Wrapf(ErrInvalidBudget, "maxdim %d tol %g", opts.MaxDim, opts.Tol)
	}
	if opts.MaxDim == 0 && opts.Tol == 0 {
		return TruncationResult{}, errors.Wrap(ErrInvalidBudget, "neither maxdim nor tol set")
	}

	res := TruncationResult{BondErrs: make(map[[2]int]float64)}
	var sweep func(v, parent int) error
	sweep = func(v, parent int) error {
		// The center is at v on entry and on return.
		for _, w := range n.adj[v] {
			if w == parent {
				continue
			}
			disc, err := n.svdToward(v, w, opts)
			if err != nil {
				return err
			}
			res.BondErrs[edgeKey(v, w)] = math.Sqrt(disc)
			if err := sweep(w, v); err != nil {
				return err
			}
			// Move the center back up with a plain QR step.
			if err := n.factorToward(w, v, FormUnitary); err != nil {
				return err
			}
		}
		return nil
	}
	if err := sweep(n.center, -1); err != nil {
		return TruncationResult{}, err
	}

	var sum float64
	for _, e := range res.BondErrs {
		sum += e * e
	}
	res.Err = math.Sqrt(sum)
	return res, nil
}

// svdToward truncates the bond between the center v and its neighbor
// w, moving the center to w. Returns the relative squared discarded
// weight.
func (n *Network) svdToward(v, w int, opts TruncateOptions) (float64, error) {
	bond, ok := n.Bond(v, w)
	if !ok {
		return 0, errors.Wrapf(ErrDisconnectedNetwork, "no bond %d - %d", v, w)
	}
	t := n.vertices[v]
	rows := make([]tensor.Index, 0, t.Rank()-1)
	for _, ix := range t.Indices() {
		if !ix.Equal(bond) {
			rows = append(rows, ix)
		}
	}

	res, err := tensor.SVD(t, rows, tensor.SVDOptions{MaxDim: opts.MaxDim, Tol: opts.Tol})
	if err != nil {
		return 0, err
	}
	carry := tensor.ScaleRows(res.Vh, res.S)
	absorbed, err := tensor.Contract(carry, n.vertices[w])
	if err != nil {
		return 0, err
	}
	n.vertices[v] = res.U
	n.vertices[w] = absorbed
	n.bonds[edgeKey(v, w)] = res.Bond
	n.center = w
	return res.Discarded, nil
}
