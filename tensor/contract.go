package tensor

import (
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/blas/cblas128"
)

// Contract contracts a with b over every Index the two tensors share.
// The result's legs are a's free legs followed by b's free legs; with
// no shared Index the result is the outer product. The result is Real
// only when both inputs are Real.
func Contract(a, b *Dense) (*Dense, error) {
	var shared, aFree, bFree []Index
	for _, l := range a.legs {
		if b.HasIndex(l) {
			shared = append(shared, l)
		} else {
			aFree = append(aFree, l)
		}
	}
	for _, l := range b.legs {
		if indexPos(shared, l) < 0 {
			bFree = append(bFree, l)
		}
	}

	ar, err := a.Reorder(append(slices.Clone(aFree), shared...)...)
	if err != nil {
		return nil, err
	}
	br, err := b.Reorder(append(slices.Clone(shared), bFree...)...)
	if err != nil {
		return nil, err
	}

	m, k, n := size(aFree), size(shared), size(bFree)
	outLegs := append(slices.Clone(aFree), bFree...)
	if ar.kind == Real && br.kind == Real {
		out := &Dense{legs: outLegs, kind: Real, re: make([]float64, m*n)}
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas64.General{Rows: m, Cols: k, Stride: max(1, k), Data: ar.re},
			blas64.General{Rows: k, Cols: n, Stride: max(1, n), Data: br.re},
			0,
			blas64.General{Rows: m, Cols: n, Stride: max(1, n), Data: out.re})
		return out, nil
	}

	ar.promote()
	br.promote()
	out := &Dense{legs: outLegs, kind: Complex, cx: make([]complex128, m*n)}
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1,
		cblas128.General{Rows: m, Cols: k, Stride: max(1, k), Data: ar.cx},
		cblas128.General{Rows: k, Cols: n, Stride: max(1, n), Data: br.cx},
		0,
		cblas128.General{Rows: m, Cols: n, Stride: max(1, n), Data: out.cx})
	return out, nil
}

// ContractAll contracts ts left to right into a single tensor.
func ContractAll(ts ...*Dense) (*Dense, error) {
	if len(ts) == 0 {
		return Zeros(Real)
	}
	acc := ts[0]
	var err error
	for _, t := range ts[1:] {
		if acc, err = Contract(acc, t); err != nil {
			return nil, err
		}
	}
	return acc, nil
}
