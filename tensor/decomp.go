package tensor

import (
	"slices"

	"github.com/pkg/errors"
	gmat "gonum.org/v1/gonum/mat"
)

// TagLink is carried by every bond Index created by a decomposition.
const TagLink = "Link"

// split reorders t as [rowLegs..., colLegs...] and returns the
// matricized view sizes. rowLegs must be a subset of t's legs; the
// column legs are the remaining legs in t's order.
func split(t *Dense, rowLegs []Index) (w *Dense, rows, cols int, cLegs []Index, err error) {
	for _, l := range rowLegs {
		if !t.HasIndex(l) {
			return nil, 0, 0, nil, errors.Wrapf(ErrUnknownIndex, "%v", l)
		}
	}
	for _, l := range t.legs {
		if indexPos(rowLegs, l) < 0 {
			cLegs = append(cLegs, l)
		}
	}
	if len(rowLegs)+len(cLegs) != len(t.legs) {
		return nil, 0, 0, nil, errors.Wrapf(ErrDuplicateLeg, "%v", rowLegs)
	}
	w, err = t.Reorder(append(slices.Clone(rowLegs), cLegs...)...)
	if err != nil {
		return nil, 0, 0, nil, err
	}
	return w, size(rowLegs), size(cLegs), cLegs, nil
}

// QR factors t = q*r across the (rowLegs | rest) bipartition. q has
// legs [rowLegs..., bond] with orthonormal columns in the matricized
// sense; r has legs [bond, rest...]. The bond dimension is
// min(prod(row dims), prod(col dims)).
func QR(t *Dense, rowLegs []Index, tags ...string) (q, r *Dense, bond Index, err error) {
	w, m, n, cLegs, err := split(t, rowLegs)
	if err != nil {
		return nil, nil, Index{}, err
	}
	k := min(m, n)
	bond = MustIndex(k, append([]string{TagLink}, tags...)...)

	if w.kind == Real {
		// gonum's QR requires m >= n; wide matricizations go through
		// the complex kernel, which handles both shapes.
		if m < n {
			zq, zr := zQR(zmat{r: m, c: n, d: mustComplex(w)})
			q = realPartTensor(zq.d, append(slices.Clone(rowLegs), bond))
			r = realPartTensor(zr.d, append([]Index{bond}, cLegs...))
			return q, r, bond, nil
		}
		var qr gmat.QR
		qr.Factorize(gmat.NewDense(m, n, w.re))
		var qm, rm gmat.Dense
		qr.QTo(&qm)
		qr.RTo(&rm)
		q = realMatTensor(denseSlice(&qm, m, k), append(slices.Clone(rowLegs), bond))
		r = realMatTensor(denseSlice(&rm, k, n), append([]Index{bond}, cLegs...))
		return q, r, bond, nil
	}

	zq, zr := zQR(zmat{r: m, c: n, d: w.cx})
	q = cxMatTensor(zq.d, append(slices.Clone(rowLegs), bond))
	r = cxMatTensor(zr.d, append([]Index{bond}, cLegs...))
	return q, r, bond, nil
}

// LU factors t = l*u across the (rowLegs | rest) bipartition using
// partially pivoted elimination. l has legs [rowLegs..., bond] and is
// unit lower triangular up to the row permutation; u has legs
// [bond, rest...].
func LU(t *Dense, rowLegs []Index, tags ...string) (l, u *Dense, bond Index, err error) {
	w, m, n, cLegs, err := split(t, rowLegs)
	if err != nil {
		return nil, nil, Index{}, err
	}
	k := min(m, n)
	bond = MustIndex(k, append([]string{TagLink}, tags...)...)

	zw := zmat{r: m, c: n, d: mustComplex(w)}
	zl, zu := zLU(zw)
	lLegs := append(slices.Clone(rowLegs), bond)
	uLegs := append([]Index{bond}, cLegs...)
	if w.kind == Real {
		return realPartTensor(zl.d, lLegs), realPartTensor(zu.d, uLegs), bond, nil
	}
	return cxMatTensor(zl.d, lLegs), cxMatTensor(zu.d, uLegs), bond, nil
}

// CIOptions tune the cross-interpolation split.
type CIOptions struct {
	// MaxDim caps the number of pivots; 0 means unbounded.
	MaxDim int
	// Tol stops pivoting once the residual maximum falls to Tol times
	// the first pivot.
	Tol float64
}

// CI factors t ≈ c*z across the (rowLegs | rest) bipartition using a
// rank-revealing cross split: pivot rows and columns are chosen by
// fully pivoted elimination, c interpolates the selected columns
// (c = t[:,J] t[I,J]^-1, exactly the identity on the pivot rows) and
// z = t[I,:] restricts t to the pivot rows. Unlike QR and LU this is
// rank-adaptive: the bond dimension equals the number of pivots.
func CI(t *Dense, rowLegs []Index, opts CIOptions, tags ...string) (c, z *Dense, bond Index, err error) {
	w, m, n, cLegs, err := split(t, rowLegs)
	if err != nil {
		return nil, nil, Index{}, err
	}
	zw := zmat{r: m, c: n, d: mustComplex(w)}
	rows, cols := zRRLU(zw, opts.Tol, opts.MaxDim)

	k := len(rows)
	if k == 0 {
		// Zero tensor: keep a dim-1 bond with zero factors.
		bond = MustIndex(1, append([]string{TagLink}, tags...)...)
		c, err = Zeros(w.kind, append(slices.Clone(rowLegs), bond)...)
		if err != nil {
			return nil, nil, Index{}, err
		}
		z, err = Zeros(w.kind, append([]Index{bond}, cLegs...)...)
		if err != nil {
			return nil, nil, Index{}, err
		}
		return c, z, bond, nil
	}
	bond = MustIndex(k, append([]string{TagLink}, tags...)...)

	// cm = t[:, J], pm = t[I, J], zm = t[I, :].
	cm := newZmat(m, k)
	pm := newZmat(k, k)
	zm := newZmat(k, n)
	for j, cj := range cols {
		for i := 0; i < m; i++ {
			cm.set(i, j, zw.at(i, cj))
		}
		for i, ri := range rows {
			pm.set(i, j, zw.at(ri, cj))
		}
	}
	for i, ri := range rows {
		for j := 0; j < n; j++ {
			zm.set(i, j, zw.at(ri, j))
		}
	}

	// Interpolation factor x = cm pm^-1 via pm^T x^T = cm^T.
	xt, err := zSolve(zTranspose(pm), zTranspose(cm))
	if err != nil {
		return nil, nil, Index{}, err
	}
	x := zTranspose(xt)

	cLegsOut := append(slices.Clone(rowLegs), bond)
	zLegsOut := append([]Index{bond}, cLegs...)
	if w.kind == Real {
		return realPartTensor(x.d, cLegsOut), realPartTensor(zm.d, zLegsOut), bond, nil
	}
	return cxMatTensor(x.d, cLegsOut), cxMatTensor(zm.d, zLegsOut), bond, nil
}

// SVDOptions tune the truncating singular value decomposition.
type SVDOptions struct {
	// MaxDim caps the kept rank; 0 means unbounded.
	MaxDim int
	// Tol is the largest allowed relative discarded weight: the kept
	// rank is the smallest k with sum of squared discarded singular
	// values at most Tol times the total squared weight.
	Tol float64
}

// SVDResult is a truncated singular value decomposition
// t ≈ U * diag(S) * Vh.
type SVDResult struct {
	// U has legs [rowLegs..., bond] with orthonormal columns.
	U *Dense
	// S holds the kept singular values in decreasing order.
	S []float64
	// Vh has legs [bond, rest...] with orthonormal rows.
	Vh *Dense
	Bond Index
	// Discarded is the relative squared discarded weight,
	// sum of dropped s^2 over sum of all s^2.
	Discarded float64
}

// SVD factors t across the (rowLegs | rest) bipartition and truncates
// per opts. Exact zero singular values are always dropped, but at
// least one direction is kept.
func SVD(t *Dense, rowLegs []Index, opts SVDOptions, tags ...string) (SVDResult, error) {
	w, m, n, cLegs, err := split(t, rowLegs)
	if err != nil {
		return SVDResult{}, err
	}

	if w.kind == Real {
		var svd gmat.SVD
		if ok := svd.Factorize(gmat.NewDense(m, n, w.re), gmat.SVDThin); !ok {
			return SVDResult{}, errors.Errorf("SVD failed to converge: %dx%d", m, n)
		}
		s := svd.Values(nil)
		var um, vm gmat.Dense
		svd.UTo(&um)
		svd.VTo(&vm)
		keep, disc := truncRank(s, opts.MaxDim, opts.Tol)
		uRe := denseSlice(&um, m, keep)
		// vm is n×min(m,n); Vh rows are transposed columns of vm.
		vhRe := make([]float64, keep*n)
		for r := 0; r < keep; r++ {
			for c := 0; c < n; c++ {
				vhRe[r*n+c] = vm.At(c, r)
			}
		}
		bond := MustIndex(keep, append([]string{TagLink}, tags...)...)
		return SVDResult{
			U:         realMatTensor(uRe, append(slices.Clone(rowLegs), bond)),
			S:         slices.Clone(s[:keep]),
			Vh:        realMatTensor(vhRe, append([]Index{bond}, cLegs...)),
			Bond:      bond,
			Discarded: disc,
		}, nil
	}

	zu, s, zv := zSVD(zmat{r: m, c: n, d: w.cx})
	keep, disc := truncRank(s, opts.MaxDim, opts.Tol)
	uCx := make([]complex128, m*keep)
	for r := 0; r < m; r++ {
		for c := 0; c < keep; c++ {
			uCx[r*keep+c] = zu.at(r, c)
		}
	}
	vhCx := make([]complex128, keep*n)
	zvh := zAdjoint(zv)
	for r := 0; r < keep; r++ {
		for c := 0; c < n; c++ {
			vhCx[r*n+c] = zvh.at(r, c)
		}
	}
	bond := MustIndex(keep, append([]string{TagLink}, tags...)...)
	return SVDResult{
		U:         cxMatTensor(uCx, append(slices.Clone(rowLegs), bond)),
		S:         slices.Clone(s[:keep]),
		Vh:        cxMatTensor(vhCx, append([]Index{bond}, cLegs...)),
		Bond:      bond,
		Discarded: disc,
	}, nil
}

// ScaleRows returns t with row r of the matricization against the
// first leg scaled by s[r]. It is how the singular weight is absorbed
// into Vh after an SVD.
func ScaleRows(t *Dense, s []float64) *Dense {
	out := t.Clone()
	first := out.legs[0].Dim()
	if first != len(s) {
		panic(errors.Wrapf(ErrShapeMismatch, "%d rows, %d scales", first, len(s)))
	}
	stride := out.Size() / first
	for r := 0; r < first; r++ {
		for c := 0; c < stride; c++ {
			if out.kind == Real {
				out.re[r*stride+c] *= s[r]
			} else {
				out.cx[r*stride+c] *= complex(s[r], 0)
			}
		}
	}
	return out
}

// truncRank returns the kept rank under the (MaxDim, Tol) budget and
// the relative squared discarded weight.
func truncRank(s []float64, maxDim int, tol float64) (int, float64) {
	var total float64
	for _, v := range s {
		total += v * v
	}
	keep := len(s)
	// Exact zeros carry no weight.
	for keep > 1 && s[keep-1] == 0 {
		keep--
	}
	if total > 0 && tol > 0 {
		var tail float64
		for keep > 1 {
			w := s[keep-1] * s[keep-1]
			if tail+w > tol*total {
				break
			}
			tail += w
			keep--
		}
	}
	if maxDim > 0 && keep > maxDim {
		keep = maxDim
	}
	if keep < 1 {
		keep = 1
	}
	var disc float64
	for _, v := range s[keep:] {
		disc += v * v
	}
	if total > 0 {
		disc /= total
	}
	return keep, disc
}

func mustComplex(t *Dense) []complex128 {
	if t.kind == Complex {
		return t.cx
	}
	cx := make([]complex128, len(t.re))
	for i, v := range t.re {
		cx[i] = complex(v, 0)
	}
	return cx
}

func realMatTensor(data []float64, legs []Index) *Dense {
	return &Dense{legs: legs, kind: Real, re: data}
}

func cxMatTensor(data []complex128, legs []Index) *Dense {
	return &Dense{legs: legs, kind: Complex, cx: data}
}

func realPartTensor(data []complex128, legs []Index) *Dense {
	re := make([]float64, len(data))
	for i, v := range data {
		re[i] = real(v)
	}
	return &Dense{legs: legs, kind: Real, re: re}
}

// denseSlice copies the top-left r×c block of m into a row-major slice.
func denseSlice(m *gmat.Dense, r, c int) []float64 {
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = m.At(i, j)
		}
	}
	return out
}

func zTranspose(a zmat) zmat {
	out := newZmat(a.c, a.r)
	for i := 0; i < a.r; i++ {
		for j := 0; j < a.c; j++ {
			out.set(j, i, a.at(i, j))
		}
	}
	return out
}
