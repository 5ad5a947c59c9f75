// Package tci implements tensor cross interpolation: building a
// tensor-train approximation of a black-box function over a product
// index domain from a small, adaptively chosen set of samples.
//
// The algorithm alternates two-site sweeps over the bonds of the
// train. At each bond it evaluates the function on the cross of the
// current pivot sets and runs a fully pivoted rank-revealing
// elimination to pick the new pivots, so the sampled slices interpolate
// the function exactly at the pivots and the elimination residual
// bounds the local error.
//
// References:
//   - Learning Feynman diagrams with tensor trains, Nunez Fernandez, Jeannin, Dumitrescu, Kloss, Kaye, Waintal
package tci

import (
	"math"
	"runtime"
	"slices"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/tensor4all/tensornet/tensor"
)

// Options tune a cross interpolation run. The zero value asks for the
// default tolerance with unbounded rank.
type Options struct {
	// Tol is the target error relative to the largest sampled value;
	// 0 means 1e-12.
	Tol float64
	// MaxRank caps every bond rank; 0 means no cap.
	MaxRank int
	// MaxSweeps caps the number of full sweeps; 0 means 8.
	MaxSweeps int
	// Workers bounds concurrent function evaluations; 0 means
	// GOMAXPROCS.
	Workers int
}

// Report describes how a cross interpolation run ended. The train is
// returned alongside the report even when the tolerance was not met,
// so callers can inspect the achieved error.
type Report struct {
	// Err is the estimated relative error of the final train.
	Err float64
	// Converged reports whether Err reached the tolerance.
	Converged bool
	// Stagnated reports that sweeping stopped improving the error
	// with rank budget to spare.
	Stagnated bool
	// Evals is the number of distinct function evaluations.
	Evals int
	// Sweeps is the number of sweeps run.
	Sweeps int
}

const (
	defaultTol    = 1e-12
	defaultSweeps = 8
)

// Build approximates f over the product domain given by localDims.
// f must be pure: it is called concurrently and its results are
// memoized. The coordinate slice passed to f is reused between calls
// and must not be retained.
func Build(f func([]int) float64, localDims []int, opts Options) (*TT, Report, error) {
	if len(localDims) == 0 {
		return nil, Report{}, errors.New("no dimensions")
	}
	for _, d := range localDims {
		if d <= 0 {
			return nil, Report{}, errors.Wrapf(tensor.ErrInvalidDimension, "%d", d)
		}
	}
	if opts.MaxRank < 0 || opts.Tol < 0 {
		return nil, Report{}, errors.Errorf("maxrank %d tol %g", opts.MaxRank, opts.Tol)
	}

	b := &builder{
		f:     f,
		dims:  localDims,
		opts:  opts,
		cache: make(map[string]float64),
	}
	tol := opts.Tol
	if tol == 0 {
		tol = defaultTol
	}
	b.workers = opts.Workers
	if b.workers == 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	maxSweeps := opts.MaxSweeps
	if maxSweeps == 0 {
		maxSweeps = defaultSweeps
	}

	// Start from a single pivot at the origin of every bond.
	n := len(localDims)
	b.rowPivots = make([][][]int, n)
	b.colPivots = make([][][]int, n)
	for k := range n {
		b.rowPivots[k] = [][]int{make([]int, k)}
		b.colPivots[k] = [][]int{make([]int, n-1-k)}
	}

	var rep Report
	if n == 1 {
		core := make([]float64, localDims[0])
		for s := range localDims[0] {
			core[s] = b.eval([]int{s}, nil)
		}
		rep = Report{Converged: true, Evals: b.evals, Sweeps: 0}
		return &TT{dims: slices.Clone(localDims), cores: [][]float64{core}}, rep, nil
	}

	prevErr := math.Inf(1)
	stagnated := false
	for sweep := 1; sweep <= maxSweeps; sweep++ {
		rep.Sweeps = sweep
		var sweepErr float64
		changed := false
		for _, k := range sweepOrder(n) {
			e, ch := b.updateBond(k, tol)
			sweepErr = math.Max(sweepErr, e)
			changed = changed || ch
		}
		rep.Err = sweepErr
		if sweepErr <= tol {
			rep.Converged = true
			break
		}
		if !changed && sweepErr >= prevErr*(1-1e-12) {
			stagnated = !b.rankCapped()
			break
		}
		prevErr = sweepErr
	}
	rep.Stagnated = stagnated

	tt, err := b.buildTT()
	if err != nil {
		return nil, rep, err
	}
	rep.Evals = b.evals
	if stagnated {
		return tt, rep, errors.Wrapf(ErrStagnation, "err %g above tol %g", rep.Err, tol)
	}
	return tt, rep, nil
}

type builder struct {
	f       func([]int) float64
	dims    []int
	opts    Options
	workers int

	// rowPivots[k] holds multi-indices over sites 0..k-1; colPivots[k]
	// over sites k+1..n-1. Bond k keeps len(rowPivots[k+1]) ==
	// len(colPivots[k]) pivots.
	rowPivots [][][]int
	colPivots [][][]int

	mu    sync.Mutex
	cache map[string]float64
	evals int
}

// sweepOrder visits every bond forward then backward.
func sweepOrder(n int) []int {
	order := make([]int, 0, 2*(n-1))
	for k := 0; k <= n-2; k++ {
		order = append(order, k)
	}
	for k := n - 2; k >= 0; k-- {
		order = append(order, k)
	}
	return order
}

// updateBond re-selects the pivots of bond k from the cross of the
// neighboring pivot sets. It returns the relative residual left at the
// bond and whether the pivot sets changed.
func (b *builder) updateBond(k int, tol float64) (float64, bool) {
	rows := crossPrefix(b.rowPivots[k], b.dims[k])
	cols := crossSuffix(b.dims[k+1], b.colPivots[k+1])
	pi := b.evalMatrix(rows, cols)
	pr, pc, relErr := rrlu(pi, len(rows), len(cols), tol, b.opts.MaxRank)
	if len(pr) == 0 {
		// A zero block: keep the current pivots.
		return 0, false
	}

	newRows := make([][]int, len(pr))
	for i, p := range pr {
		newRows[i] = rows[p]
	}
	newCols := make([][]int, len(pc))
	for i, q := range pc {
		newCols[i] = cols[q]
	}
	changed := !pivotsEqual(b.rowPivots[k+1], newRows) || !pivotsEqual(b.colPivots[k], newCols)
	b.rowPivots[k+1] = newRows
	b.colPivots[k] = newCols
	return relErr, changed
}

func (b *builder) rankCapped() bool {
	if b.opts.MaxRank == 0 {
		return false
	}
	for k := 0; k+1 < len(b.dims); k++ {
		if len(b.colPivots[k]) == b.opts.MaxRank {
			return true
		}
	}
	return false
}

// buildTT materializes the train from the final pivot sets: core k is
// the sampled slice f(rowPivots[k], s, colPivots[k]) with the inverse
// pivot cross matrix of bond k folded in.
func (b *builder) buildTT() (*TT, error) {
	n := len(b.dims)
	tt := &TT{
		dims:  slices.Clone(b.dims),
		ranks: make([]int, n-1),
		cores: make([][]float64, n),
	}
	for k := range n - 1 {
		tt.ranks[k] = len(b.colPivots[k])
	}

	for k := range n {
		rl, d, rr := len(b.rowPivots[k]), b.dims[k], len(b.colPivots[k])
		tk := b.evalMatrix(crossPrefix(b.rowPivots[k], d), b.colPivots[k])
		if k == n-1 {
			tt.cores[k] = tk
			continue
		}

		pk := b.evalMatrix(b.rowPivots[k+1], b.colPivots[k])
		if maxAbs(pk) == 0 {
			tt.cores[k] = make([]float64, rl*d*rr)
			continue
		}
		var lu mat.LU
		lu.Factorize(mat.NewDense(rr, rr, pk))
		// core = T P^{-1}, computed as the transposed solve
		// P^T X = T^T.
		var xt mat.Dense
		if err := lu.SolveTo(&xt, true, mat.NewDense(rl*d, rr, tk).T()); err != nil {
			return nil, errors.Wrapf(err, "bond %d pivot matrix", k)
		}
		core := make([]float64, rl*d*rr)
		for i := range rl * d {
			for c := range rr {
				core[i*rr+c] = xt.At(c, i)
			}
		}
		tt.cores[k] = core
	}
	return tt, nil
}

// evalMatrix samples f on the cross of the given prefix rows and
// suffix columns, fanning the rows out across workers.
func (b *builder) evalMatrix(rows, cols [][]int) []float64 {
	out := make([]float64, len(rows)*len(cols))
	g := &errgroup.Group{}
	g.SetLimit(b.workers)
	for r := range rows {
		g.Go(func() error {
			for c := range cols {
				out[r*len(cols)+c] = b.eval(rows[r], cols[c])
			}
			return nil
		})
	}
	// The workers only sample f and cannot fail.
	_ = g.Wait()
	return out
}

func (b *builder) eval(prefix, suffix []int) float64 {
	coords := make([]int, 0, len(b.dims))
	coords = append(coords, prefix...)
	coords = append(coords, suffix...)
	key := ckey(coords)

	b.mu.Lock()
	if v, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return v
	}
	b.mu.Unlock()

	v := b.f(coords)

	b.mu.Lock()
	if _, ok := b.cache[key]; !ok {
		b.cache[key] = v
		b.evals++
	}
	b.mu.Unlock()
	return v
}

func ckey(coords []int) string {
	buf := make([]byte, 0, 4*len(coords))
	for _, c := range coords {
		buf = strconv.AppendInt(buf, int64(c), 10)
		buf = append(buf, ',')
	}
	return string(buf)
}

func crossPrefix(prefixes [][]int, d int) [][]int {
	out := make([][]int, 0, len(prefixes)*d)
	for _, p := range prefixes {
		for s := range d {
			row := make([]int, 0, len(p)+1)
			row = append(row, p...)
			row = append(row, s)
			out = append(out, row)
		}
	}
	return out
}

func crossSuffix(d int, suffixes [][]int) [][]int {
	out := make([][]int, 0, d*len(suffixes))
	for s := range d {
		for _, q := range suffixes {
			col := make([]int, 0, len(q)+1)
			col = append(col, s)
			col = append(col, q...)
			out = append(out, col)
		}
	}
	return out
}

func pivotsEqual(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !slices.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func maxAbs(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	return m
}
