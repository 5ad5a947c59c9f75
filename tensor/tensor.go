package tensor

import (
	"fmt"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/floats"
)

// Kind is the storage kind of a tensor.
type Kind int

const (
	Real Kind = iota
	Complex
)

func (k Kind) String() string {
	switch k {
	case Real:
		return "real"
	case Complex:
		return "complex"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Dense is a dense tensor whose legs are labeled by Indices.
// Storage is row-major: the last leg varies fastest.
// Elements are float64 for Real kind and complex128 for Complex kind.
type Dense struct {
	legs []Index
	kind Kind
	re   []float64
	cx   []complex128
}

// Zeros creates a zero-filled tensor over legs.
func Zeros(kind Kind, legs ...Index) (*Dense, error) {
	if err := checkLegs(legs); err != nil {
		return nil, err
	}
	t := &Dense{legs: slices.Clone(legs), kind: kind}
	n := size(legs)
	switch kind {
	case Real:
		t.re = make([]float64, n)
	default:
		t.cx = make([]complex128, n)
	}
	return t, nil
}

// FromReal creates a Real tensor over legs holding data in row-major
// leg order. data is copied.
func FromReal(data []float64, legs ...Index) (*Dense, error) {
	if err := checkLegs(legs); err != nil {
		return nil, err
	}
	if len(data) != size(legs) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d %d", len(data), size(legs))
	}
	return &Dense{legs: slices.Clone(legs), kind: Real, re: slices.Clone(data)}, nil
}

// FromComplex creates a Complex tensor over legs holding data in
// row-major leg order. data is copied.
func FromComplex(data []complex128, legs ...Index) (*Dense, error) {
	if err := checkLegs(legs); err != nil {
		return nil, err
	}
	if len(data) != size(legs) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d %d", len(data), size(legs))
	}
	return &Dense{legs: slices.Clone(legs), kind: Complex, cx: slices.Clone(data)}, nil
}

// Assignment fixes one leg of a one-hot tensor to a 0-based position.
type Assignment struct {
	Index Index
	Pos   int
}

// OneHot creates a Real tensor whose legs are the assignment Indices in
// the order given, with a single entry of value 1 at the assigned
// coordinate and 0 everywhere else.
func OneHot(assignments ...Assignment) (*Dense, error) {
	legs := make([]Index, 0, len(assignments))
	coords := make([]int, 0, len(assignments))
	for _, a := range assignments {
		if a.Pos < 0 || a.Pos >= a.Index.Dim() {
			return nil, errors.Wrapf(ErrShapeMismatch, "position %d out of range for %v", a.Pos, a.Index)
		}
		legs = append(legs, a.Index)
		coords = append(coords, a.Pos)
	}
	t, err := Zeros(Real, legs...)
	if err != nil {
		return nil, err
	}
	t.re[t.offset(coords)] = 1
	return t, nil
}

// Rand creates a tensor with entries drawn uniformly from [-1, 1)
// (independently for real and imaginary parts in the Complex case).
func Rand(rng *rand.Rand, kind Kind, legs ...Index) (*Dense, error) {
	t, err := Zeros(kind, legs...)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Real:
		for i := range t.re {
			t.re[i] = rng.Float64()*2 - 1
		}
	default:
		for i := range t.cx {
			t.cx[i] = complex(rng.Float64()*2-1, rng.Float64()*2-1)
		}
	}
	return t, nil
}

// MustRand is Rand that panics on error.
func MustRand(rng *rand.Rand, kind Kind, legs ...Index) *Dense {
	t, err := Rand(rng, kind, legs...)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return t
}

// Rank returns the number of legs.
func (t *Dense) Rank() int { return len(t.legs) }

// Dims returns the leg dimensions in leg order.
func (t *Dense) Dims() []int {
	dims := make([]int, len(t.legs))
	for i, l := range t.legs {
		dims[i] = l.Dim()
	}
	return dims
}

// Kind returns the storage kind.
func (t *Dense) Kind() Kind { return t.kind }

// Indices returns a copy of the legs in order.
func (t *Dense) Indices() []Index { return slices.Clone(t.legs) }

// HasIndex reports whether ix is a leg of t.
func (t *Dense) HasIndex(ix Index) bool { return indexPos(t.legs, ix) >= 0 }

// Size returns the number of stored elements.
func (t *Dense) Size() int { return size(t.legs) }

// At returns the element at the given coordinate, in leg order.
func (t *Dense) At(coords ...int) complex128 {
	off := t.offset(coords)
	if t.kind == Real {
		return complex(t.re[off], 0)
	}
	return t.cx[off]
}

// Set stores v at the given coordinate. Storing a value with a nonzero
// imaginary part into a Real tensor promotes the tensor to Complex.
func (t *Dense) Set(v complex128, coords ...int) {
	if t.kind == Real && imag(v) != 0 {
		t.promote()
	}
	off := t.offset(coords)
	if t.kind == Real {
		t.re[off] = real(v)
		return
	}
	t.cx[off] = v
}

// Reorder returns a tensor equal to t whose legs appear in the given
// order. order must be a permutation of t's legs.
func (t *Dense) Reorder(order ...Index) (*Dense, error) {
	perm, err := t.permutation(order)
	if err != nil {
		return nil, err
	}
	out := &Dense{legs: slices.Clone(order), kind: t.kind}
	dims := t.Dims()
	switch t.kind {
	case Real:
		out.re = make([]float64, len(t.re))
		permute(out.re, t.re, dims, perm)
	default:
		out.cx = make([]complex128, len(t.cx))
		permute(out.cx, t.cx, dims, perm)
	}
	return out, nil
}

// ToReal materializes the data of a Real tensor in the requested leg
// order. An empty order means t's own leg order.
func (t *Dense) ToReal(order ...Index) ([]float64, error) {
	if t.kind != Real {
		return nil, errors.Errorf("complex storage")
	}
	if len(order) == 0 {
		return slices.Clone(t.re), nil
	}
	r, err := t.Reorder(order...)
	if err != nil {
		return nil, err
	}
	return r.re, nil
}

// ToComplex materializes the data in the requested leg order,
// promoting Real storage. An empty order means t's own leg order.
func (t *Dense) ToComplex(order ...Index) ([]complex128, error) {
	var r *Dense
	if len(order) == 0 {
		r = t
	} else {
		var err error
		if r, err = t.Reorder(order...); err != nil {
			return nil, err
		}
	}
	if r.kind == Complex {
		return slices.Clone(r.cx), nil
	}
	cx := make([]complex128, len(r.re))
	for i, v := range r.re {
		cx[i] = complex(v, 0)
	}
	return cx, nil
}

// Conj returns the elementwise complex conjugate of t.
func (t *Dense) Conj() *Dense {
	out := t.Clone()
	for i := range out.cx {
		out.cx[i] = cmplx.Conj(out.cx[i])
	}
	return out
}

// Scale returns c*t. The result is Complex unless t is Real and c has
// no imaginary part.
func (t *Dense) Scale(c complex128) *Dense {
	out := t.Clone()
	if out.kind == Real && imag(c) != 0 {
		out.promote()
	}
	switch out.kind {
	case Real:
		floats.Scale(real(c), out.re)
	default:
		cblas128.Scal(c, cblas128.Vector{N: len(out.cx), Inc: 1, Data: out.cx})
	}
	return out
}

// Add returns a + b. The tensors must have the same leg set; b is
// aligned to a's leg order.
func Add(a, b *Dense) (*Dense, error) {
	if len(a.legs) != len(b.legs) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d %d legs", len(a.legs), len(b.legs))
	}
	ba, err := b.Reorder(a.legs...)
	if err != nil {
		return nil, err
	}
	out := a.Clone()
	if out.kind == Real && ba.kind == Complex {
		out.promote()
	}
	switch {
	case out.kind == Real:
		floats.Add(out.re, ba.re)
	case ba.kind == Real:
		for i, v := range ba.re {
			out.cx[i] += complex(v, 0)
		}
	default:
		cblas128.Axpy(1, cblas128.Vector{N: len(ba.cx), Inc: 1, Data: ba.cx},
			cblas128.Vector{N: len(out.cx), Inc: 1, Data: out.cx})
	}
	return out, nil
}

// Norm returns the Frobenius norm of t.
func (t *Dense) Norm() float64 {
	if t.kind == Real {
		return floats.Norm(t.re, 2)
	}
	return cblas128.Nrm2(cblas128.Vector{N: len(t.cx), Inc: 1, Data: t.cx})
}

// ReplaceIndex returns t with leg old relabeled as new. Dimensions
// must match; data is shared semantics-free, so the buffer is reused.
func (t *Dense) ReplaceIndex(old, new Index) (*Dense, error) {
	pos := indexPos(t.legs, old)
	if pos < 0 {
		return nil, errors.Wrapf(ErrUnknownIndex, "%v", old)
	}
	if old.Dim() != new.Dim() {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d %d", old.Dim(), new.Dim())
	}
	out := &Dense{legs: slices.Clone(t.legs), kind: t.kind, re: t.re, cx: t.cx}
	out.legs[pos] = new
	if indexPos(out.legs, new) != pos {
		return nil, errors.Wrapf(ErrDuplicateLeg, "%v", new)
	}
	return out, nil
}

// Fuse returns t with the group legs replaced by the single leg fused,
// whose dimension must equal the product of the group dimensions. The
// fused leg takes the first position; remaining legs keep their order.
// The group coordinate maps to the fused coordinate in row-major group
// order, so fusing the same group in the same order on two tensors
// yields compatible fused legs.
func (t *Dense) Fuse(fused Index, group ...Index) (*Dense, error) {
	prod := 1
	rest := make([]Index, 0, len(t.legs))
	for _, g := range group {
		if indexPos(t.legs, g) < 0 {
			return nil, errors.Wrapf(ErrUnknownIndex, "%v", g)
		}
		prod *= g.Dim()
	}
	if prod != fused.Dim() {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d %d", prod, fused.Dim())
	}
	for _, l := range t.legs {
		if indexPos(group, l) < 0 {
			rest = append(rest, l)
		}
	}
	if len(rest)+len(group) != len(t.legs) {
		return nil, errors.Wrapf(ErrDuplicateLeg, "%v", group)
	}
	r, err := t.Reorder(append(slices.Clone(group), rest...)...)
	if err != nil {
		return nil, err
	}
	r.legs = append([]Index{fused}, rest...)
	return r, nil
}

// Clone returns a deep copy of t.
func (t *Dense) Clone() *Dense {
	return &Dense{legs: slices.Clone(t.legs), kind: t.kind, re: slices.Clone(t.re), cx: slices.Clone(t.cx)}
}

func (t *Dense) String() string {
	return fmt.Sprintf("Dense(%v %v)", t.kind, t.legs)
}

func (t *Dense) promote() {
	if t.kind == Complex {
		return
	}
	t.cx = make([]complex128, len(t.re))
	for i, v := range t.re {
		t.cx[i] = complex(v, 0)
	}
	t.re = nil
	t.kind = Complex
}

func (t *Dense) offset(coords []int) int {
	if len(coords) != len(t.legs) {
		panic(fmt.Sprintf("%d coords, rank %d", len(coords), len(t.legs)))
	}
	off := 0
	for i, c := range coords {
		d := t.legs[i].Dim()
		if c < 0 || c >= d {
			panic(fmt.Sprintf("coord %d out of range [0, %d)", c, d))
		}
		off = off*d + c
	}
	return off
}

// permutation returns perm such that order[k] == t.legs[perm[k]].
func (t *Dense) permutation(order []Index) ([]int, error) {
	if len(order) != len(t.legs) {
		return nil, errors.Wrapf(ErrUnknownIndex, "%d legs in order, rank %d", len(order), len(t.legs))
	}
	perm := make([]int, len(order))
	seen := make(map[uint64]bool, len(order))
	for k, ix := range order {
		p := indexPos(t.legs, ix)
		if p < 0 {
			return nil, errors.Wrapf(ErrUnknownIndex, "%v", ix)
		}
		if seen[ix.ID()] {
			return nil, errors.Wrapf(ErrDuplicateLeg, "%v", ix)
		}
		seen[ix.ID()] = true
		perm[k] = p
	}
	return perm, nil
}

func checkLegs(legs []Index) error {
	seen := make(map[uint64]bool, len(legs))
	for _, l := range legs {
		if l.Dim() <= 0 {
			return errors.Wrapf(ErrInvalidDimension, "%v", l)
		}
		if seen[l.ID()] {
			return errors.Wrapf(ErrDuplicateLeg, "%v", l)
		}
		seen[l.ID()] = true
	}
	return nil
}

func size(legs []Index) int {
	n := 1
	for _, l := range legs {
		n *= l.Dim()
	}
	return n
}

// permute copies src into dst with axes permuted such that
// dst axis k corresponds to src axis perm[k]. Both are row-major.
func permute[T float64 | complex128](dst, src []T, srcDims []int, perm []int) {
	n := len(srcDims)
	if n == 0 {
		copy(dst, src)
		return
	}
	srcStride := make([]int, n)
	s := 1
	for i := n - 1; i >= 0; i-- {
		srcStride[i] = s
		s *= srcDims[i]
	}
	dstDims := make([]int, n)
	step := make([]int, n)
	for k := range n {
		dstDims[k] = srcDims[perm[k]]
		step[k] = srcStride[perm[k]]
	}
	coord := make([]int, n)
	si := 0
	for di := range dst {
		dst[di] = src[si]
		for k := n - 1; k >= 0; k-- {
			coord[k]++
			si += step[k]
			if coord[k] < dstDims[k] {
				break
			}
			coord[k] = 0
			si -= step[k] * dstDims[k]
		}
	}
}
