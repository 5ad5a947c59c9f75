package network

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/tensor4all/tensornet/tensor"
)

func TestTruncateRequiresCanonicalForm(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(31, 32))
	n, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := n.Truncate(TruncateOptions{MaxDim: 1}); !errors.Is(err, ErrNotCanonicalized) {
		t.Fatalf("%v, expected %v", err, ErrNotCanonicalized)
	}

	// The LU form does not carry the orthogonality needed for local
	// truncation either.
	if err := n.Orthogonalize(0, FormLU); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := n.Truncate(TruncateOptions{MaxDim: 1}); !errors.Is(err, ErrNotCanonicalized) {
		t.Fatalf("%v, expected %v", err, ErrNotCanonicalized)
	}
}

func TestTruncateBudget(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(33, 34))
	n, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := n.Orthogonalize(0, FormUnitary); err != nil {
		t.Fatalf("%+v", err)
	}
	for _, opts := range []TruncateOptions{
		{},
		{MaxDim: -1},
		{Tol: -0.5},
	} {
		if _, err := n.Truncate(opts); !errors.Is(err, ErrInvalidBudget) {
			t.Fatalf("%v, expected %v", err, ErrInvalidBudget)
		}
	}
}

func TestTruncateLoose(t *testing.T) {
	t.Parallel()
	coords := [][]int{{0, 0, 0, 0}, {1, 1, 1, 1}, {0, 1, 1, 0}, {1, 0, 0, 1}}
	rng := rand.New(rand.NewPCG(35, 36))
	n, err := RandomMPS(rng, tensor.Complex, []int{2, 2, 2, 2}, 4)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := n.Orthogonalize(1, FormUnitary); err != nil {
		t.Fatalf("%+v", err)
	}
	before := evalGrid(t, n, coords)
	dims := n.BondDims()

	// A budget no tighter than the current ranks changes nothing.
	res, err := n.Truncate(TruncateOptions{MaxDim: n.MaxBondDim()})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if res.Err > 1e-12 {
		t.Fatalf("%v, expected %v", res.Err, 0.0)
	}
	after := evalGrid(t, n, coords)
	for i := range before {
		if cmplx.Abs(after[i]-before[i]) > 1e-10 {
			t.Fatalf("%v, expected %v", after[i], before[i])
		}
	}
	got := n.BondDims()
	for i := range dims {
		if got[i] != dims[i] {
			t.Fatalf("%v, expected %v", got, dims)
		}
	}
	if n.Form() != FormUnitary || n.Center() != 1 {
		t.Fatalf("%v %d, expected unitary center 1", n.Form(), n.Center())
	}
}

func TestTruncateTight(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(37, 38))
	n, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2, 2}, 4)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := n.Orthogonalize(0, FormUnitary); err != nil {
		t.Fatalf("%+v", err)
	}

	res, err := n.Truncate(TruncateOptions{MaxDim: 2})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for _, d := range n.BondDims() {
		if d > 2 {
			t.Fatalf("%v, expected dims at most %d", n.BondDims(), 2)
		}
	}
	if len(res.BondErrs) != n.EdgeCount() {
		t.Fatalf("%d, expected %d bond errors", len(res.BondErrs), n.EdgeCount())
	}
	if res.Err < 0 {
		t.Fatalf("%v, expected non-negative", res.Err)
	}
	if n.Center() != 0 {
		t.Fatalf("%d, expected %d", n.Center(), 0)
	}
}

// Truncating under a weight tolerance alone keeps every per-bond
// error within the tolerance, and looser tolerances never keep more.
func TestTruncateTol(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(41, 42))
	orig, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2, 2, 2}, 8)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := orig.Orthogonalize(2, FormUnitary); err != nil {
		t.Fatalf("%+v", err)
	}
	dense, err := orig.ToDense()
	if err != nil {
		t.Fatalf("%+v", err)
	}

	prevErr := 0.0
	for _, tol := range []float64{1e-12, 1e-6, 1e-2, 1e-1} {
		n := orig.Clone()
		res, err := n.Truncate(TruncateOptions{Tol: tol})
		if err != nil {
			t.Fatalf("%+v", err)
		}
		var sumErr float64
		for e, be := range res.BondErrs {
			if be*be > tol {
				t.Fatalf("bond %v weight %g exceeds tol %g", e, be*be, tol)
			}
			sumErr += be
		}
		if res.Err+1e-12 < prevErr {
			t.Fatalf("err %g decreased below %g at tol %g", res.Err, prevErr, tol)
		}
		prevErr = res.Err

		trunc, err := n.ToDense()
		if err != nil {
			t.Fatalf("%+v", err)
		}
		diff, err := tensor.Add(trunc, dense.Scale(-1))
		if err != nil {
			t.Fatalf("%+v", err)
		}
		// Each bond truncation perturbs the state by at most its bond
		// error, so the realized error never exceeds their sum.
		if actual := diff.Norm() / dense.Norm(); actual > sumErr+1e-10 {
			t.Fatalf("%v, expected at most %v at tol %g", actual, sumErr, tol)
		}
	}
}

// For a single bond the reported error is exact: it equals the
// relative norm distance to the truncated tensor.
func TestTruncateErrorExact(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(39, 40))
	n, err := RandomMPS(rng, tensor.Real, []int{3, 3}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := n.Orthogonalize(0, FormUnitary); err != nil {
		t.Fatalf("%+v", err)
	}
	orig, err := n.ToDense()
	if err != nil {
		t.Fatalf("%+v", err)
	}

	res, err := n.Truncate(TruncateOptions{MaxDim: 1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	trunc, err := n.ToDense()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	diff, err := tensor.Add(trunc, orig.Scale(-1))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	actual := diff.Norm() / orig.Norm()
	if math.Abs(actual-res.Err) > 1e-8 {
		t.Fatalf("%v, expected %v", actual, res.Err)
	}
}
