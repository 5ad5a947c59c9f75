package network

import (
	"errors"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/tensor4all/tensornet/tensor"
)

// randProduct builds a random operator and state over shared site
// indices, so their contraction is well defined at every vertex.
func randProduct(t *testing.T, rng *rand.Rand, kind tensor.Kind, n, siteDim, bondDim int) (op, state *Network, out []tensor.Index) {
	t.Helper()
	in := make([]tensor.Index, n)
	out = make([]tensor.Index, n)
	for i := range n {
		in[i] = tensor.MustIndex(siteDim, TagSite)
		out[i] = tensor.MustIndex(siteDim, TagSite)
	}
	obonds := make([]tensor.Index, n-1)
	sbonds := make([]tensor.Index, n-1)
	for i := range n - 1 {
		obonds[i] = tensor.MustIndex(bondDim, tensor.TagLink)
		sbonds[i] = tensor.MustIndex(bondDim, tensor.TagLink)
	}

	opT := make([]*tensor.Dense, n)
	stateT := make([]*tensor.Dense, n)
	for i := range n {
		olegs := []tensor.Index{in[i], out[i]}
		slegs := []tensor.Index{in[i]}
		if i > 0 {
			olegs = append(olegs, obonds[i-1])
			slegs = append(slegs, sbonds[i-1])
		}
		if i < n-1 {
			olegs = append(olegs, obonds[i])
			slegs = append(slegs, sbonds[i])
		}
		opT[i] = tensor.MustRand(rng, kind, olegs...)
		stateT[i] = tensor.MustRand(rng, kind, slegs...)
	}

	op, err := NewMPS(opT)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	state, err = NewMPS(stateT)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return op, state, out
}

// denseProduct contracts the two networks exactly into one tensor
// ordered by the free site indices.
func denseProduct(t *testing.T, op, state *Network, out []tensor.Index) *tensor.Dense {
	t.Helper()
	all := append(op.Collect(), state.Collect()...)
	full, err := tensor.ContractAll(all...)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	full, err = full.Reorder(out...)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return full
}

func TestContract(t *testing.T) {
	t.Parallel()
	coords := [][]int{{0, 0, 0, 0}, {1, 1, 1, 1}, {0, 1, 1, 0}, {1, 0, 1, 0}, {0, 0, 1, 1}}
	for _, test := range []struct {
		name   string
		kind   tensor.Kind
		method Method
		opts   ContractOptions
	}{
		{"naive real", tensor.Real, Naive, ContractOptions{}},
		{"naive complex", tensor.Complex, Naive, ContractOptions{}},
		{"zipup real", tensor.Real, Zipup, ContractOptions{}},
		{"zipup complex", tensor.Complex, Zipup, ContractOptions{}},
		{"fit real", tensor.Real, Fit, ContractOptions{}},
		{"fit complex", tensor.Complex, Fit, ContractOptions{}},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			rng := rand.New(rand.NewPCG(41, 42))
			op, state, out := randProduct(t, rng, test.kind, 4, 2, 2)
			want := denseProduct(t, op, state, out)

			got, err := Contract(op, state, test.method, test.opts)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if got.Len() != 4 {
				t.Fatalf("%d, expected %d", got.Len(), 4)
			}
			scale := want.Norm()
			for _, c := range coords {
				g, err := got.Evaluate(c...)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if w := want.At(c...); cmplx.Abs(g-w) > 1e-8*scale {
					t.Fatalf("%v, expected %v", g, w)
				}
			}
		})
	}
}

func TestContractNaiveBondDims(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(43, 44))
	op, state, _ := randProduct(t, rng, tensor.Real, 3, 2, 3)
	got, err := Contract(op, state, Naive, ContractOptions{})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// Bond dimensions multiply under the exact product.
	for _, d := range got.BondDims() {
		if d != 9 {
			t.Fatalf("%v, expected all %d", got.BondDims(), 9)
		}
	}
}

func TestContractZipupCapped(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(45, 46))
	op, state, _ := randProduct(t, rng, tensor.Real, 4, 2, 3)
	got, err := Contract(op, state, Zipup, ContractOptions{MaxDim: 2})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for _, d := range got.BondDims() {
		if d > 2 {
			t.Fatalf("%v, expected dims at most %d", got.BondDims(), 2)
		}
	}
}

// At a binding budget, the variational sweep must not do worse than
// the single zip-up pass it starts from.
func TestContractFitBeatsZipup(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(47, 48))
	op, state, out := randProduct(t, rng, tensor.Real, 5, 2, 3)
	want := denseProduct(t, op, state, out)
	opts := ContractOptions{MaxDim: 2}

	zip, err := Contract(op, state, Zipup, opts)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	fit, err := Contract(op, state, Fit, opts)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for _, d := range fit.BondDims() {
		if d > 2 {
			t.Fatalf("%v, expected dims at most %d", fit.BondDims(), 2)
		}
	}

	zipErr := productError(t, zip, want, out)
	fitErr := productError(t, fit, want, out)
	if fitErr > zipErr+1e-12 {
		t.Fatalf("fit error %v, expected at most zipup error %v", fitErr, zipErr)
	}
}

func productError(t *testing.T, n *Network, want *tensor.Dense, out []tensor.Index) float64 {
	t.Helper()
	dense, err := n.ToDense()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	diff, err := tensor.Add(dense, want.Scale(-1))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return diff.Norm() / want.Norm()
}

func TestContractErrors(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(49, 50))

	a, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := RandomMPS(rng, tensor.Real, []int{2, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// Length mismatch.
	if _, err := Contract(a, b, Naive, ContractOptions{}); !errors.Is(err, ErrIncompatibleTopology) {
		t.Fatalf("%v, expected %v", err, ErrIncompatibleTopology)
	}

	// Disjoint site indices.
	c, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := Contract(a, c, Naive, ContractOptions{}); !errors.Is(err, ErrIncompatibleTopology) {
		t.Fatalf("%v, expected %v", err, ErrIncompatibleTopology)
	}

	// A network sharing bonds with itself.
	if _, err := Contract(a, a, Naive, ContractOptions{}); !errors.Is(err, ErrIncompatibleTopology) {
		t.Fatalf("%v, expected %v", err, ErrIncompatibleTopology)
	}
}
