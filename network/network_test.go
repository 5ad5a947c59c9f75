package network

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/tensor4all/tensornet/tensor"
)

func TestNew(t *testing.T) {
	t.Parallel()
	s0 := tensor.MustIndex(2, TagSite)
	s1 := tensor.MustIndex(3, TagSite)
	s2 := tensor.MustIndex(2, TagSite)
	b0 := tensor.MustIndex(4, tensor.TagLink)
	b1 := tensor.MustIndex(5, tensor.TagLink)
	rng := rand.New(rand.NewPCG(1, 2))

	t0 := tensor.MustRand(rng, tensor.Real, s0, b0)
	t1 := tensor.MustRand(rng, tensor.Real, b0, s1, b1)
	t2 := tensor.MustRand(rng, tensor.Real, b1, s2)
	n, err := New([]*tensor.Dense{t0, t1, t2})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if n.Len() != 3 {
		t.Fatalf("%d, expected %d", n.Len(), 3)
	}
	if n.EdgeCount() != 2 {
		t.Fatalf("%d, expected %d", n.EdgeCount(), 2)
	}
	if !n.IsPath() {
		t.Fatalf("expected path")
	}
	if d := n.BondDim(0, 1); d != 4 {
		t.Fatalf("%d, expected %d", d, 4)
	}
	if d := n.BondDim(1, 2); d != 5 {
		t.Fatalf("%d, expected %d", d, 5)
	}
	if d := n.BondDim(0, 2); d != 0 {
		t.Fatalf("%d, expected %d", d, 0)
	}
	sites := n.SiteIndices()
	if len(sites[1]) != 1 || !sites[1][0].Equal(s1) {
		t.Fatalf("%v, expected %v", sites[1], s1)
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 4))
	s := tensor.MustIndex(2, TagSite)
	b := tensor.MustIndex(3, tensor.TagLink)

	// No tensors.
	if _, err := New(nil); !errors.Is(err, ErrEmptyNetwork) {
		t.Fatalf("%v, expected %v", err, ErrEmptyNetwork)
	}

	// An index held by three tensors.
	t0 := tensor.MustRand(rng, tensor.Real, b)
	t1 := tensor.MustRand(rng, tensor.Real, b)
	t2 := tensor.MustRand(rng, tensor.Real, b)
	if _, err := New([]*tensor.Dense{t0, t1, t2}); !errors.Is(err, ErrDisconnectedNetwork) {
		t.Fatalf("%v, expected %v", err, ErrDisconnectedNetwork)
	}

	// Two components.
	u0 := tensor.MustRand(rng, tensor.Real, s)
	u1 := tensor.MustRand(rng, tensor.Real, s.Sim())
	if _, err := New([]*tensor.Dense{u0, u1}); !errors.Is(err, ErrDisconnectedNetwork) {
		t.Fatalf("%v, expected %v", err, ErrDisconnectedNetwork)
	}
}

func TestRandomMPS(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))
	n, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2, 2, 2}, 3)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	dims := n.BondDims()
	expected := []int{2, 3, 3, 2}
	for i := range dims {
		if dims[i] != expected[i] {
			t.Fatalf("%v, expected %v", dims, expected)
		}
	}
	if n.MaxBondDim() != 3 {
		t.Fatalf("%d, expected %d", n.MaxBondDim(), 3)
	}
	if n.Form() != FormNone || n.Center() != -1 {
		t.Fatalf("%v %d, expected no canonical form", n.Form(), n.Center())
	}
}

func TestInner(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 8))
	n, err := RandomMPS(rng, tensor.Complex, []int{2, 3, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	ip, err := Inner(n, n)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	dense, err := n.ToDense()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	nrm := dense.Norm()
	if math.Abs(real(ip)-nrm*nrm) > 1e-10*nrm*nrm {
		t.Fatalf("%v, expected %v", real(ip), nrm*nrm)
	}
	if math.Abs(imag(ip)) > 1e-10*nrm*nrm {
		t.Fatalf("%v, expected real", ip)
	}

	got, err := n.Norm()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(got-nrm) > 1e-10*nrm {
		t.Fatalf("%v, expected %v", got, nrm)
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(9, 10))
	n, err := RandomMPS(rng, tensor.Complex, []int{2, 3, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	dense, err := n.ToDense()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	var sites []tensor.Index
	for _, s := range n.SiteIndices() {
		sites = append(sites, s[0])
	}
	dense, err = dense.Reorder(sites...)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	for _, coords := range [][]int{{0, 0, 0}, {1, 2, 1}, {0, 1, 1}, {1, 0, 0}} {
		got, err := n.Evaluate(coords...)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		expected := dense.At(coords...)
		if cmplx.Abs(got-expected) > 1e-12 {
			t.Fatalf("%v, expected %v", got, expected)
		}
	}
}

func TestClone(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(11, 12))
	n, err := RandomMPS(rng, tensor.Real, []int{2, 2, 2}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	c := n.Clone()

	if err := c.Orthogonalize(1, FormUnitary); err != nil {
		t.Fatalf("%+v", err)
	}
	if n.Form() != FormNone {
		t.Fatalf("%v, expected %v", n.Form(), FormNone)
	}
	if c.Form() != FormUnitary || c.Center() != 1 {
		t.Fatalf("%v %d, expected unitary center 1", c.Form(), c.Center())
	}

	// The clone shares Index identities with the original.
	b0, _ := n.Bond(0, 1)
	c0, _ := c.Bond(0, 1)
	if !b0.Equal(c0) && c.Form() == FormNone {
		t.Fatalf("%v, expected %v", c0, b0)
	}
}
