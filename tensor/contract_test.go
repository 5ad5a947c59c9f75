package tensor

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"
)

func TestContractMatmul(t *testing.T) {
	t.Parallel()
	i, j, k := MustIndex(2), MustIndex(3), MustIndex(2)
	a, err := FromReal([]float64{
		1, 2, 3,
		4, 5, 6,
	}, i, j)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := FromReal([]float64{
		7, 8,
		9, 10,
		11, 12,
	}, j, k)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	c, err := Contract(a, b)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := c.Indices(); len(got) != 2 || !got[0].Equal(i) || !got[1].Equal(k) {
		t.Fatalf("%v", got)
	}
	want := [][]float64{
		{58, 64},
		{139, 154},
	}
	for y := range 2 {
		for x := range 2 {
			if got := real(c.At(y, x)); got != want[y][x] {
				t.Fatalf("%v, expected %v at %d %d", got, want[y][x], y, x)
			}
		}
	}
}

func TestContractSharedLegs(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))
	i, j, k, l := MustIndex(2), MustIndex(3), MustIndex(4), MustIndex(5)
	a, err := Rand(rng, Complex, i, j, k)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := Rand(rng, Complex, k, l, j)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// Contract over both shared legs j and k, regardless of leg order.
	c, err := Contract(a, b)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := c.Indices(); len(got) != 2 || !got[0].Equal(i) || !got[1].Equal(l) {
		t.Fatalf("%v", got)
	}
	for ii := range 2 {
		for ll := range 5 {
			var want complex128
			for jj := range 3 {
				for kk := range 4 {
					want += a.At(ii, jj, kk) * b.At(kk, ll, jj)
				}
			}
			if got := c.At(ii, ll); cmplx.Abs(got-want) > 1e-12 {
				t.Fatalf("%v, expected %v at %d %d", got, want, ii, ll)
			}
		}
	}
}

func TestContractOuterAndScalar(t *testing.T) {
	t.Parallel()
	i, j := MustIndex(2), MustIndex(3)
	a, err := FromReal([]float64{1, 2}, i)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := FromReal([]float64{3, 4, 5}, j)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	outer, err := Contract(a, b)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := outer.At(1, 2); got != 10 {
		t.Fatalf("%v, expected 10", got)
	}

	// Full contraction yields a scalar tensor.
	s, err := Contract(a, a.Clone())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if s.Rank() != 0 {
		t.Fatalf("%d, expected rank 0", s.Rank())
	}
	if got := real(s.At()); math.Abs(got-5) > 1e-14 {
		t.Fatalf("%v, expected 5", got)
	}
}
