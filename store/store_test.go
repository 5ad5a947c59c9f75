package store

import (
	"math/cmplx"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensor4all/tensornet/network"
	"github.com/tensor4all/tensornet/tensor"
)

func TestOpenBadFile(t *testing.T) {
	t.Parallel()
	// A fresh sqlite file has none of the container tables.
	path := filepath.Join(t.TempDir(), "empty.db")
	_, err := Open(path)
	require.ErrorIs(t, err, ErrFileFormat)
}

func TestAttrsAndDatasets(t *testing.T) {
	t.Parallel()
	f, err := Create(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Group("a/b"))
	require.NoError(t, f.Group("a/b"))
	ok, err := f.HasGroup("a/b")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.HasGroup("a/c")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.PutAttr("a/b", "name", "hello"))
	v, err := f.Attr("a/b", "name")
	require.NoError(t, err)
	require.Equal(t, "hello", v)
	_, err = f.Attr("a/b", "missing")
	require.ErrorIs(t, err, ErrFileFormat)

	data := []float64{1, 2, 3, 4, 5, 6}
	require.NoError(t, f.PutDataset("a/b", "d", []int{2, 3}, data))
	shape, got, err := f.Dataset("a/b", "d")
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, shape)
	require.Equal(t, data, got)
	_, _, err = f.Dataset("a/b", "missing")
	require.ErrorIs(t, err, ErrFileFormat)

	// Shape and buffer length must agree.
	err = f.PutDataset("a/b", "bad", []int{2, 2}, data)
	require.ErrorIs(t, err, ErrFileFormat)
}

func TestTensorRoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(61, 62))
	for _, kind := range []tensor.Kind{tensor.Real, tensor.Complex} {
		f, err := Create(filepath.Join(t.TempDir(), "t.db"))
		require.NoError(t, err)

		a := tensor.MustIndex(2, "Site", "n=0")
		b := tensor.MustIndex(3, tensor.TagLink)
		orig, err := tensor.Rand(rng, kind, a, b)
		require.NoError(t, err)

		require.NoError(t, SaveTensor(f, "t", orig))
		loaded, err := LoadTensor(f, "t")
		require.NoError(t, err)

		require.Equal(t, orig.Rank(), loaded.Rank())
		require.Equal(t, orig.Dims(), loaded.Dims())
		require.Equal(t, orig.Kind(), loaded.Kind())
		legs := loaded.Indices()
		require.Equal(t, []string{"Site", "n=0"}, legs[0].Tags())
		require.Equal(t, []string{tensor.TagLink}, legs[1].Tags())
		// Ids are reassigned on load.
		require.NotEqual(t, a.ID(), legs[0].ID())

		// The payload encoding is bit-exact.
		for i := range 2 {
			for j := range 3 {
				require.Equal(t, orig.At(i, j), loaded.At(i, j))
			}
		}
		require.NoError(t, f.Close())
	}
}

func TestMPSRoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(63, 64))
	for _, kind := range []tensor.Kind{tensor.Real, tensor.Complex} {
		f, err := Create(filepath.Join(t.TempDir(), "m.db"))
		require.NoError(t, err)

		orig, err := network.RandomMPS(rng, kind, []int{2, 3, 2, 2}, 3)
		require.NoError(t, err)
		require.NoError(t, SaveMPS(f, "mps", orig))

		loaded, err := LoadMPS(f, "mps")
		require.NoError(t, err)
		require.Equal(t, orig.Len(), loaded.Len())
		require.Equal(t, orig.BondDims(), loaded.BondDims())

		for _, coords := range [][]int{{0, 0, 0, 0}, {1, 2, 1, 1}, {0, 1, 1, 0}, {1, 0, 0, 1}} {
			want, err := orig.Evaluate(coords...)
			require.NoError(t, err)
			got, err := loaded.Evaluate(coords...)
			require.NoError(t, err)
			require.LessOrEqual(t, cmplx.Abs(got-want), 1e-12)
		}
		require.NoError(t, f.Close())
	}
}

func TestMPSRoundTripAfterReopen(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(65, 66))
	path := filepath.Join(t.TempDir(), "r.db")

	f, err := Create(path)
	require.NoError(t, err)
	orig, err := network.RandomMPS(rng, tensor.Real, []int{2, 2, 2}, 2)
	require.NoError(t, err)
	require.NoError(t, SaveMPS(f, "mps", orig))
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()
	loaded, err := LoadMPS(f, "mps")
	require.NoError(t, err)

	want, err := orig.Evaluate(1, 0, 1)
	require.NoError(t, err)
	got, err := loaded.Evaluate(1, 0, 1)
	require.NoError(t, err)
	require.LessOrEqual(t, cmplx.Abs(got-want), 1e-12)
}

func TestLoadMPSMalformed(t *testing.T) {
	t.Parallel()
	f, err := Create(filepath.Join(t.TempDir(), "bad.db"))
	require.NoError(t, err)
	defer f.Close()

	_, err = LoadMPS(f, "nothing")
	require.ErrorIs(t, err, ErrFileFormat)

	require.NoError(t, f.Group("mps"))
	require.NoError(t, f.PutAttr("mps", "length", "zero"))
	_, err = LoadMPS(f, "mps")
	require.ErrorIs(t, err, ErrFileFormat)
}
