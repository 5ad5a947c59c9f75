package tensor

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
)

func TestNewIndex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dim  int
		tags []string
		err  error
	}{
		{dim: 1},
		{dim: 7, tags: []string{"Site", "n=3"}},
		{dim: 0, err: ErrInvalidDimension},
		{dim: -2, err: ErrInvalidDimension},
	}
	for _, test := range tests {
		ix, err := NewIndex(test.dim, test.tags...)
		if test.err != nil {
			if !errors.Is(err, test.err) {
				t.Fatalf("%v, expected %v", err, test.err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if ix.Dim() != test.dim {
			t.Fatalf("%d, expected %d", ix.Dim(), test.dim)
		}
		for _, tag := range test.tags {
			if !ix.HasTag(tag) {
				t.Fatalf("missing tag %q in %v", tag, ix)
			}
		}
		if ix.HasTag("nonexistent") {
			t.Fatalf("unexpected tag in %v", ix)
		}
	}
}

func TestIndexIDUnique(t *testing.T) {
	t.Parallel()
	const workers = 8
	const perWorker = 1 << 14

	ids := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[w] = make([]uint64, 0, perWorker)
			for range perWorker {
				ids[w] = append(ids[w], MustIndex(2).ID())
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, workers*perWorker)
	for _, ws := range ids {
		for _, id := range ws {
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
	}
}

func TestCopySim(t *testing.T) {
	t.Parallel()
	ix := MustIndex(5, "Site")

	cp := ix.Copy()
	if cp.ID() != ix.ID() || cp.Dim() != ix.Dim() || !cp.Equal(ix) {
		t.Fatalf("%v, expected %v", cp, ix)
	}

	sim := ix.Sim()
	if sim.ID() == ix.ID() || sim.Equal(ix) {
		t.Fatalf("%v shares id with %v", sim, ix)
	}
	if sim.Dim() != ix.Dim() || !sim.HasTag("Site") {
		t.Fatalf("%v, expected dim/tags of %v", sim, ix)
	}
}
