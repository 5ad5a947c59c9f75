package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tensor4all/tensornet/network"
	"github.com/tensor4all/tensornet/tensor"
)

// SaveTensor writes t under the group at path: per-leg Index metadata
// (dim, tags and the id it had when saved) plus the dense payload.
func SaveTensor(f *File, path string, t *tensor.Dense) error {
	if err := f.Group(path); err != nil {
		return err
	}
	legs := t.Indices()
	if err := f.PutIntAttr(path, "rank", len(legs)); err != nil {
		return err
	}
	if err := f.PutIntAttr(path, "kind", int(t.Kind())); err != nil {
		return err
	}
	for k, ix := range legs {
		leg := legPath(path, k)
		if err := f.Group(leg); err != nil {
			return err
		}
		if err := f.PutAttr(leg, "id", strconv.FormatUint(ix.ID(), 10)); err != nil {
			return err
		}
		if err := f.PutIntAttr(leg, "dim", ix.Dim()); err != nil {
			return err
		}
		if err := f.PutAttr(leg, "tags", strings.Join(ix.Tags(), ",")); err != nil {
			return err
		}
	}

	shape := t.Dims()
	var data []float64
	if t.Kind() == tensor.Real {
		var err error
		if data, err = t.ToReal(legs...); err != nil {
			return err
		}
	} else {
		cxs, err := t.ToComplex(legs...)
		if err != nil {
			return err
		}
		data = make([]float64, 2*len(cxs))
		for i, v := range cxs {
			data[2*i] = real(v)
			data[2*i+1] = imag(v)
		}
		shape = append(shape, 2)
	}
	return f.PutDataset(path, "data", shape, data)
}

// LoadTensor reads the tensor saved at path. Leg Indices are created
// fresh, so loaded ids differ from saved ones; dims and tags are
// preserved.
func LoadTensor(f *File, path string) (*tensor.Dense, error) {
	t, _, err := loadTensor(f, path)
	return t, err
}

// loadTensor also returns the saved id of each leg, which is what ties
// bonds back together when loading a network.
func loadTensor(f *File, path string) (*tensor.Dense, []uint64, error) {
	rank, err := f.IntAttr(path, "rank")
	if err != nil {
		return nil, nil, err
	}
	if rank < 0 {
		return nil, nil, errors.Wrapf(ErrFileFormat, "%s: rank %d", path, rank)
	}
	kind, err := f.IntAttr(path, "kind")
	if err != nil {
		return nil, nil, err
	}
	if kind != int(tensor.Real) && kind != int(tensor.Complex) {
		return nil, nil, errors.Wrapf(ErrFileFormat, "%s: kind %d", path, kind)
	}

	legs := make([]tensor.Index, rank)
	savedIDs := make([]uint64, rank)
	for k := range rank {
		leg := legPath(path, k)
		idStr, err := f.Attr(leg, "id")
		if err != nil {
			return nil, nil, err
		}
		if savedIDs[k], err = strconv.ParseUint(idStr, 10, 64); err != nil {
			return nil, nil, errors.Wrapf(ErrFileFormat, "%s: id %q", leg, idStr)
		}
		dim, err := f.IntAttr(leg, "dim")
		if err != nil {
			return nil, nil, err
		}
		tagStr, err := f.Attr(leg, "tags")
		if err != nil {
			return nil, nil, err
		}
		var tags []string
		if tagStr != "" {
			tags = strings.Split(tagStr, ",")
		}
		if legs[k], err = tensor.NewIndex(dim, tags...); err != nil {
			return nil, nil, errors.Wrapf(ErrFileFormat, "%s: dim %d", leg, dim)
		}
	}

	shape, data, err := f.Dataset(path, "data")
	if err != nil {
		return nil, nil, err
	}
	wantShape := make([]int, 0, rank+1)
	for _, ix := range legs {
		wantShape = append(wantShape, ix.Dim())
	}
	if kind == int(tensor.Complex) {
		wantShape = append(wantShape, 2)
	}
	if !shapeEqual(shape, wantShape) {
		return nil, nil, errors.Wrapf(ErrFileFormat, "%s: shape %v, legs want %v", path, shape, wantShape)
	}

	var t *tensor.Dense
	if kind == int(tensor.Real) {
		t, err = tensor.FromReal(data, legs...)
	} else {
		cxs := make([]complex128, len(data)/2)
		for i := range cxs {
			cxs[i] = complex(data[2*i], data[2*i+1])
		}
		t, err = tensor.FromComplex(cxs, legs...)
	}
	if err != nil {
		return nil, nil, err
	}
	return t, savedIDs, nil
}

// SaveMPS writes a path network under the group at path: the site
// tensors in vertex order plus one link record per bond carrying the
// saved bond id.
func SaveMPS(f *File, path string, n *network.Network) error {
	if !n.IsPath() {
		return errors.Wrap(network.ErrIncompatibleTopology, "not a path network")
	}
	if err := f.Group(path); err != nil {
		return err
	}
	if err := f.PutIntAttr(path, "length", n.Len()); err != nil {
		return err
	}
	for i, t := range n.Collect() {
		if err := SaveTensor(f, sitePath(path, i), t); err != nil {
			return err
		}
	}
	for i := 0; i+1 < n.Len(); i++ {
		bond, _ := n.Bond(i, i+1)
		name := fmt.Sprintf("link%d", i)
		if err := f.PutAttr(path, name, strconv.FormatUint(bond.ID(), 10)); err != nil {
			return err
		}
	}
	return nil
}

// LoadMPS reads a path network saved by SaveMPS. All Indices come back
// with fresh ids; each bond is re-linked from its link record, so the
// two endpoint tensors share one Index again.
func LoadMPS(f *File, path string) (*network.Network, error) {
	length, err := f.IntAttr(path, "length")
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, errors.Wrapf(ErrFileFormat, "%s: length %d", path, length)
	}

	tensors := make([]*tensor.Dense, length)
	savedIDs := make([][]uint64, length)
	for i := range length {
		if tensors[i], savedIDs[i], err = loadTensor(f, sitePath(path, i)); err != nil {
			return nil, err
		}
	}

	for i := 0; i+1 < length; i++ {
		idStr, err := f.Attr(path, fmt.Sprintf("link%d", i))
		if err != nil {
			return nil, err
		}
		linkID, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrFileFormat, "%s: link%d %q", path, i, idStr)
		}

		left := legBySavedID(tensors[i], savedIDs[i], linkID)
		right := legBySavedID(tensors[i+1], savedIDs[i+1], linkID)
		if left < 0 || right < 0 {
			return nil, errors.Wrapf(ErrFileFormat, "%s: link%d id %d not found on both sites", path, i, linkID)
		}
		bond := tensors[i].Indices()[left]
		old := tensors[i+1].Indices()[right]
		if tensors[i+1], err = tensors[i+1].ReplaceIndex(old, bond); err != nil {
			return nil, errors.Wrapf(ErrFileFormat, "%s: link%d: %v", path, i, err)
		}
	}
	return network.NewMPS(tensors)
}

func legBySavedID(t *tensor.Dense, saved []uint64, id uint64) int {
	for k, s := range saved {
		if s == id {
			return k
		}
	}
	return -1
}

func legPath(path string, k int) string  { return fmt.Sprintf("%s/leg%d", path, k) }
func sitePath(path string, i int) string { return fmt.Sprintf("%s/site%d", path, i) }

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
