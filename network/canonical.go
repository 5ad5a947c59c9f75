package network

import (
	"github.com/pkg/errors"

	"github.com/tensor4all/tensornet/tensor"
)

// Form selects the factorization used when moving the orthogonality
// center.
type Form int

const (
	// FormNone marks a network with no canonical structure.
	FormNone Form = iota
	// FormUnitary factors by QR: visited tensors keep orthonormal
	// columns against their outward legs.
	FormUnitary
	// FormLU factors by partially pivoted LU: visited tensors keep the
	// permuted unit-lower factor.
	FormLU
	// FormCI factors by a rank-adaptive cross split: visited tensors
	// keep the interpolation factor, which is the identity on the
	// pivot rows. Cheaper than a full factorization when the tensor is
	// effectively low-rank.
	FormCI
)

func (f Form) String() string {
	switch f {
	case FormNone:
		return "none"
	case FormUnitary:
		return "unitary"
	case FormLU:
		return "lu"
	case FormCI:
		return "ci"
	default:
		return "invalid"
	}
}

// ciMoveTol bounds the relative residual kept by a CI canonical move.
const ciMoveTol = 1e-14

// Orthogonalize moves the orthogonality center to target under form.
// When the network already carries the same form, only the tensors on
// the tree path from the current center are re-factored; otherwise
// every vertex is factored toward target. Bond dimensions along the
// way may shrink if a factorization reveals rank deficiency, and
// never grow.
func (n *Network) Orthogonalize(target int, form Form) error {
	if target < 0 || target >= len(n.vertices) {
		return errors.Wrapf(ErrDisconnectedNetwork, "vertex %d of %d", target, len(n.vertices))
	}
	if form == FormNone {
		return errors.Errorf("cannot orthogonalize to form %v", form)
	}

	if n.form == form && n.center >= 0 {
		path := n.path(n.center, target)
		if path == nil {
			return errors.Wrapf(ErrDisconnectedNetwork, "no path %d -> %d", n.center, target)
		}
		for i := 0; i+1 < len(path); i++ {
			if err := n.factorToward(path[i], path[i+1], form); err != nil {
				return err
			}
		}
		n.center = target
		return nil
	}

	// Fresh canonicalization: factor leaves first, absorbing each
	// remainder toward the target.
	order, parent := n.bfs(target)
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		if v == target {
			continue
		}
		if err := n.factorToward(v, parent[v], form); err != nil {
			return err
		}
	}
	n.form = form
	n.center = target
	return nil
}

// factorToward splits the tensor at v into a form factor that stays
// and a remainder absorbed into the adjacent vertex next.
func (n *Network) factorToward(v, next int, form Form) error {
	bond, ok := n.Bond(v, next)
	if !ok {
		return errors.Wrapf(ErrDisconnectedNetwork, "no bond %d - %d", v, next)
	}
	t := n.vertices[v]
	rows := make([]tensor.Index, 0, t.Rank()-1)
	for _, ix := range t.Indices() {
		if !ix.Equal(bond) {
			rows = append(rows, ix)
		}
	}

	var keep, rem *tensor.Dense
	var newBond tensor.Index
	var err error
	switch form {
	case FormUnitary:
		keep, rem, newBond, err = tensor.QR(t, rows)
	case FormLU:
		keep, rem, newBond, err = tensor.LU(t, rows)
	case FormCI:
		keep, rem, newBond, err = tensor.CI(t, rows, tensor.CIOptions{Tol: ciMoveTol})
	default:
		return errors.Errorf("form %v", form)
	}
	if err != nil {
		return err
	}

	absorbed, err := tensor.Contract(rem, n.vertices[next])
	if err != nil {
		return err
	}
	n.vertices[v] = keep
	n.vertices[next] = absorbed
	n.bonds[edgeKey(v, next)] = newBond
	return nil
}

// bfs returns the vertices in breadth-first order from root together
// with the parent of each vertex (the neighbor toward root).
func (n *Network) bfs(root int) (order []int, parent []int) {
	parent = make([]int, len(n.vertices))
	for i := range parent {
		parent[i] = -1
	}
	parent[root] = root
	order = []int{root}
	for head := 0; head < len(order); head++ {
		v := order[head]
		for _, w := range n.adj[v] {
			if parent[w] < 0 {
				parent[w] = v
				order = append(order, w)
			}
		}
	}
	return order, parent
}
