package tensor

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
)

// zmat is a row-major complex matrix used by the complex-valued
// decomposition kernels. Gonum's LAPACK drivers are float64-only, so
// QR, pivoted LU and SVD for complex storage are implemented here.
type zmat struct {
	r, c int
	d    []complex128
}

func newZmat(r, c int) zmat {
	return zmat{r: r, c: c, d: make([]complex128, r*c)}
}

func (m zmat) at(i, j int) complex128     { return m.d[i*m.c+j] }
func (m zmat) set(i, j int, v complex128) { m.d[i*m.c+j] = v }

func (m zmat) clone() zmat {
	out := newZmat(m.r, m.c)
	copy(out.d, m.d)
	return out
}

// zQR computes the thin QR factorization a = q*r via Householder
// reflections, with q of shape m×k, r of shape k×n, k = min(m, n).
func zQR(a zmat) (q, r zmat) {
	m, n := a.r, a.c
	k := min(m, n)
	w := a.clone()

	vs := make([][]complex128, k)
	betas := make([]float64, k)
	for j := 0; j < k; j++ {
		var normx float64
		for i := j; i < m; i++ {
			normx = math.Hypot(normx, cmplx.Abs(w.at(i, j)))
		}
		if normx == 0 {
			continue
		}
		a0 := w.at(j, j)
		phase := complex(1, 0)
		if a0 != 0 {
			phase = a0 / complex(cmplx.Abs(a0), 0)
		}
		alpha := -phase * complex(normx, 0)

		v := make([]complex128, m)
		for i := j; i < m; i++ {
			v[i] = w.at(i, j)
		}
		v[j] -= alpha
		var vnorm2 float64
		for i := j; i < m; i++ {
			vnorm2 += real(v[i])*real(v[i]) + imag(v[i])*imag(v[i])
		}
		if vnorm2 == 0 {
			continue
		}
		beta := 2 / vnorm2
		vs[j], betas[j] = v, beta

		// Apply H = I - beta v v^H to the trailing block.
		for c := j; c < n; c++ {
			var s complex128
			for i := j; i < m; i++ {
				s += cmplx.Conj(v[i]) * w.at(i, c)
			}
			s *= complex(beta, 0)
			for i := j; i < m; i++ {
				w.set(i, c, w.at(i, c)-s*v[i])
			}
		}
		w.set(j, j, alpha)
		for i := j + 1; i < m; i++ {
			w.set(i, j, 0)
		}
	}

	r = newZmat(k, n)
	for i := 0; i < k; i++ {
		for j := i; j < n; j++ {
			r.set(i, j, w.at(i, j))
		}
	}

	// q = H_0 ... H_{k-1} [I_k; 0].
	q = newZmat(m, k)
	for i := 0; i < k; i++ {
		q.set(i, i, 1)
	}
	for j := k - 1; j >= 0; j-- {
		if vs[j] == nil {
			continue
		}
		v, beta := vs[j], betas[j]
		for c := 0; c < k; c++ {
			var s complex128
			for i := j; i < m; i++ {
				s += cmplx.Conj(v[i]) * q.at(i, c)
			}
			s *= complex(beta, 0)
			for i := j; i < m; i++ {
				q.set(i, c, q.at(i, c)-s*v[i])
			}
		}
	}
	return q, r
}

// zLU computes a partially pivoted factorization a = l*u where l is
// m×k with unit diagonal under the row permutation and u is k×n upper
// triangular, k = min(m, n). The returned l has the permutation folded
// back in, so a = l*u holds for the original row order.
func zLU(a zmat) (l, u zmat) {
	m, n := a.r, a.c
	k := min(m, n)
	w := a.clone()
	perm := make([]int, m)
	for i := range perm {
		perm[i] = i
	}

	for j := 0; j < k; j++ {
		// Pivot on the largest entry in column j.
		p, best := j, 0.0
		for i := j; i < m; i++ {
			if v := cmplx.Abs(w.at(i, j)); v > best {
				p, best = i, v
			}
		}
		if best == 0 {
			continue
		}
		if p != j {
			for c := 0; c < n; c++ {
				w.d[j*n+c], w.d[p*n+c] = w.d[p*n+c], w.d[j*n+c]
			}
			perm[j], perm[p] = perm[p], perm[j]
		}
		piv := w.at(j, j)
		for i := j + 1; i < m; i++ {
			f := w.at(i, j) / piv
			w.set(i, j, f)
			for c := j + 1; c < n; c++ {
				w.set(i, c, w.at(i, c)-f*w.at(j, c))
			}
		}
	}

	l = newZmat(m, k)
	u = newZmat(k, n)
	for i := 0; i < m; i++ {
		for j := 0; j < min(i, k); j++ {
			l.set(perm[i], j, w.at(i, j))
		}
		if i < k {
			l.set(perm[i], i, 1)
			for j := i; j < n; j++ {
				u.set(i, j, w.at(i, j))
			}
		}
	}
	return l, u
}

// zRRLU selects pivot rows and columns of a by fully pivoted Gaussian
// elimination, stopping when the residual maximum drops to tol times
// the first pivot or rank reaches maxRank (0 meaning unbounded).
func zRRLU(a zmat, tol float64, maxRank int) (rows, cols []int) {
	m, n := a.r, a.c
	res := a.clone()
	k := min(m, n)
	if maxRank > 0 {
		k = min(k, maxRank)
	}
	var first float64
	for range k {
		pi, pj, best := -1, -1, 0.0
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				if v := cmplx.Abs(res.at(i, j)); v > best {
					pi, pj, best = i, j, v
				}
			}
		}
		if pi < 0 || best == 0 {
			break
		}
		if first == 0 {
			first = best
		} else if best <= tol*first {
			break
		}
		rows = append(rows, pi)
		cols = append(cols, pj)

		piv := res.at(pi, pj)
		for i := 0; i < m; i++ {
			f := res.at(i, pj) / piv
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				res.set(i, j, res.at(i, j)-f*res.at(pi, j))
			}
		}
	}
	return rows, cols
}

// zSolve solves a*x = b for square a via partially pivoted LU.
func zSolve(a, b zmat) (zmat, error) {
	if a.r != a.c || a.r != b.r {
		return zmat{}, errors.Wrapf(ErrShapeMismatch, "%dx%d \\ %dx%d", a.r, a.c, b.r, b.c)
	}
	n, nrhs := a.r, b.c
	w := a.clone()
	x := b.clone()
	for j := 0; j < n; j++ {
		p, best := j, 0.0
		for i := j; i < n; i++ {
			if v := cmplx.Abs(w.at(i, j)); v > best {
				p, best = i, v
			}
		}
		if best == 0 {
			return zmat{}, errors.Errorf("singular pivot matrix at %d", j)
		}
		if p != j {
			for c := 0; c < n; c++ {
				w.d[j*n+c], w.d[p*n+c] = w.d[p*n+c], w.d[j*n+c]
			}
			for c := 0; c < nrhs; c++ {
				x.d[j*nrhs+c], x.d[p*nrhs+c] = x.d[p*nrhs+c], x.d[j*nrhs+c]
			}
		}
		piv := w.at(j, j)
		for i := j + 1; i < n; i++ {
			f := w.at(i, j) / piv
			if f == 0 {
				continue
			}
			for c := j + 1; c < n; c++ {
				w.set(i, c, w.at(i, c)-f*w.at(j, c))
			}
			for c := 0; c < nrhs; c++ {
				x.set(i, c, x.at(i, c)-f*x.at(j, c))
			}
		}
	}
	for i := n - 1; i >= 0; i-- {
		for c := 0; c < nrhs; c++ {
			s := x.at(i, c)
			for j := i + 1; j < n; j++ {
				s -= w.at(i, j) * x.at(j, c)
			}
			x.set(i, c, s/w.at(i, i))
		}
	}
	return x, nil
}

// zSVD computes the thin singular value decomposition a = u*diag(s)*v^H
// by one-sided Jacobi rotations. u is m×k, v is n×k with k = min(m, n);
// singular values come out sorted in decreasing order.
func zSVD(a zmat) (u zmat, s []float64, v zmat) {
	if a.r < a.c {
		// Factor the adjoint and swap the roles of u and v.
		vt, st, ut := zSVD(zAdjoint(a))
		return ut, st, vt
	}
	m, n := a.r, a.c
	w := a.clone()
	v = newZmat(n, n)
	for i := 0; i < n; i++ {
		v.set(i, i, 1)
	}

	const maxSweeps = 30
	const eps = 1e-15
	for range maxSweeps {
		rotated := false
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				var alpha, beta float64
				var gamma complex128
				for i := 0; i < m; i++ {
					wp, wq := w.at(i, p), w.at(i, q)
					alpha += real(wp)*real(wp) + imag(wp)*imag(wp)
					beta += real(wq)*real(wq) + imag(wq)*imag(wq)
					gamma += cmplx.Conj(wp) * wq
				}
				g := cmplx.Abs(gamma)
				if g <= eps*math.Sqrt(alpha*beta) || g == 0 {
					continue
				}
				rotated = true
				cph := cmplx.Conj(gamma / complex(g, 0))

				tau := (beta - alpha) / (2 * g)
				t := 1 / (math.Abs(tau) + math.Sqrt(1+tau*tau))
				if tau < 0 {
					t = -t
				}
				cs := 1 / math.Sqrt(1+t*t)
				sn := cs * t

				// Unitary column transform [[cs, sn], [-sn*cph, cs*cph]].
				c0, c1 := complex(cs, 0), complex(sn, 0)
				for i := 0; i < m; i++ {
					wp, wq := w.at(i, p), w.at(i, q)
					w.set(i, p, c0*wp-c1*cph*wq)
					w.set(i, q, c1*wp+c0*cph*wq)
				}
				for i := 0; i < n; i++ {
					vp, vq := v.at(i, p), v.at(i, q)
					v.set(i, p, c0*vp-c1*cph*vq)
					v.set(i, q, c1*vp+c0*cph*vq)
				}
			}
		}
		if !rotated {
			break
		}
	}

	s = make([]float64, n)
	order := make([]int, n)
	for j := 0; j < n; j++ {
		var norm float64
		for i := 0; i < m; i++ {
			norm = math.Hypot(norm, cmplx.Abs(w.at(i, j)))
		}
		s[j] = norm
		order[j] = j
	}
	// Decreasing singular values.
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			if s[order[j]] > s[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	u = newZmat(m, n)
	vOut := newZmat(n, n)
	sOut := make([]float64, n)
	for c, j := range order {
		sOut[c] = s[j]
		if s[j] > 0 {
			inv := complex(1/s[j], 0)
			for i := 0; i < m; i++ {
				u.set(i, c, w.at(i, j)*inv)
			}
		}
		for i := 0; i < n; i++ {
			vOut.set(i, c, v.at(i, j))
		}
	}
	return u, sOut, vOut
}

func zAdjoint(a zmat) zmat {
	out := newZmat(a.c, a.r)
	for i := 0; i < a.r; i++ {
		for j := 0; j < a.c; j++ {
			out.set(j, i, cmplx.Conj(a.at(i, j)))
		}
	}
	return out
}
