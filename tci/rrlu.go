package tci

import "math"

// rrlu runs fully pivoted Gaussian elimination on the m x n row-major
// matrix a, selecting pivots in decreasing magnitude order. It stops
// when the next pivot falls below tol relative to the first, or when
// maxRank pivots have been taken (maxRank 0 means no cap). It returns
// the pivot row and column positions and the largest remaining
// residual relative to the first pivot.
func rrlu(a []float64, m, n int, tol float64, maxRank int) (rows, cols []int, relErr float64) {
	work := append([]float64(nil), a...)
	usedR := make([]bool, m)
	usedC := make([]bool, n)
	limit := min(m, n)
	if maxRank > 0 {
		limit = min(limit, maxRank)
	}

	var first float64
	for len(rows) < limit {
		p, q, best := -1, -1, 0.0
		for i := range m {
			if usedR[i] {
				continue
			}
			for j := range n {
				if usedC[j] {
					continue
				}
				if v := math.Abs(work[i*n+j]); v > best {
					best, p, q = v, i, j
				}
			}
		}
		if len(rows) == 0 {
			first = best
			if first == 0 {
				return nil, nil, 0
			}
		} else if best <= tol*first {
			return rows, cols, best / first
		}

		usedR[p] = true
		usedC[q] = true
		rows = append(rows, p)
		cols = append(cols, q)
		piv := work[p*n+q]
		for i := range m {
			if usedR[i] {
				continue
			}
			fct := work[i*n+q] / piv
			for j := range n {
				if usedC[j] {
					continue
				}
				work[i*n+j] -= fct * work[p*n+j]
			}
		}
	}

	var resid float64
	for i := range m {
		if usedR[i] {
			continue
		}
		for j := range n {
			if usedC[j] {
				continue
			}
			resid = math.Max(resid, math.Abs(work[i*n+j]))
		}
	}
	return rows, cols, resid / first
}
