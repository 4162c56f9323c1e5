package hedonic

import "math"

// solveRidge solves (XᵀX + λI)β = Xᵀy by Gaussian elimination with partial
// pivoting. The closed form keeps fits bit-for-bit reproducible; there is no
// randomized optimization anywhere in the engine. Returns nil when the system
// is singular despite regularization.
func solveRidge(rows [][]float64, targets []float64, lambda float64) []float64 {
	if len(rows) == 0 || len(rows) != len(targets) {
		return nil
	}
	n := len(rows[0])

	// Normal equations: A = XᵀX + λI, b = Xᵀy.
	a := make([][]float64, n)
	b := make([]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
	}
	for r, row := range rows {
		if len(row) != n {
			return nil
		}
		for i := 0; i < n; i++ {
			b[i] += row[i] * targets[r]
			for j := 0; j < n; j++ {
				a[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < n; i++ {
		a[i][i] += lambda
	}

	return solveLinear(a, b)
}

// solveLinear performs in-place Gaussian elimination with partial pivoting on
// the n×n system a·x = b.
func solveLinear(a [][]float64, b []float64) []float64 {
	n := len(b)
	for col := 0; col < n; col++ {
		// pivot: largest magnitude entry in this column
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for col := row + 1; col < n; col++ {
			sum -= a[row][col] * x[col]
		}
		x[row] = sum / a[row][row]
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}
	return x
}
