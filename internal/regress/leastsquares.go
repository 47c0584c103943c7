package regress

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NameLeastSquares selects the ridge-regularized linear regressor.
const NameLeastSquares = "least_squares"

// LeastSquares is a linear model with intercept, solved by regularized
// normal equations: (XᵀX + λI)β = Xᵀy. With λ=0 it is ordinary least
// squares; a small λ keeps the solve stable when covariates are collinear
// (elevation and cell elevation often are).
type LeastSquares struct {
	ridge  float64
	coeffs []float64 // [intercept, β1..βp]
}

// NewLeastSquares creates an unfitted regressor with the given ridge
// strength.
func NewLeastSquares(ridge float64) *LeastSquares {
	return &LeastSquares{ridge: ridge}
}

func (l *LeastSquares) Name() string { return NameLeastSquares }

// Fit solves for the coefficients. Requires at least one row; rows must share
// a feature length.
func (l *LeastSquares) Fit(features [][]float64, targets []float64) error {
	n := len(features)
	if n == 0 || n != len(targets) {
		return fmt.Errorf("least squares: %d feature rows for %d targets", n, len(targets))
	}
	p := len(features[0])
	for _, row := range features {
		if len(row) != p {
			return fmt.Errorf("least squares: ragged feature rows (%d vs %d)", len(row), p)
		}
	}

	// Design matrix with a leading intercept column.
	x := mat.NewDense(n, p+1, nil)
	for i, row := range features {
		x.Set(i, 0, 1)
		for j, v := range row {
			x.Set(i, j+1, v)
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), targets...))

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	for i := 0; i < p+1; i++ {
		xtx.SetSym(i, i, xtx.At(i, i)+l.ridge)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		// Singular normal matrix: fall back to a pure bias model so the
		// regressor still degrades toward a mean correction.
		l.coeffs = make([]float64, p+1)
		l.coeffs[0] = mean(targets)
		return nil
	}

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		l.coeffs = make([]float64, p+1)
		l.coeffs[0] = mean(targets)
		return nil
	}

	l.coeffs = make([]float64, p+1)
	copy(l.coeffs, beta.RawVector().Data)
	return nil
}

// Predict returns the linear prediction, or 0 (identity residual) before Fit.
func (l *LeastSquares) Predict(features []float64) float64 {
	if len(l.coeffs) == 0 {
		return 0
	}
	v := l.coeffs[0]
	n := len(features)
	if n > len(l.coeffs)-1 {
		n = len(l.coeffs) - 1
	}
	for i := 0; i < n; i++ {
		v += l.coeffs[i+1] * features[i]
	}
	return v
}

type leastSquaresState struct {
	Ridge  float64   `json:"ridge"`
	Coeffs []float64 `json:"coeffs"`
}

// State serializes the fitted coefficients.
func (l *LeastSquares) State() ([]byte, error) {
	if len(l.coeffs) == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(leastSquaresState{Ridge: l.ridge, Coeffs: l.coeffs})
}

func restoreLeastSquares(state []byte) (*LeastSquares, error) {
	var s leastSquaresState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("restore least squares: %w", err)
	}
	return &LeastSquares{ridge: s.Ridge, coeffs: s.Coeffs}, nil
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
