// Package evaluate computes the shared quality metrics consumed by both the
// trainer (validation reporting) and the correction engine (post-correction
// quality). The metric set follows standard verification practice: mean bias
// error, MAE, RMSE, mean relative error, Pearson correlation, and R².
package evaluate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// mreEpsilon guards the relative-error denominator against near-zero
// observations (calm wind, dry hours).
const mreEpsilon = 5e-4

// Summarize computes metrics over paired observations and predictions.
// Mismatched or empty inputs yield a zero-valued summary with N=0 — a
// well-defined degenerate result, never NaN.
func Summarize(observed, predicted []float64) domain.MetricSummary {
	n := len(observed)
	if n == 0 || n != len(predicted) {
		return domain.MetricSummary{}
	}

	var sumErr, sumAbs, sumSq, sumRel float64
	for i := 0; i < n; i++ {
		err := predicted[i] - observed[i]
		sumErr += err
		sumAbs += math.Abs(err)
		sumSq += err * err
		den := math.Abs(observed[i])
		if den < mreEpsilon {
			den = mreEpsilon
		}
		sumRel += math.Abs(err) / den
	}

	fn := float64(n)
	s := domain.MetricSummary{
		N:    n,
		Bias: sumErr / fn,
		MAE:  sumAbs / fn,
		RMSE: math.Sqrt(sumSq / fn),
		MRE:  sumRel / fn,
	}

	s.Corr = sanitize(stat.Correlation(observed, predicted, nil))
	s.R2 = sanitize(rSquared(observed, predicted))
	return s
}

// rSquared is 1 - SSres/SStot against the observed mean. Zero-variance
// observations give 0.
func rSquared(observed, predicted []float64) float64 {
	obsMean := stat.Mean(observed, nil)
	var ssRes, ssTot float64
	for i := range observed {
		dRes := observed[i] - predicted[i]
		dTot := observed[i] - obsMean
		ssRes += dRes * dRes
		ssTot += dTot * dTot
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Improved reports whether the model summary beats the baseline on a metric.
// Correlation and R² improve upward; the error metrics improve downward. A
// small tolerance absorbs floating-point noise.
func Improved(metric string, model, baseline domain.MetricSummary) bool {
	const tol = 1e-6
	switch metric {
	case "corr":
		return model.Corr >= baseline.Corr-tol
	case "r2":
		return model.R2 >= baseline.R2-tol
	case "bias":
		return math.Abs(model.Bias) <= math.Abs(baseline.Bias)+tol
	case "mae":
		return model.MAE <= baseline.MAE+tol
	case "rmse":
		return model.RMSE <= baseline.RMSE+tol
	case "mre":
		return model.MRE <= baseline.MRE+tol
	}
	return false
}
