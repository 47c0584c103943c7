package regress

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// NameKNN selects the distance-weighted k-nearest-neighbor regressor.
const NameKNN = "knn"

// KNN predicts the inverse-distance-weighted mean target of the k training
// rows nearest in standardized feature space. Features are standardized with
// the training means and deviations so large-magnitude covariates (elevation)
// do not drown out cyclic encodings.
type KNN struct {
	k       int
	means   []float64
	scales  []float64
	rows    [][]float64 // standardized training features
	targets []float64
}

// NewKNN creates an unfitted regressor with the given neighbor count.
func NewKNN(k int) *KNN {
	return &KNN{k: k}
}

func (r *KNN) Name() string { return NameKNN }

// Fit memorizes the standardized training set.
func (r *KNN) Fit(features [][]float64, targets []float64) error {
	n := len(features)
	if n == 0 || n != len(targets) {
		return fmt.Errorf("knn: %d feature rows for %d targets", n, len(targets))
	}
	p := len(features[0])
	for _, row := range features {
		if len(row) != p {
			return fmt.Errorf("knn: ragged feature rows (%d vs %d)", len(row), p)
		}
	}

	r.means = make([]float64, p)
	r.scales = make([]float64, p)
	for j := 0; j < p; j++ {
		sum := 0.0
		for _, row := range features {
			sum += row[j]
		}
		m := sum / float64(n)
		ss := 0.0
		for _, row := range features {
			d := row[j] - m
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(n))
		if sd == 0 {
			sd = 1
		}
		r.means[j] = m
		r.scales[j] = sd
	}

	r.rows = make([][]float64, n)
	for i, row := range features {
		r.rows[i] = r.standardize(row)
	}
	r.targets = append([]float64(nil), targets...)
	return nil
}

// Predict returns the weighted neighbor mean, or 0 (identity residual)
// before Fit. An exact feature match takes that row's target.
func (r *KNN) Predict(features []float64) float64 {
	if len(r.rows) == 0 {
		return 0
	}
	q := r.standardize(features)

	type scored struct {
		dist   float64
		target float64
	}
	scores := make([]scored, len(r.rows))
	for i, row := range r.rows {
		scores[i] = scored{dist: euclidean(q, row), target: r.targets[i]}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	k := r.k
	if k > len(scores) {
		k = len(scores)
	}

	var num, den float64
	for _, s := range scores[:k] {
		if s.dist == 0 {
			return s.target
		}
		w := 1 / s.dist
		num += w * s.target
		den += w
	}
	return num / den
}

func (r *KNN) standardize(row []float64) []float64 {
	out := make([]float64, len(r.means))
	n := len(row)
	if n > len(r.means) {
		n = len(r.means)
	}
	for j := 0; j < n; j++ {
		out[j] = (row[j] - r.means[j]) / r.scales[j]
	}
	return out
}

func euclidean(a, b []float64) float64 {
	var ss float64
	for i := range a {
		d := a[i] - b[i]
		ss += d * d
	}
	return math.Sqrt(ss)
}

type knnState struct {
	K       int         `json:"k"`
	Means   []float64   `json:"means"`
	Scales  []float64   `json:"scales"`
	Rows    [][]float64 `json:"rows"`
	Targets []float64   `json:"targets"`
}

// State serializes the memorized training set.
func (r *KNN) State() ([]byte, error) {
	if len(r.rows) == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(knnState{K: r.k, Means: r.means, Scales: r.scales, Rows: r.rows, Targets: r.targets})
}

func restoreKNN(state []byte) (*KNN, error) {
	var s knnState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("restore knn: %w", err)
	}
	return &KNN{k: s.K, means: s.Means, scales: s.Scales, rows: s.Rows, targets: s.Targets}, nil
}
