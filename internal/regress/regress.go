// Package regress provides the fit/predict contract the trainer and
// correction engine program against, plus the concrete regressors. Any type
// satisfying Regressor is interchangeable; nothing here or in its callers
// assumes a particular model family.
package regress

import (
	"errors"
	"fmt"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// Regressor fits a target from feature vectors and predicts for new ones.
// Implementations are not safe for concurrent Fit, but Predict is safe after
// Fit returns — trained models are read-only.
type Regressor interface {
	domain.Predictor
	Fit(features [][]float64, targets []float64) error
	// State serializes the trained parameters for the persistent registry.
	State() ([]byte, error)
}

// ErrNotFitted is returned by State before a successful Fit, and signalled by
// Predict returning 0 (the identity residual).
var ErrNotFitted = errors.New("regressor not fitted")

// Config selects and parameterizes a regressor. Hyperparameters are opaque to
// the trainer beyond this factory.
type Config struct {
	Name string `koanf:"name" json:"name"`

	// Ridge is the L2 regularization strength for least_squares.
	Ridge float64 `koanf:"ridge" json:"ridge"`

	// Neighbors is k for the knn regressor.
	Neighbors int `koanf:"neighbors" json:"neighbors"`
}

// Validate rejects unknown regressor names and nonsensical hyperparameters.
func (c Config) Validate() error {
	switch c.Name {
	case NameLeastSquares:
		if c.Ridge < 0 {
			return fmt.Errorf("%w: ridge must be >= 0, got %g", domain.ErrConfig, c.Ridge)
		}
	case NameKNN:
		if c.Neighbors <= 0 {
			return fmt.Errorf("%w: knn neighbors must be positive, got %d", domain.ErrConfig, c.Neighbors)
		}
	default:
		return fmt.Errorf("%w: unknown regressor %q", domain.ErrConfig, c.Name)
	}
	return nil
}

// New builds an unfitted regressor from configuration.
func New(c Config) (Regressor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Name {
	case NameLeastSquares:
		return NewLeastSquares(c.Ridge), nil
	case NameKNN:
		return NewKNN(c.Neighbors), nil
	}
	return nil, fmt.Errorf("%w: unknown regressor %q", domain.ErrConfig, c.Name)
}

// Restore rebuilds a trained regressor from its serialized state, as stored
// by the persistent registry.
func Restore(name string, state []byte) (Regressor, error) {
	switch name {
	case NameLeastSquares:
		return restoreLeastSquares(state)
	case NameKNN:
		return restoreKNN(state)
	}
	return nil, fmt.Errorf("%w: unknown regressor %q", domain.ErrConfig, name)
}
