package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Predictor kinds understood by the envelope codec.
const (
	KindTreeEnsemble       = "tree_ensemble"
	KindLogisticRegression = "logistic_regression"
)

// DefaultThreshold is the probability above which a record is labelled 1.
const DefaultThreshold = 0.5

var (
	ErrUnknownKind     = errors.New("unknown predictor kind")
	ErrFeatureMismatch = errors.New("feature count mismatch")
)

// Predictor is a trained binary classifier. Implementations are immutable after
// construction and safe for concurrent use.
type Predictor interface {
	Kind() string
	NumFeatures() int
	// Predict returns one 0/1 label per row of x, in row order.
	Predict(x mat.Matrix) ([]int, error)
}

type envelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// MarshalPredictor encodes p together with its kind so UnmarshalPredictor can
// rebuild an equivalent predictor.
func MarshalPredictor(p Predictor) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil predictor")
	}
	params, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Params: params})
}

func UnmarshalPredictor(data []byte) (Predictor, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode predictor envelope: %w", err)
	}

	switch env.Kind {
	case KindTreeEnsemble:
		var t TreeEnsemble
		if err := json.Unmarshal(env.Params, &t); err != nil {
			return nil, fmt.Errorf("decode tree ensemble: %w", err)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return &t, nil
	case KindLogisticRegression:
		var l LogisticRegression
		if err := json.Unmarshal(env.Params, &l); err != nil {
			return nil, fmt.Errorf("decode logistic regression: %w", err)
		}
		if err := l.Validate(); err != nil {
			return nil, err
		}
		return &l, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

func checkWidth(x mat.Matrix, want int) (rows int, err error) {
	r, c := x.Dims()
	if c != want {
		return 0, fmt.Errorf("%w: predictor expects %d columns, got %d", ErrFeatureMismatch, want, c)
	}
	return r, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func label(p, threshold float64) int {
	if p > threshold {
		return 1
	}
	return 0
}

func thresholdOrDefault(t float64) float64 {
	if t <= 0 || t >= 1 {
		return DefaultThreshold
	}
	return t
}
