package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidLinear = errors.New("invalid logistic regression")

// LogisticRegression labels a row 1 when sigmoid(w·x + b) exceeds Threshold.
type LogisticRegression struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Threshold float64   `json:"threshold,omitempty"`
}

func NewLogisticRegression(weights []float64, intercept float64) (*LogisticRegression, error) {
	l := &LogisticRegression{Weights: append([]float64(nil), weights...), Intercept: intercept}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LogisticRegression) Kind() string     { return KindLogisticRegression }
func (l *LogisticRegression) NumFeatures() int { return len(l.Weights) }

func (l *LogisticRegression) Validate() error {
	if len(l.Weights) == 0 {
		return fmt.Errorf("%w: no weights", ErrInvalidLinear)
	}
	if floats.HasNaN(l.Weights) || math.IsNaN(l.Intercept) {
		return fmt.Errorf("%w: NaN coefficient", ErrInvalidLinear)
	}
	return nil
}

func (l *LogisticRegression) Predict(x mat.Matrix) ([]int, error) {
	rows, err := checkWidth(x, len(l.Weights))
	if err != nil {
		return nil, err
	}

	threshold := thresholdOrDefault(l.Threshold)
	row := make([]float64, len(l.Weights))
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		labels[i] = label(sigmoid(floats.Dot(row, l.Weights)+l.Intercept), threshold)
	}
	return labels, nil
}
