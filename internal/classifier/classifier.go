// Package classifier scores feature vectors with a logistic regression model.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/DeafMist/news-credibility/internal/vectorizer"
)

// ErrDimensionMismatch means a vector and the model disagree on the feature
// space. It indicates mismatched artifacts, never bad user input.
var ErrDimensionMismatch = errors.New("feature dimension mismatch")

// ErrInvalidModel is returned by NewModel for unusable parameters.
var ErrInvalidModel = errors.New("invalid model")

// Label is the binary verdict.
type Label string

const (
	Real Label = "real"
	Fake Label = "fake"
)

// ParseLabel accepts "real"/"fake" in any case, optionally followed by " news".
func ParseLabel(raw string) (Label, error) {
	s := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), " news")
	switch Label(s) {
	case Real, Fake:
		return Label(s), nil
	}
	return "", fmt.Errorf("unknown label %q", raw)
}

// DisplayName is the user-facing verdict text.
func (l Label) DisplayName() string {
	switch l {
	case Real:
		return "Real News"
	case Fake:
		return "Fake News"
	}
	return string(l)
}

// Prediction is the outcome of scoring one vector.
type Prediction struct {
	Label Label
	// Probability is the sigmoid output, i.e. the probability of the model's positive label.
	Probability float64
	// Confidence is the certainty in Label as a percentage in [50, 100], two decimals.
	Confidence float64
}

// Model is an immutable logistic regression decision function.
type Model struct {
	weights  []float64
	bias     float64
	positive Label
}

// NewModel copies weights and returns a Model whose sigmoid output is the
// probability of positive.
func NewModel(weights []float64, bias float64, positive Label) (*Model, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrInvalidModel)
	}
	if positive != Real && positive != Fake {
		return nil, fmt.Errorf("%w: positive label %q", ErrInvalidModel, positive)
	}
	if !finite(bias) {
		return nil, fmt.Errorf("%w: bias %v", ErrInvalidModel, bias)
	}
	for i, w := range weights {
		if !finite(w) {
			return nil, fmt.Errorf("%w: weight[%d] = %v", ErrInvalidModel, i, w)
		}
	}
	w := make([]float64, len(weights))
	copy(w, weights)
	return &Model{weights: w, bias: bias, positive: positive}, nil
}

// Dim is the number of features the model expects.
func (m *Model) Dim() int {
	return len(m.weights)
}

// Positive is the label the sigmoid output refers to.
func (m *Model) Positive() Label {
	return m.positive
}

// Score returns the linear decision value dot(w, v) + b.
func (m *Model) Score(v vectorizer.Vector) (float64, error) {
	if v.Dim != len(m.weights) {
		return 0, fmt.Errorf("%w: vector has %d features, model has %d", ErrDimensionMismatch, v.Dim, len(m.weights))
	}
	if len(v.Indices) != len(v.Values) {
		return 0, fmt.Errorf("%w: %d indices for %d values", ErrDimensionMismatch, len(v.Indices), len(v.Values))
	}
	z := m.bias
	for i, idx := range v.Indices {
		if idx < 0 || idx >= len(m.weights) {
			return 0, fmt.Errorf("%w: index %d outside [0,%d)", ErrDimensionMismatch, idx, len(m.weights))
		}
		z += m.weights[idx] * v.Values[i]
	}
	return z, nil
}

// Classify scores v and picks the more likely label. Fake wins when
// P(fake) >= 0.5, so an exact tie is Fake whichever label is positive.
func (m *Model) Classify(v vectorizer.Vector) (Prediction, error) {
	z, err := m.Score(v)
	if err != nil {
		return Prediction{}, err
	}
	p := Sigmoid(z)

	pFake := p
	if m.positive == Real {
		pFake = 1 - p
	}
	label := Real
	if pFake >= 0.5 {
		label = Fake
	}
	return Prediction{
		Label:       label,
		Probability: p,
		Confidence:  Confidence(p),
	}, nil
}

// Sigmoid is the logistic function, evaluated without overflow for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Confidence converts a probability into the certainty of the chosen label,
// as a percentage rounded to two decimals.
func Confidence(p float64) float64 {
	c := math.Max(p, 1-p) * 100
	return math.Round(c*100) / 100
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
