// Package similarity scores biometric feature vectors. Scoring is pure and never mutates its inputs.
package similarity

import (
	"math"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

// Weights apportions the enhanced-encoding blocks. They sum to one.
type Weights struct {
	Landmark    float64
	Geometric   float64
	Measurement float64
}

// DefaultWeights favours facial landmarks over geometry and measurements.
var DefaultWeights = Weights{Landmark: 0.60, Geometric: 0.25, Measurement: 0.15}

// Result describes a single comparison.
type Result struct {
	Confidence         float64
	Format             domain.EncodingFormat
	ComparedDimensions int
	StoredDimensions   int
	CurrentDimensions  int
	Truncated          bool
}

// Scorer compares feature vectors.
type Scorer struct {
	weights Weights
}

// NewScorer returns a scorer using the provided block weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Default returns a scorer with DefaultWeights.
func Default() *Scorer {
	return NewScorer(DefaultWeights)
}

// Score compares a stored vector with a live one and returns a confidence in [0, 1].
// Vectors of different length are truncated to the shorter one and the result is flagged.
func (s *Scorer) Score(stored, current domain.FeatureVector) Result {
	res := Result{
		StoredDimensions:  stored.Len(),
		CurrentDimensions: current.Len(),
	}
	if stored.IsZero() || current.IsZero() {
		return res
	}

	n := stored.Len()
	if current.Len() < n {
		n = current.Len()
	}
	if stored.Len() != current.Len() {
		res.Truncated = true
		stored = stored.Truncate(n)
		current = current.Truncate(n)
	}
	res.ComparedDimensions = n
	res.Format = domain.FormatForDimension(n)

	a, okA := stored.Enhanced()
	b, okB := current.Enhanced()
	if okA && okB {
		res.Confidence = clamp(s.weights.Landmark*Cosine(a.Landmarks, b.Landmarks) +
			s.weights.Geometric*Cosine(a.Geometry, b.Geometry) +
			s.weights.Measurement*Cosine(a.Measurements, b.Measurements))
		return res
	}

	res.Confidence = Cosine(stored.Values(), current.Values())
	return res
}

// Cosine returns cosine similarity remapped from [-1, 1] to [0, 1].
// A zero-norm input yields 0.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	raw := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return clamp((raw + 1) / 2)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
