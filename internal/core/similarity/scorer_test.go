package similarity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

func mustVector(t *testing.T, values []float64) domain.FeatureVector {
	t.Helper()
	v, err := domain.ParseFeatureVector(values)
	require.NoError(t, err)
	return v
}

func randomValues(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()*2 - 1
	}
	return out
}

func TestScoreIdenticalLegacyVectors(t *testing.T) {
	values := randomValues(rand.New(rand.NewSource(1)), 128)
	res := Default().Score(mustVector(t, values), mustVector(t, values))

	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Equal(t, domain.EncodingFormatLegacy, res.Format)
	assert.False(t, res.Truncated)
}

func TestScoreIdenticalEnhancedVectors(t *testing.T) {
	values := randomValues(rand.New(rand.NewSource(2)), domain.EnhancedDimension)
	res := Default().Score(mustVector(t, values), mustVector(t, values))

	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Equal(t, domain.EncodingFormatEnhanced, res.Format)
}

func TestScoreOppositeVectorsIsZero(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{-1, -2, -3, -4}
	res := Default().Score(mustVector(t, a), mustVector(t, b))

	assert.InDelta(t, 0.0, res.Confidence, 1e-9)
}

func TestScoreOrthogonalVectorsIsMidpoint(t *testing.T) {
	res := Default().Score(mustVector(t, []float64{1, 0}), mustVector(t, []float64{0, 1}))

	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestScoreZeroNormIsZero(t *testing.T) {
	res := Default().Score(mustVector(t, []float64{0, 0, 0}), mustVector(t, []float64{1, 2, 3}))

	assert.Equal(t, 0.0, res.Confidence)
}

func TestScoreTruncatesMismatchedLengths(t *testing.T) {
	stored := []float64{1, 2, 3, 4, 5}
	current := []float64{1, 2, 3}
	res := Default().Score(mustVector(t, stored), mustVector(t, current))

	assert.True(t, res.Truncated)
	assert.Equal(t, 3, res.ComparedDimensions)
	assert.Equal(t, 5, res.StoredDimensions)
	assert.Equal(t, 3, res.CurrentDimensions)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestScoreEnhancedAgainstLegacyFallsBackToCosine(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	enhanced := randomValues(r, domain.EnhancedDimension)
	legacy := append([]float64(nil), enhanced[:128]...)

	res := Default().Score(mustVector(t, enhanced), mustVector(t, legacy))

	assert.True(t, res.Truncated)
	assert.Equal(t, domain.EncodingFormatLegacy, res.Format)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestScoreWeightsEnhancedBlocks(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	stored := randomValues(r, domain.EnhancedDimension)
	current := append([]float64(nil), stored...)
	// invert only the measurement block
	start := domain.LandmarkComponents + domain.GeometricComponents
	for i := start; i < start+domain.MeasurementComponents; i++ {
		current[i] = -current[i]
	}

	res := Default().Score(mustVector(t, stored), mustVector(t, current))

	assert.InDelta(t, DefaultWeights.Landmark+DefaultWeights.Geometric, res.Confidence, 1e-9)
}

func TestScoreIsSymmetricAndBounded(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	scorer := Default()
	for i := 0; i < 50; i++ {
		n := 2 + r.Intn(1100)
		a := mustVector(t, randomValues(r, n))
		b := mustVector(t, randomValues(r, n))

		ab := scorer.Score(a, b)
		ba := scorer.Score(b, a)

		assert.InDelta(t, ab.Confidence, ba.Confidence, 1e-12)
		assert.GreaterOrEqual(t, ab.Confidence, 0.0)
		assert.LessOrEqual(t, ab.Confidence, 1.0)
	}
}

func TestScoreDoesNotMutateInputs(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3}
	v := mustVector(t, values)
	_ = Default().Score(v, mustVector(t, []float64{0.3, 0.2}))

	assert.Equal(t, []float64{0.1, 0.2, 0.3}, v.Values())
}
