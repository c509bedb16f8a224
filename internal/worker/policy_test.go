package worker

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := softmax([]float64{1000, 1001})
	assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-12)
	assert.Greater(t, probs[1], probs[0])
}

func TestActionDeterministicLogits(t *testing.T) {
	weights := DefaultWeights()
	weights.B = []float64{-50, 50}
	weights.VW = []float64{1, 2, 3, 4}
	weights.VB = 0.5
	p := NewPolicy(weights)

	rng := rand.New(rand.NewSource(1))
	action, logProb, value := p.Action([]float64{1, 1, 1, 1}, rng)
	assert.Equal(t, 1, action)
	assert.InDelta(t, 0, logProb, 1e-6)
	assert.Equal(t, 10.5, value)
}

func TestActionLogProbMatchesSample(t *testing.T) {
	p := NewPolicy(DefaultWeights())
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		action, logProb, _ := p.Action([]float64{0.1, 0, -0.1, 0}, rng)
		require.Contains(t, []int{0, 1}, action)
		assert.InDelta(t, math.Log(0.5), logProb, 0.01)
	}
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate(4))

	bad := DefaultWeights()
	bad.W[1] = []float64{1}
	assert.Error(t, bad.Validate(4))

	bad = DefaultWeights()
	bad.VW = nil
	assert.Error(t, bad.Validate(4))

	assert.Error(t, PolicyWeights{}.Validate(4))
}
