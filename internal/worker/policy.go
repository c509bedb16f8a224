package worker

import (
	"fmt"
	"math"
	"math/rand"

	"trajectory-rl/internal/cartpole"
)

const numActions = 2

type PolicyWeights struct {
	W  [][]float64 `json:"w"`  // shape: [numActions][obs]
	B  []float64   `json:"b"`  // shape: [numActions]
	VW []float64   `json:"vw"` // shape: [obs]
	VB float64     `json:"vb"`
}

// Validate checks the weight shapes against an observation size.
func (w PolicyWeights) Validate(obsSize int) error {
	if len(w.W) != numActions || len(w.B) != numActions {
		return fmt.Errorf("policy weights: want %d action rows, got w=%d b=%d", numActions, len(w.W), len(w.B))
	}
	for i, row := range w.W {
		if len(row) != obsSize {
			return fmt.Errorf("policy weights: row %d has %d columns, want %d", i, len(row), obsSize)
		}
	}
	if len(w.VW) != obsSize {
		return fmt.Errorf("policy weights: value head has %d columns, want %d", len(w.VW), obsSize)
	}
	return nil
}

type Policy struct {
	Weights PolicyWeights
}

func DefaultWeights() PolicyWeights {
	return PolicyWeights{
		W: [][]float64{
			{0.01, 0.01, 0.01, 0.01},
			{-0.01, -0.01, -0.01, -0.01},
		},
		B:  []float64{0, 0},
		VW: make([]float64, cartpole.ObservationSize),
		VB: 0,
	}
}

func NewPolicy(weights PolicyWeights) *Policy {
	return &Policy{
		Weights: weights,
	}
}

// Action samples an action and returns it with its log-probability and the
// value estimate of obs.
func (p *Policy) Action(obs []float64, rng *rand.Rand) (int, float64, float64) {
	probs := softmax(p.logits(obs))
	choice := sampleCategorical(probs, rng)
	logProb := math.Log(probs[choice] + 1e-8)
	return choice, logProb, p.value(obs)
}

func (p *Policy) logits(obs []float64) []float64 {
	logits := make([]float64, numActions)
	for i := range logits {
		logits[i] = p.Weights.B[i] + dot(p.Weights.W[i], obs)
	}
	return logits
}

func (p *Policy) value(obs []float64) float64 {
	return p.Weights.VB + dot(p.Weights.VW, obs)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range b {
		sum += a[i] * b[i]
	}
	return sum
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	values := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		values[i] = math.Exp(v - maxLogit)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
	return values
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	threshold := rng.Float64()
	var cumulativeProb float64
	for i, prob := range probs {
		cumulativeProb += prob
		if threshold <= cumulativeProb {
			return i
		}
	}
	return len(probs) - 1
}
