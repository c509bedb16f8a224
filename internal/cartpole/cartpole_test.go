package cartpole

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetStartsNearUpright(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(1)), Config{})
	for i := 0; i < 20; i++ {
		s := env.Reset()
		for _, v := range s.Observation() {
			assert.InDelta(t, 0, v, 0.05)
		}
		assert.Zero(t, env.Steps)
	}
	assert.Len(t, env.State.Observation(), ObservationSize)
}

func TestStepTerminatesWhenPoleFalls(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(7)), Config{})

	var reward float64
	var done bool
	for !done {
		_, reward, done = env.Step(1)
		require.LessOrEqual(t, env.Steps, env.MaxSteps())
	}
	assert.Less(t, env.Steps, env.MaxSteps())
	assert.Equal(t, 0.0, reward)
}

func TestStepStopsAtMaxSteps(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(3)), Config{MaxSteps: 3, XThreshold: 100, ThetaThreshold: 100})

	for i := 0; i < 2; i++ {
		_, reward, done := env.Step(i % 2)
		assert.False(t, done)
		assert.Equal(t, 1.0, reward)
	}
	_, reward, done := env.Step(0)
	assert.True(t, done)
	assert.Equal(t, 1.0, reward)
}

func TestConfigDefaults(t *testing.T) {
	env := NewEnv(nil, Config{})
	assert.Equal(t, defaultMaxSteps, env.MaxSteps())
	assert.Equal(t, defaultXThreshold, env.Config.XThreshold)
	assert.Equal(t, defaultThetaThreshold, env.Config.ThetaThreshold)
}
