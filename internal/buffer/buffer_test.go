package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anyvec/anyvec32"
)

func episode(id, steps int, base float64) Trajectory {
	t := Trajectory{WorkerID: "w", EpisodeID: id}
	for i := 0; i < steps; i++ {
		x := base + float64(i)
		t.Steps = append(t.Steps, Step{
			Obs:     []float64{x, -x, 0, 1},
			Action:  i % 2,
			Reward:  1,
			Done:    i == steps-1,
			LogProb: -0.5,
			Value:   x / 10,
		})
		t.EpisodeReward++
	}
	return t
}

func TestRecordStepRoundTrip(t *testing.T) {
	traj := episode(1, 4, 0)
	rb, err := FromTrajectory(traj)
	require.NoError(t, err)

	assert.Equal(t, StepKeys, rb.Keys())
	assert.Equal(t, []int{4}, rb.Shape(KeyObs))
	assert.Equal(t, traj.Steps, StepsFromBuffer(rb))
}

func TestFromTrajectoryRejectsRaggedObservations(t *testing.T) {
	traj := episode(1, 3, 0)
	traj.Steps[2].Obs = []float64{1, 2}

	_, err := FromTrajectory(traj)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStepsFromBufferMissingFields(t *testing.T) {
	rb, err := New(3)
	require.NoError(t, err)
	require.NoError(t, rb.AppendOne(Scalar(cpu, 2.5), KeyReward))

	steps := StepsFromBuffer(rb)
	require.Len(t, steps, 1)
	assert.Equal(t, 2.5, steps[0].Reward)
	assert.Nil(t, steps[0].Obs)
}

func TestSharedAbsorbTrajectories(t *testing.T) {
	shared, err := NewShared(6, WithDefaultBufferLength(2))
	require.NoError(t, err)
	assert.Equal(t, 6, shared.Capacity())

	n, err := shared.AbsorbTrajectories([]Trajectory{episode(1, 4, 0), {EpisodeID: 2}, episode(3, 4, 100)})
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 6, shared.Size())

	window := shared.Window()
	require.Equal(t, 6, window.Size)
	var firstObs []float64
	for _, s := range window.Steps {
		firstObs = append(firstObs, s.Obs[0])
	}
	assert.Equal(t, []float64{2, 3, 100, 101, 102, 103}, firstObs)
	assert.True(t, window.Steps[1].Done)
	assert.True(t, window.Steps[5].Done)
}

func TestSharedSnapshot(t *testing.T) {
	shared, err := NewShared(3)
	require.NoError(t, err)
	assert.Empty(t, shared.Snapshot())

	_, err = shared.AbsorbTrajectories([]Trajectory{episode(1, 4, 0)})
	require.NoError(t, err)

	items := shared.Snapshot()
	require.Len(t, items, len(StepKeys))
	for i, item := range items {
		assert.Equal(t, StepKeys[i], item.Key)
		assert.Equal(t, 3, item.Value.Len())
	}
	assert.Equal(t, []int{3, 4}, items[0].Value.Shape)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, items[5].Value.Float64s(), 1e-9)
}

func TestSharedRejectsMalformedBatch(t *testing.T) {
	shared, err := NewShared(10)
	require.NoError(t, err)

	bad := episode(2, 2, 0)
	bad.Steps[1].Obs = nil

	_, err = shared.AbsorbTrajectories([]Trajectory{episode(1, 2, 0), bad})
	assert.ErrorIs(t, err, ErrInvalidTensor)
	assert.Equal(t, 0, shared.Size())
}

func TestSharedRejectsShapesAcrossTrajectories(t *testing.T) {
	shared, err := NewShared(10)
	require.NoError(t, err)

	narrow := episode(2, 2, 0)
	for i := range narrow.Steps {
		narrow.Steps[i].Obs = []float64{1, 2, 3}
	}

	n, err := shared.AbsorbTrajectories([]Trajectory{episode(1, 2, 0), narrow})
	var mismatch *ShapeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, KeyObs, mismatch.Key)
	assert.Equal(t, []int{4}, mismatch.Want)
	assert.Equal(t, []int{3}, mismatch.Got)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, shared.Size())
	assert.Empty(t, shared.Keys())

	_, err = shared.AbsorbTrajectories([]Trajectory{episode(3, 2, 0)})
	require.NoError(t, err)

	n, err = shared.AbsorbTrajectories([]Trajectory{episode(4, 3, 10), narrow})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, shared.Size())
}

func TestSharedConcurrentAbsorb(t *testing.T) {
	shared, err := NewShared(64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := shared.AbsorbTrajectories([]Trajectory{episode(i, 3, float64(w))})
				assert.NoError(t, err)
				_ = shared.Window()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 64, shared.Size())
	for _, key := range shared.Keys() {
		got, ok := shared.Read(key)
		require.True(t, ok)
		assert.Equal(t, 64, got.Len())
	}
}

func TestSharedReassignDevice(t *testing.T) {
	shared, err := NewShared(4)
	require.NoError(t, err)
	_, err = shared.AbsorbTrajectories([]Trajectory{episode(1, 3, 0)})
	require.NoError(t, err)

	shared.ReassignDevice(anyvec32.DefaultCreator{})
	assert.Equal(t, anyvec32.DefaultCreator{}, shared.Device())

	_, err = shared.AbsorbTrajectories([]Trajectory{episode(2, 2, 10)})
	require.NoError(t, err)

	obs, ok := shared.Read(KeyObs)
	require.True(t, ok)
	var firstObs []float64
	for _, row := range obs.Rows() {
		firstObs = append(firstObs, row[0])
	}
	assert.InDeltaSlice(t, []float64{1, 2, 10, 11}, firstObs, 1e-6)
}
