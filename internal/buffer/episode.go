package buffer

import (
	"fmt"
)

// Field keys of a recorded timestep.
const (
	KeyObs     Key = "obs"
	KeyAction  Key = "action"
	KeyReward  Key = "reward"
	KeyDone    Key = "done"
	KeyLogProb Key = "log_prob"
	KeyValue   Key = "value"
)

// StepKeys lists the fields written by RecordStep, in order.
var StepKeys = []Key{KeyObs, KeyAction, KeyReward, KeyDone, KeyLogProb, KeyValue}

// RecordStep appends s to rb as a single timestep under StepKeys.
func RecordStep(rb *RingBuffer, s Step) error {
	c := rb.Device()
	done := 0.0
	if s.Done {
		done = 1
	}
	return rb.AppendMany([]Tensor{
		NewTensor(c, s.Obs),
		Scalar(c, float64(s.Action)),
		Scalar(c, s.Reward),
		Scalar(c, done),
		Scalar(c, s.LogProb),
		Scalar(c, s.Value),
	}, StepKeys)
}

// FromTrajectory records every step of t into a buffer sized to hold them
// all.
func FromTrajectory(t Trajectory, opts ...Option) (*RingBuffer, error) {
	rb, err := New(max(len(t.Steps), 1), opts...)
	if err != nil {
		return nil, err
	}
	for i, s := range t.Steps {
		if err := RecordStep(rb, s); err != nil {
			return nil, fmt.Errorf("worker %s episode %d step %d: %w", t.WorkerID, t.EpisodeID, i, err)
		}
	}
	return rb, nil
}

// StepsFromBuffer converts the window of rb back into steps. Step fields
// that were never written are left at their zero value.
func StepsFromBuffer(rb *RingBuffer) []Step {
	steps := make([]Step, rb.Len())
	if obs, ok := rb.Read(KeyObs); ok {
		for i, row := range obs.Rows() {
			steps[i].Obs = row
		}
	}
	scalarColumn(rb, KeyAction, func(i int, x float64) { steps[i].Action = int(x) })
	scalarColumn(rb, KeyReward, func(i int, x float64) { steps[i].Reward = x })
	scalarColumn(rb, KeyDone, func(i int, x float64) { steps[i].Done = x != 0 })
	scalarColumn(rb, KeyLogProb, func(i int, x float64) { steps[i].LogProb = x })
	scalarColumn(rb, KeyValue, func(i int, x float64) { steps[i].Value = x })
	return steps
}

func scalarColumn(rb *RingBuffer, key Key, set func(int, float64)) {
	t, ok := rb.Read(key)
	if !ok {
		return
	}
	for i, row := range t.Rows() {
		if len(row) > 0 {
			set(i, row[0])
		}
	}
}

