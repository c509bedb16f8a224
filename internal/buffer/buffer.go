package buffer

import (
	"sync"

	"github.com/unixpickle/anyvec"
)

// Shared guards a RingBuffer with a mutex so HTTP handlers and other
// goroutines can append to and read from one trajectory window.
type Shared struct {
	mu sync.Mutex
	rb *RingBuffer
}

func NewShared(maxSteps int, opts ...Option) (*Shared, error) {
	rb, err := New(maxSteps, opts...)
	if err != nil {
		return nil, err
	}
	return &Shared{rb: rb}, nil
}

// Absorb merges src into the shared window. src must not be mutated
// concurrently.
func (s *Shared) Absorb(src *RingBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rb.Absorb(src)
}

// AbsorbTrajectories records each trajectory into its own buffer and
// absorbs them in order. Nothing is absorbed when any trajectory is
// malformed. It returns the number of steps absorbed.
func (s *Shared) AbsorbTrajectories(trajectories []Trajectory) (int, error) {
	device := s.Device()

	episodes := make([]*RingBuffer, 0, len(trajectories))
	for _, t := range trajectories {
		if len(t.Steps) == 0 {
			continue
		}
		ep, err := FromTrajectory(t, WithDevice(device))
		if err != nil {
			return 0, err
		}
		episodes = append(episodes, ep)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkShapes(episodes); err != nil {
		return 0, err
	}

	var absorbed int
	for _, ep := range episodes {
		if err := s.rb.Absorb(ep); err != nil {
			return absorbed, err
		}
		absorbed += ep.Len()
	}
	return absorbed, nil
}

// checkShapes verifies that every episode agrees with the window and with
// the episodes before it on the shape of each key.
func (s *Shared) checkShapes(episodes []*RingBuffer) error {
	shapes := make(map[Key][]int)
	for _, key := range s.rb.Keys() {
		shapes[key] = s.rb.Shape(key)
	}
	for _, ep := range episodes {
		for _, key := range ep.Keys() {
			got := ep.Shape(key)
			want, ok := shapes[key]
			if !ok {
				shapes[key] = got
				continue
			}
			if !sameShape(want, got) {
				return &ShapeMismatchError{Key: key, Want: want, Got: got}
			}
		}
	}
	return nil
}

// Window returns the current content as wire steps, oldest first.
func (s *Shared) Window() BatchResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := StepsFromBuffer(s.rb)
	return BatchResponse{Size: len(steps), Steps: steps}
}

// Snapshot copies every field of the window in first-created key order.
func (s *Shared) Snapshot() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rb.Items()
}

// Read returns a copy of one field of the window.
func (s *Shared) Read(key Key) (Tensor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rb.Read(key)
}

func (s *Shared) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rb.Len()
}

func (s *Shared) Capacity() int {
	return s.rb.MaxSteps()
}

func (s *Shared) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rb.Keys()
}

func (s *Shared) Device() anyvec.Creator {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rb.Device()
}

// ReassignDevice moves the window to c.
func (s *Shared) ReassignDevice(c anyvec.Creator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rb.ReassignDevice(c)
}
