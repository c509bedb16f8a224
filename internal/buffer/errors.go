package buffer

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by RingBuffer operations.
var (
	ErrInvalidConfiguration = errors.New("invalid ring buffer configuration")
	ErrShapeMismatch        = errors.New("element shape mismatch")
	ErrInvalidTensor        = errors.New("invalid tensor")
	ErrKeyCount             = errors.New("key count does not match element count")
	ErrDuplicateKey         = errors.New("key repeated within one timestep")
)

// ShapeMismatchError reports a write whose element shape differs from the
// shape fixed by the first write to the same key.
type ShapeMismatchError struct {
	Key  Key
	Want []int
	Got  []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: key=%q want=%v got=%v", string(e.Key), e.Want, e.Got)
}

func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}
