package buffer

import (
	"fmt"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

// Tensor is a flat anyvec vector interpreted with a shape. A single
// element appended to a RingBuffer is a Tensor; a read returns the stack of
// all valid elements with the step count as the leading dimension.
type Tensor struct {
	Shape []int
	Vec   anyvec.Vector
}

// NewTensor builds a tensor on the device c. With no shape the tensor is a
// flat vector of len(data) numbers.
func NewTensor(c anyvec.Creator, data []float64, shape ...int) Tensor {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	return Tensor{
		Shape: append([]int(nil), shape...),
		Vec:   c.MakeVectorData(c.MakeNumericList(data)),
	}
}

// Scalar is a one-element tensor of shape [1].
func Scalar(c anyvec.Creator, x float64) Tensor {
	return NewTensor(c, []float64{x}, 1)
}

// Size is the number of scalars described by the shape.
func (t Tensor) Size() int {
	return numElements(t.Shape)
}

// Len is the leading dimension, or 0 for a tensor without shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Float64s copies the tensor contents to host memory.
func (t Tensor) Float64s() []float64 {
	if t.Vec == nil {
		return nil
	}
	return float64s(t.Vec)
}

// Rows splits the tensor along its leading dimension.
func (t Tensor) Rows() [][]float64 {
	n := t.Len()
	if n == 0 {
		return nil
	}
	data := t.Float64s()
	width := len(data) / n
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = data[i*width : (i+1)*width : (i+1)*width]
	}
	return rows
}

// DeviceByName maps a configured precision name to an anyvec creator.
func DeviceByName(name string) (anyvec.Creator, error) {
	switch name {
	case "", "float64", "cpu":
		return anyvec64.DefaultCreator{}, nil
	case "float32":
		return anyvec32.DefaultCreator{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown device %q", ErrInvalidConfiguration, name)
	}
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func float64s(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return append([]float64(nil), data...)
	case []float32:
		out := make([]float64, len(data))
		for i, x := range data {
			out[i] = float64(x)
		}
		return out
	default:
		panic(fmt.Sprintf("buffer: unsupported numeric list %T", data))
	}
}

// moveTo returns v unchanged when it already lives on c, otherwise a copy
// created by c.
func moveTo(c anyvec.Creator, v anyvec.Vector) anyvec.Vector {
	if v.Creator() == c {
		return v
	}
	return c.MakeVectorData(c.MakeNumericList(float64s(v)))
}
