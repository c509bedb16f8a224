// Package buffer stores trajectory data for on- and off-policy learners.
//
// RingBuffer keeps one growable circular store per named field and a single
// cursor shared by all of them, so every field always holds the same number
// of timesteps. Stores start small, double up to the configured ceiling and
// then overwrite the oldest steps.
//
// A RingBuffer is not safe for concurrent use; Shared adds the locking the
// trajectory service needs.
package buffer

import (
	"fmt"
	"math"
	"strconv"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/unixpickle/anyvec"
	"go.uber.org/zap"
)

// Unbounded is the ceiling used by NewUnbounded.
const Unbounded = math.MaxInt

// Key names a field of a RingBuffer.
type Key string

// DefaultKey is the field written when the caller does not name one.
const DefaultKey Key = ""

// IndexKey is the positional key of element i of an unkeyed AppendMany.
func IndexKey(i int) Key {
	return Key(strconv.Itoa(i))
}

// PrefixedKey is the key of element i of AppendPrefixed.
func PrefixedKey(prefix Key, i int) Key {
	return Key(fmt.Sprintf("%s-%d", prefix, i))
}

// field is the physical store of one key.
type field struct {
	shape     []int
	size      int // scalars per element
	allocated int // elements the store can hold
	store     anyvec.Vector
}

func (f *field) rows(start, end int) anyvec.Vector {
	return f.store.Slice(start*f.size, end*f.size)
}

func (f *field) writeRows(start int, rows anyvec.Vector) {
	if rows.Len() == 0 {
		return
	}
	f.store.Slice(start*f.size, start*f.size+rows.Len()).Set(rows)
}

// RingBuffer is a set of growable circular stores sharing one cursor.
type RingBuffer struct {
	maxSteps            int
	defaultBufferLength int

	numStep int
	top     int

	fields       *orderedmap.OrderedMap[Key, *field]
	device       anyvec.Creator
	maxAllocated int

	logger  *zap.Logger
	metrics *ringMetrics
}

// New creates an empty buffer holding at most maxSteps timesteps.
func New(maxSteps int, opts ...Option) (*RingBuffer, error) {
	if maxSteps <= 0 {
		return nil, fmt.Errorf("%w: max steps must be greater than 0, got %d", ErrInvalidConfiguration, maxSteps)
	}
	o := applyOptions(opts...)
	if o.defaultBufferLength <= 0 {
		return nil, fmt.Errorf("%w: default buffer length must be greater than 0, got %d",
			ErrInvalidConfiguration, o.defaultBufferLength)
	}

	rb := &RingBuffer{
		maxSteps:            maxSteps,
		defaultBufferLength: min(o.defaultBufferLength, maxSteps),
		fields:              orderedmap.NewOrderedMap[Key, *field](),
		device:              o.device,
		logger:              o.logger,
	}
	if o.registerer != nil {
		m, err := newRingMetrics(o.registerer, o.name)
		if err != nil {
			return nil, err
		}
		rb.metrics = m
	}
	return rb, nil
}

// NewUnbounded creates a buffer that grows without an effective ceiling.
func NewUnbounded(opts ...Option) (*RingBuffer, error) {
	return New(Unbounded, opts...)
}

// MaxSteps is the occupancy ceiling.
func (rb *RingBuffer) MaxSteps() int { return rb.maxSteps }

// Len is the number of valid timesteps held.
func (rb *RingBuffer) Len() int { return rb.numStep }

// Top is the next physical write index.
func (rb *RingBuffer) Top() int { return rb.top }

// Device is the creator the stores live on.
func (rb *RingBuffer) Device() anyvec.Creator { return rb.device }

// Keys lists the fields in the order they were first written.
func (rb *RingBuffer) Keys() []Key {
	keys := make([]Key, 0, rb.fields.Len())
	for el := rb.fields.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key)
	}
	return keys
}

// Values reads every field, in key order.
func (rb *RingBuffer) Values() []Tensor {
	values := make([]Tensor, 0, rb.fields.Len())
	for el := rb.fields.Front(); el != nil; el = el.Next() {
		values = append(values, rb.materialize(el.Value))
	}
	return values
}

// Item is one field of a RingBuffer with its valid content.
type Item struct {
	Key   Key
	Value Tensor
}

// Items reads every field together with its key, in key order.
func (rb *RingBuffer) Items() []Item {
	items := make([]Item, 0, rb.fields.Len())
	for el := rb.fields.Front(); el != nil; el = el.Next() {
		items = append(items, Item{Key: el.Key, Value: rb.materialize(el.Value)})
	}
	return items
}

// Allocated is the physical capacity of key, 0 if the key was never written.
func (rb *RingBuffer) Allocated(key Key) int {
	if f, ok := rb.fields.Get(key); ok {
		return f.allocated
	}
	return 0
}

// Shape is the element shape of key, nil if the key was never written.
func (rb *RingBuffer) Shape(key Key) []int {
	if f, ok := rb.fields.Get(key); ok {
		return append([]int(nil), f.shape...)
	}
	return nil
}

// Read returns a copy of the valid elements of key, oldest first, stacked
// along a leading dimension of length Len(). The second result is false when
// key was never written.
func (rb *RingBuffer) Read(key Key) (Tensor, bool) {
	f, ok := rb.fields.Get(key)
	if !ok {
		return Tensor{}, false
	}
	return rb.materialize(f), true
}

func (rb *RingBuffer) materialize(f *field) Tensor {
	shape := make([]int, 0, len(f.shape)+1)
	shape = append(shape, rb.numStep)
	shape = append(shape, f.shape...)
	return Tensor{Shape: shape, Vec: rb.linear(f)}
}

// linear copies the valid rows of f into a new vector in logical order.
func (rb *RingBuffer) linear(f *field) anyvec.Vector {
	if rb.numStep == rb.maxSteps && rb.top > 0 {
		return f.store.Creator().Concat(f.rows(rb.top, rb.maxSteps), f.rows(0, rb.top))
	}
	return f.rows(0, rb.numStep).Copy()
}

// ReassignDevice moves every store to c. Content is unchanged.
func (rb *RingBuffer) ReassignDevice(c anyvec.Creator) {
	for el := rb.fields.Front(); el != nil; el = el.Next() {
		el.Value.store = moveTo(c, el.Value.store)
	}
	rb.device = c
}

// AppendOne writes x under key as one timestep.
func (rb *RingBuffer) AppendOne(x Tensor, key Key) error {
	return rb.appendStep([]Key{key}, []Tensor{x})
}

// AppendMany writes xs[i] under keys[i] as one timestep. A nil keys uses
// positional keys IndexKey(i).
func (rb *RingBuffer) AppendMany(xs []Tensor, keys []Key) error {
	if keys == nil {
		keys = make([]Key, len(xs))
		for i := range keys {
			keys[i] = IndexKey(i)
		}
	}
	if len(keys) != len(xs) {
		return fmt.Errorf("%w: %d keys for %d elements", ErrKeyCount, len(keys), len(xs))
	}
	return rb.appendStep(keys, xs)
}

// AppendPrefixed writes xs[i] under PrefixedKey(prefix, i) as one timestep.
func (rb *RingBuffer) AppendPrefixed(xs []Tensor, prefix Key) error {
	keys := make([]Key, len(xs))
	for i := range keys {
		keys[i] = PrefixedKey(prefix, i)
	}
	return rb.appendStep(keys, xs)
}

func (rb *RingBuffer) appendStep(keys []Key, xs []Tensor) error {
	if len(xs) == 0 {
		return nil
	}
	seen := make(map[Key]struct{}, len(keys))
	for i, x := range xs {
		if _, ok := seen[keys[i]]; ok {
			return fmt.Errorf("%w: key=%q", ErrDuplicateKey, string(keys[i]))
		}
		seen[keys[i]] = struct{}{}
		if err := rb.checkElement(keys[i], x); err != nil {
			return err
		}
	}

	rb.reserve(rb.top)
	for i, x := range xs {
		f := rb.fieldFor(keys[i], x.Shape, rb.top)
		f.writeRows(rb.top, moveTo(rb.device, x.Vec))
	}

	rb.top++
	if rb.top == rb.maxSteps {
		rb.top = 0
	}
	rb.numStep = min(rb.numStep+1, rb.maxSteps)
	rb.metrics.recordAppend(rb.numStep)
	return nil
}

func (rb *RingBuffer) checkElement(key Key, x Tensor) error {
	if x.Vec == nil {
		return fmt.Errorf("%w: key=%q has no data", ErrInvalidTensor, string(key))
	}
	size := x.Size()
	if size == 0 {
		return fmt.Errorf("%w: key=%q has an empty shape %v", ErrInvalidTensor, string(key), x.Shape)
	}
	if size != x.Vec.Len() {
		return fmt.Errorf("%w: key=%q shape %v needs %d values, got %d",
			ErrInvalidTensor, string(key), x.Shape, size, x.Vec.Len())
	}
	return rb.checkShape(key, x.Shape)
}

func (rb *RingBuffer) checkShape(key Key, shape []int) error {
	if f, ok := rb.fields.Get(key); ok && !sameShape(f.shape, shape) {
		return &ShapeMismatchError{
			Key:  key,
			Want: append([]int(nil), f.shape...),
			Got:  append([]int(nil), shape...),
		}
	}
	return nil
}

// fieldFor returns the field of key, creating one able to hold index
// required when it does not exist yet.
func (rb *RingBuffer) fieldFor(key Key, shape []int, required int) *field {
	if f, ok := rb.fields.Get(key); ok {
		return f
	}
	length := rb.maxSteps
	if rb.numStep < rb.maxSteps {
		length = rb.nextLength(rb.defaultBufferLength, required)
	}
	f := rb.newField(shape, length)
	rb.fields.Set(key, f)
	return f
}

func (rb *RingBuffer) newField(shape []int, length int) *field {
	size := numElements(shape)
	f := &field{
		shape:     append([]int(nil), shape...),
		size:      size,
		allocated: length,
		store:     rb.device.MakeVector(length * size),
	}
	rb.maxAllocated = max(rb.maxAllocated, length)
	rb.metrics.recordAllocated(rb.maxAllocated)
	return f
}

// reserve grows every field so that physical index required is writable.
func (rb *RingBuffer) reserve(required int) {
	for el := rb.fields.Front(); el != nil; el = el.Next() {
		rb.grow(el.Key, el.Value, required)
	}
}

// nextLength doubles current while it does not exceed required, clamped to
// the ceiling.
func (rb *RingBuffer) nextLength(current, required int) int {
	next := max(current, 1)
	for next <= required && next < rb.maxSteps {
		if next > rb.maxSteps/2 {
			return rb.maxSteps
		}
		next *= 2
	}
	return min(next, rb.maxSteps)
}

// grow reallocates f when index required is past its end. Valid content is
// re-linearized to start at physical index 0.
func (rb *RingBuffer) grow(key Key, f *field, required int) {
	if f.allocated > required || f.allocated == rb.maxSteps {
		return
	}
	next := rb.nextLength(f.allocated, required)
	store := f.store.Creator().MakeVector(next * f.size)
	if rb.numStep > 0 {
		store.Slice(0, rb.numStep*f.size).Set(rb.linear(f))
	}
	rb.logger.Debug("grow field",
		zap.String("key", string(key)),
		zap.Int("from", f.allocated),
		zap.Int("to", next),
	)
	f.store = store
	f.allocated = next
	rb.maxAllocated = max(rb.maxAllocated, next)
	rb.metrics.recordGrow(rb.maxAllocated)
}
