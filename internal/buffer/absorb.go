package buffer

import (
	"github.com/unixpickle/anyvec"
	"go.uber.org/zap"
)

// regime classifies how an absorbed span lands in the destination.
type regime int

const (
	regimeNoop       regime = iota // source empty
	regimeEmptyTail                // empty destination, source at or over the ceiling
	regimeEmptyCopy                // empty destination, source under the ceiling
	regimeFits                     // combined occupancy under the ceiling
	regimeWrap                     // combined occupancy at the ceiling, span within it
	regimeOverflow                 // span alone over the ceiling
)

func (r regime) String() string {
	switch r {
	case regimeNoop:
		return "noop"
	case regimeEmptyTail:
		return "empty_tail"
	case regimeEmptyCopy:
		return "empty_copy"
	case regimeFits:
		return "fits"
	case regimeWrap:
		return "wrap"
	case regimeOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// span is the valid content of one source key, already on the destination
// device.
type span struct {
	key   Key
	shape []int
	size  int
	rows  anyvec.Vector
}

// tail is the last n rows of the span.
func (s span) tail(total, n int) anyvec.Vector {
	return s.rows.Slice((total-n)*s.size, total*s.size)
}

// Absorb appends the valid content of src, oldest first, as src.Len()
// timesteps. Data is copied; src is left untouched. Keys missing from src
// receive zero rows for the absorbed span and keys new to the buffer are
// created with zero rows before it.
func (rb *RingBuffer) Absorb(src *RingBuffer) error {
	if src == nil || src.numStep == 0 {
		rb.metrics.recordAbsorb(regimeNoop, rb.numStep)
		return nil
	}

	n := src.numStep
	spans := make([]span, 0, src.fields.Len())
	for el := src.fields.Front(); el != nil; el = el.Next() {
		if err := rb.checkShape(el.Key, el.Value.shape); err != nil {
			return err
		}
		spans = append(spans, span{
			key:   el.Key,
			shape: el.Value.shape,
			size:  el.Value.size,
			rows:  moveTo(rb.device, src.linear(el.Value)),
		})
	}

	var r regime
	if rb.numStep == 0 {
		r = rb.absorbIntoEmpty(spans, n)
	} else {
		r = rb.absorbIntoFilled(spans, n)
	}

	rb.logger.Debug("absorb buffer",
		zap.Stringer("regime", r),
		zap.Int("steps", n),
		zap.Int("top", rb.top),
		zap.Int("occupancy", rb.numStep),
	)
	rb.metrics.recordAbsorb(r, rb.numStep)
	return nil
}

func (rb *RingBuffer) absorbIntoEmpty(spans []span, n int) regime {
	if rb.maxSteps <= n {
		for _, s := range spans {
			f := rb.newField(s.shape, rb.maxSteps)
			f.writeRows(0, s.tail(n, rb.maxSteps))
			rb.fields.Set(s.key, f)
		}
		rb.top = 0
		rb.numStep = rb.maxSteps
		return regimeEmptyTail
	}

	length := rb.nextLength(rb.defaultBufferLength, n)
	for _, s := range spans {
		f := rb.newField(s.shape, length)
		f.writeRows(0, s.rows)
		rb.fields.Set(s.key, f)
	}
	rb.top = n
	rb.numStep = n
	return regimeEmptyCopy
}

func (rb *RingBuffer) absorbIntoFilled(spans []span, n int) regime {
	m := rb.maxSteps
	total := rb.numStep + n

	var r regime
	var nextTop int
	switch {
	case total < m:
		r = regimeFits
		nextTop = rb.top + n
	case n <= m:
		r = regimeWrap
		nextTop = (rb.top + n) % m
	default:
		r = regimeOverflow
		nextTop = (rb.top + n) % m
	}

	spans = rb.padSpans(spans, n)

	switch r {
	case regimeFits:
		rb.reserve(nextTop)
		for _, s := range spans {
			f := rb.fieldFor(s.key, s.shape, nextTop)
			f.writeRows(rb.top, s.rows)
		}
	case regimeWrap:
		rb.reserve(m - 1)
		for _, s := range spans {
			f := rb.fieldFor(s.key, s.shape, m-1)
			switch {
			case rb.top == 0:
				f.writeRows(0, s.rows)
			case rb.top+n < m:
				f.writeRows(rb.top, s.rows)
			default:
				head := (m - rb.top) * s.size
				f.writeRows(rb.top, s.rows.Slice(0, head))
				f.writeRows(0, s.rows.Slice(head, n*s.size))
			}
		}
	case regimeOverflow:
		for _, s := range spans {
			f := rb.newField(s.shape, m)
			tail := s.tail(n, m)
			if nextTop == 0 {
				f.writeRows(0, tail)
			} else {
				split := (m - nextTop) * s.size
				f.writeRows(0, tail.Slice(split, m*s.size))
				f.writeRows(nextTop, tail.Slice(0, split))
			}
			rb.fields.Set(s.key, f)
		}
	}

	rb.top = nextTop
	rb.numStep = min(total, m)
	return r
}

// padSpans adds zero spans for destination keys the source does not carry.
func (rb *RingBuffer) padSpans(spans []span, n int) []span {
	seen := make(map[Key]bool, len(spans))
	for _, s := range spans {
		seen[s.key] = true
	}
	for el := rb.fields.Front(); el != nil; el = el.Next() {
		if seen[el.Key] {
			continue
		}
		f := el.Value
		spans = append(spans, span{
			key:   el.Key,
			shape: f.shape,
			size:  f.size,
			rows:  rb.device.MakeVector(n * f.size),
		})
	}
	return spans
}
