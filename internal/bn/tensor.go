package bn

import (
	"fmt"
	"math"
)

// normEpsilon guards against dividing an all-zero slice during Normalize.
const normEpsilon = 1e-10

// Tensor is a dense conditional probability table P(self | parents).
// The last dimension is the variable's own state count; the preceding
// dimensions are the parent state counts in ascending parent-id order.
// Storage is row-major with the last dimension fastest-varying.
type Tensor struct {
	dims    []int
	strides []int
	values  []float64
}

// NewTensor allocates a zero-filled tensor and precomputes strides
// right-to-left (last dimension stride 1).
func NewTensor(dims []int) (*Tensor, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: tensor needs at least one dimension", ErrIndexBounds)
	}
	size := 1
	for i, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("%w: dimension %d is %d", ErrIndexBounds, i, d)
		}
		size *= d
	}
	t := &Tensor{
		dims:    append([]int(nil), dims...),
		strides: make([]int, len(dims)),
		values:  make([]float64, size),
	}
	t.strides[len(dims)-1] = 1
	for i := len(dims) - 2; i >= 0; i-- {
		t.strides[i] = t.strides[i+1] * t.dims[i+1]
	}
	return t, nil
}

// Dims returns a copy of the dimension sizes.
func (t *Tensor) Dims() []int { return append([]int(nil), t.dims...) }

// Size returns the total number of entries.
func (t *Tensor) Size() int { return len(t.values) }

// NumParentConfigs returns the number of parent-state configurations
// (product of all dimensions except the last).
func (t *Tensor) NumParentConfigs() int {
	return len(t.values) / t.dims[len(t.dims)-1]
}

func (t *Tensor) flatIndex(parentIdx []int, own int) (int, error) {
	if len(parentIdx) != len(t.dims)-1 {
		return 0, fmt.Errorf("%w: got %d parent indices, tensor has %d parent dimensions",
			ErrIndexBounds, len(parentIdx), len(t.dims)-1)
	}
	flat := 0
	for i, idx := range parentIdx {
		if idx < 0 || idx >= t.dims[i] {
			return 0, fmt.Errorf("%w: parent index %d is %d (dimension size %d)",
				ErrIndexBounds, i, idx, t.dims[i])
		}
		flat += idx * t.strides[i]
	}
	last := len(t.dims) - 1
	if own < 0 || own >= t.dims[last] {
		return 0, fmt.Errorf("%w: own-state index %d (dimension size %d)",
			ErrIndexBounds, own, t.dims[last])
	}
	return flat + own*t.strides[last], nil
}

// Set writes P(self=own | parents=parentIdx). The value must lie in [0, 1].
func (t *Tensor) Set(parentIdx []int, own int, p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %g", ErrProbRange, p)
	}
	flat, err := t.flatIndex(parentIdx, own)
	if err != nil {
		return err
	}
	t.values[flat] = p
	return nil
}

// At reads the stored value for the given indices. No normalization is
// applied: At returns exactly what Set stored.
func (t *Tensor) At(parentIdx []int, own int) (float64, error) {
	flat, err := t.flatIndex(parentIdx, own)
	if err != nil {
		return 0, err
	}
	return t.values[flat], nil
}

// Normalize rescales every parent-configuration slice to sum to 1.
// All-zero slices are left untouched. Because the own-state dimension is
// the fastest-varying, each slice is contiguous in the flat storage.
func (t *Tensor) Normalize() {
	n := t.dims[len(t.dims)-1]
	for off := 0; off < len(t.values); off += n {
		slice := t.values[off : off+n]
		sum := 0.0
		for _, v := range slice {
			sum += v
		}
		if sum <= normEpsilon {
			continue
		}
		for i := range slice {
			slice[i] /= sum
		}
	}
}

// IsValid reports whether every parent-configuration slice sums to 1
// within the given tolerance.
func (t *Tensor) IsValid(tolerance float64) bool {
	n := t.dims[len(t.dims)-1]
	for off := 0; off < len(t.values); off += n {
		sum := 0.0
		for _, v := range t.values[off : off+n] {
			sum += v
		}
		if math.Abs(sum-1.0) > tolerance {
			return false
		}
	}
	return true
}

// Values returns a copy of the flat storage (row-major, last dimension
// fastest-varying). Used by codecs; the tensor itself stays private.
func (t *Tensor) Values() []float64 {
	return append([]float64(nil), t.values...)
}

// SetValues replaces the flat storage wholesale. The slice length must
// equal the tensor size and every entry must lie in [0, 1].
func (t *Tensor) SetValues(vals []float64) error {
	if len(vals) != len(t.values) {
		return fmt.Errorf("%w: got %d values, tensor holds %d", ErrIndexBounds, len(vals), len(t.values))
	}
	for i, v := range vals {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: value %d is %g", ErrProbRange, i, v)
		}
	}
	copy(t.values, vals)
	return nil
}

// clone returns a deep copy of the tensor.
func (t *Tensor) clone() *Tensor {
	return &Tensor{
		dims:    append([]int(nil), t.dims...),
		strides: append([]int(nil), t.strides...),
		values:  append([]float64(nil), t.values...),
	}
}
