package bn_test

import (
	"errors"
	"math"
	"testing"

	"github.com/probkit/beliefnet/internal/bn"
)

func mustTensor(t *testing.T, dims []int) *bn.Tensor {
	t.Helper()
	tensor, err := bn.NewTensor(dims)
	if err != nil {
		t.Fatalf("NewTensor(%v) error: %v", dims, err)
	}
	return tensor
}

func TestTensor_SetGetRoundTrip(t *testing.T) {
	tensor := mustTensor(t, []int{3, 2})

	if err := tensor.Set([]int{1}, 0, 0.25); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err := tensor.At([]int{1}, 0)
	if err != nil {
		t.Fatalf("At error: %v", err)
	}
	if got != 0.25 {
		t.Errorf("expected exactly 0.25 back, got %v", got)
	}

	// Other cells stay zero: no normalization side effect.
	other, err := tensor.At([]int{1}, 1)
	if err != nil {
		t.Fatalf("At error: %v", err)
	}
	if other != 0 {
		t.Errorf("neighbouring cell modified: %v", other)
	}
}

func TestTensor_SetErrors(t *testing.T) {
	tensor := mustTensor(t, []int{2, 3})

	cases := []struct {
		name      string
		parentIdx []int
		own       int
		value     float64
		want      error
	}{
		{"value above one", []int{0}, 0, 1.5, bn.ErrProbRange},
		{"negative value", []int{0}, 0, -0.1, bn.ErrProbRange},
		{"parent index out of bounds", []int{2}, 0, 0.5, bn.ErrIndexBounds},
		{"own index out of bounds", []int{0}, 3, 0.5, bn.ErrIndexBounds},
		{"parent arity mismatch", []int{0, 0}, 0, 0.5, bn.ErrIndexBounds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tensor.Set(tc.parentIdx, tc.own, tc.value)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTensor_NewTensorRejectsBadDims(t *testing.T) {
	if _, err := bn.NewTensor(nil); !errors.Is(err, bn.ErrIndexBounds) {
		t.Errorf("empty dims: expected ErrIndexBounds, got %v", err)
	}
	if _, err := bn.NewTensor([]int{3, 0}); !errors.Is(err, bn.ErrIndexBounds) {
		t.Errorf("zero dim: expected ErrIndexBounds, got %v", err)
	}
}

func TestTensor_NormalizeThenIsValid(t *testing.T) {
	tensor := mustTensor(t, []int{2, 2})
	// Unnormalized counts per parent configuration.
	tensor.Set([]int{0}, 0, 0.2)
	tensor.Set([]int{0}, 1, 0.6)
	tensor.Set([]int{1}, 0, 1.0)
	tensor.Set([]int{1}, 1, 1.0)

	tensor.Normalize()
	if !tensor.IsValid(1e-6) {
		t.Fatal("normalized tensor should be valid")
	}

	got, _ := tensor.At([]int{0}, 0)
	if math.Abs(got-0.25) > 1e-9 {
		t.Errorf("expected 0.25, got %v", got)
	}
}

func TestTensor_NormalizeLeavesZeroSlices(t *testing.T) {
	tensor := mustTensor(t, []int{2, 2})
	// Only one parent configuration gets mass.
	tensor.Set([]int{0}, 0, 0.5)
	tensor.Set([]int{0}, 1, 0.5)

	tensor.Normalize()

	for own := 0; own < 2; own++ {
		v, _ := tensor.At([]int{1}, own)
		if v != 0 {
			t.Errorf("all-zero slice should stay untouched, got %v", v)
		}
	}
	if tensor.IsValid(1e-6) {
		t.Error("tensor with an all-zero slice should not be valid")
	}
}

func TestTensor_SetValues(t *testing.T) {
	tensor := mustTensor(t, []int{3})
	if err := tensor.SetValues([]float64{0.7, 0.2, 0.1}); err != nil {
		t.Fatalf("SetValues error: %v", err)
	}
	if err := tensor.SetValues([]float64{0.5, 0.5}); !errors.Is(err, bn.ErrIndexBounds) {
		t.Errorf("length mismatch: expected ErrIndexBounds, got %v", err)
	}
	if err := tensor.SetValues([]float64{0.5, 0.5, 1.2}); !errors.Is(err, bn.ErrProbRange) {
		t.Errorf("out-of-range value: expected ErrProbRange, got %v", err)
	}
}
