package shapeinference

import (
	"testing"

	"github.com/gomlx/boxing/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// Aliases
var (
	Bool = dtypes.Bool
	I32  = dtypes.Int32
	F32  = dtypes.Float32

	S = shapes.Make
)

func view(ranges ...shapes.Range) shapes.SliceView { return shapes.SliceView{Ranges: ranges} }

func TestSlice(t *testing.T) {
	output, err := Slice(S(F32, 10), []int{2}, []int{8}, []int{1})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expected := S(F32, 6); !expected.Equal(output) {
		t.Errorf("Expected %s, got %s", expected, output)
	}

	output, err = Slice(S(Bool, 10, 8, 6), []int{1, 0, 1}, []int{10, 8, 6}, []int{2, 3, 1})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expected := S(Bool, 5, 3, 5); !expected.Equal(output) {
		t.Errorf("Expected %s, got %s", expected, output)
	}

	// Empty slices are allowed, also at the end of the axis.
	output, err = Slice(S(I32, 4, 3), []int{4, 0}, []int{4, 3}, []int{1, 1})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expected := S(I32, 0, 3); !expected.Equal(output) {
		t.Errorf("Expected %s, got %s", expected, output)
	}

	for _, tc := range []struct {
		name                   string
		starts, limits, stride []int
	}{
		{"rank", []int{0}, []int{1, 1}, []int{1, 1}},
		{"stride", []int{0, 0}, []int{1, 1}, []int{1, 0}},
		{"start", []int{5, 0}, []int{5, 1}, []int{1, 1}},
		{"limit", []int{1, 0}, []int{0, 1}, []int{1, 1}},
	} {
		if _, err = Slice(S(F32, 4, 3), tc.starts, tc.limits, tc.stride); err == nil {
			t.Errorf("expected error for invalid %s, got nil", tc.name)
		}
	}
}

func TestSliceView(t *testing.T) {
	// Operand holds rows [2:4] of a [4, 6] logical blob.
	operand := S(F32, 2, 6)
	held := view(shapes.Range{Begin: 2, End: 4}, shapes.Range{End: 6})
	output, err := SliceView(operand, held, view(shapes.Range{Begin: 3, End: 4}, shapes.Range{Begin: 0, End: 3}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expected := S(F32, 1, 3); !expected.Equal(output) {
		t.Errorf("Expected %s, got %s", expected, output)
	}

	if _, err = SliceView(operand, held, view(shapes.Range{Begin: 1, End: 3}, shapes.Range{End: 6})); err == nil {
		t.Error("expected error for sub-view outside of the view, got nil")
	}
	if _, err = SliceView(S(F32, 3, 6), held, held); err == nil {
		t.Error("expected error for operand not matching its view, got nil")
	}
}

func TestSliceBoxing(t *testing.T) {
	in0 := view(shapes.Range{Begin: 0, End: 2}, shapes.Range{End: 3})
	in1 := view(shapes.Range{Begin: 2, End: 4}, shapes.Range{End: 3})
	out := view(shapes.Range{Begin: 0, End: 4}, shapes.Range{End: 3})
	output, err := SliceBoxing([]shapes.Shape{S(F32, 2, 3), S(F32, 2, 3)}, []shapes.SliceView{in0, in1}, out)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expected := S(F32, 4, 3); !expected.Equal(output) {
		t.Errorf("Expected %s, got %s", expected, output)
	}

	if _, err = SliceBoxing([]shapes.Shape{S(F32, 2, 3), S(I32, 2, 3)}, []shapes.SliceView{in0, in1}, out); err == nil {
		t.Error("expected error for mismatched dtypes, got nil")
	}
	if _, err = SliceBoxing([]shapes.Shape{S(F32, 3, 3)}, []shapes.SliceView{in0}, out); err == nil {
		t.Error("expected error for input not matching its view, got nil")
	}
	if _, err = SliceBoxing(nil, nil, out); err == nil {
		t.Error("expected error for no inputs, got nil")
	}
}

func TestCollectiveOps(t *testing.T) {
	operand := S(F32, 2, 4)
	replicaGroups := [][]int{{0, 1}, {2, 3}}

	t.Run("AllGather", func(t *testing.T) {
		output, err := AllGather(operand, replicaGroups, 1)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		expected := S(F32, 2, 8)
		if !expected.Equal(output) {
			t.Errorf("Expected %s, got %s", expected, output)
		}

		_, err = AllGather(operand, replicaGroups, 2)
		if err == nil {
			t.Error("expected error for AllGather with invalid dimension, got nil")
		}
		_, err = AllGather(operand, [][]int{{0, 1}, {2}}, 0)
		if err == nil {
			t.Error("expected error for AllGather with uneven replica groups, got nil")
		}
	})

	t.Run("ReduceScatter", func(t *testing.T) {
		output, err := ReduceScatter(operand, replicaGroups, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		expected := S(F32, 1, 4)
		if !expected.Equal(output) {
			t.Errorf("Expected %s, got %s", expected, output)
		}

		_, err = ReduceScatter(S(F32, 3), replicaGroups, 0)
		if err == nil {
			t.Error("expected error for ReduceScatter with non-divisible dimension, got nil")
		}
	})

	t.Run("AllToAll", func(t *testing.T) {
		output, err := AllToAll(operand, replicaGroups, 1, 0, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		expected := S(F32, 4, 2)
		if !expected.Equal(output) {
			t.Errorf("Expected %s, got %s", expected, output)
		}

		_, err = AllToAll(operand, replicaGroups, 2, 0, 2)
		if err == nil {
			t.Error("expected error for AllToAll with invalid dimension, got nil")
		}
	})

	t.Run("AllReduce", func(t *testing.T) {
		output, err := AllReduce(operand, replicaGroups)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !operand.Equal(output) {
			t.Errorf("Expected %s, got %s", operand, output)
		}
		_, err = AllReduce(S(Bool, 2), replicaGroups)
		if err == nil {
			t.Error("expected error for AllReduce of booleans, got nil")
		}
	})
}

func TestAdjustAxisToRank(t *testing.T) {
	if axis, err := AdjustAxisToRank(-1, 3); err != nil || axis != 2 {
		t.Errorf("expected axis 2, got %d (err=%v)", axis, err)
	}
	if _, err := AdjustAxisToRank(3, 3); err == nil {
		t.Error("expected error for out-of-range axis, got nil")
	}
}
