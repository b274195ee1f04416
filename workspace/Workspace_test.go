package workspace

import (
	"testing"

	"gorgonia.org/tensor"
)

func vec(data ...float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(data)),
		tensor.WithBacking(data))
}

func boolVec(data ...bool) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(data)),
		tensor.WithBacking(data))
}

func TestSetGet(t *testing.T) {
	w := New()

	if err := w.Set(RewardChannel, 0, vec(1, 2)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Set(RewardChannel, 1, vec(3, 4)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := w.Get(RewardChannel, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data := Float64s(got)
	if data[0] != 3 || data[1] != 4 {
		t.Errorf("get returned %v, want [3 4]", data)
	}

	// A rewrite at an existing time step must be returned exactly
	if err := w.Set(RewardChannel, 1, vec(5, 6)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err = w.Get(RewardChannel, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data := Float64s(got); data[0] != 5 || data[1] != 6 {
		t.Errorf("get after rewrite returned %v, want [5 6]", data)
	}
}

func TestSetWriteAheadGap(t *testing.T) {
	w := New()
	if err := w.Set(RewardChannel, 0, vec(1, 2)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Set(RewardChannel, 2, vec(1, 2)); err == nil {
		t.Error("set should fail when skipping ahead of the channel length")
	}
}

func TestSetShapeMismatch(t *testing.T) {
	w := New()
	if err := w.Set(ObsChannel, 0, tensor.New(tensor.WithShape(2, 3),
		tensor.WithBacking(make([]float64, 6)))); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Different feature size for the same channel
	if err := w.Set(ObsChannel, 1, tensor.New(tensor.WithShape(2, 4),
		tensor.WithBacking(make([]float64, 8)))); err == nil {
		t.Error("set should fail on a feature shape mismatch")
	}

	// Different batch size for a new channel
	if err := w.Set(RewardChannel, 0, vec(1, 2, 3)); err == nil {
		t.Error("set should fail on a batch size mismatch")
	}
}

func TestGetMissingEntry(t *testing.T) {
	w := New()
	if _, err := w.Get(ObsChannel, 0); err == nil {
		t.Error("get should fail on an unwritten channel")
	}

	if err := w.Set(ObsChannel, 0, vec(1, 2)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := w.Get(ObsChannel, 1); err == nil {
		t.Error("get should fail on an unwritten time step")
	}
}

func TestSlice(t *testing.T) {
	w := New()
	for i := 0; i < 3; i++ {
		f := float64(i)
		if err := w.Set(RewardChannel, i, vec(f, f+10)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	stacked, err := w.Slice(RewardChannel)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if !stacked.Shape().Eq(tensor.Shape{3, 2}) {
		t.Fatalf("slice shape is %v, want (3, 2)", stacked.Shape())
	}
	want := []float64{0, 10, 1, 11, 2, 12}
	for i, v := range Float64s(stacked) {
		if v != want[i] {
			t.Errorf("slice data[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestCopyNLastSteps(t *testing.T) {
	w := New()
	for i := 0; i < 5; i++ {
		f := float64(i)
		if err := w.Set(RewardChannel, i, vec(f, -f)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := w.Set(DoneChannel, i, boolVec(i == 3, false)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	// Remember the last 2 steps before the copy
	wantReward := make([][]float64, 2)
	wantDone := make([][]bool, 2)
	for i := 0; i < 2; i++ {
		r, err := w.Get(RewardChannel, 3+i)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		wantReward[i] = Float64s(r)
		d, err := w.Get(DoneChannel, 3+i)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		wantDone[i] = Bools(d)
	}

	if err := w.CopyNLastSteps(2); err != nil {
		t.Fatalf("copynlaststeps: %v", err)
	}

	if w.TimeSize() != 2 {
		t.Fatalf("time size after copy is %d, want 2", w.TimeSize())
	}
	for i := 0; i < 2; i++ {
		r, err := w.Get(RewardChannel, i)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		for j, v := range Float64s(r) {
			if v != wantReward[i][j] {
				t.Errorf("reward[%d][%d] = %v, want %v", i, j, v,
					wantReward[i][j])
			}
		}
		d, err := w.Get(DoneChannel, i)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		for j, v := range Bools(d) {
			if v != wantDone[i][j] {
				t.Errorf("done[%d][%d] = %v, want %v", i, j, v,
					wantDone[i][j])
			}
		}
	}
}

func TestCopyNLastStepsTooFew(t *testing.T) {
	w := New()
	if err := w.Set(RewardChannel, 0, vec(1)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.CopyNLastSteps(2); err == nil {
		t.Error("copynlaststeps should fail when a channel is too short")
	}
}

func TestZeroGradDetaches(t *testing.T) {
	w := New()
	backing := []float64{1, 2}
	v := tensor.New(tensor.WithShape(2), tensor.WithBacking(backing))
	if err := w.Set(VValueChannel, 0, v); err != nil {
		t.Fatalf("set: %v", err)
	}

	w.ZeroGrad()

	// Mutating the original backing array must not change the stored
	// value
	backing[0] = -100
	got, err := w.Get(VValueChannel, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data := Float64s(got); data[0] != 1 || data[1] != 2 {
		t.Errorf("zerograd did not preserve values: got %v, want [1 2]",
			data)
	}
}
