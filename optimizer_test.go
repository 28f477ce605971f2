package splat

import (
	"errors"
	"math"
	"testing"
)

func testAdamConfig() AdamConfig {
	return AdamConfig{Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

func TestAdamZeroGradientIsNoOp(t *testing.T) {
	a := NewAdam(GroupMeans, TensorShape{Kind: ShapeVec3}, 0.1, testAdamConfig(), 2)
	params := []float64{1, 2, 3, 4, 5, 6}
	want := append([]float64(nil), params...)
	for range 3 {
		if err := a.Step(params, make([]float64, 6)); err != nil {
			t.Fatal(err)
		}
	}
	for i := range params {
		if params[i] != want[i] {
			t.Errorf("params[%d] = %v, want %v", i, params[i], want[i])
		}
	}
	if a.Steps() != 3 {
		t.Errorf("Steps() = %d, want 3", a.Steps())
	}
}

func TestAdamUpdate(t *testing.T) {
	cfg := testAdamConfig()
	lr := 0.01
	a := NewAdam(GroupOpacity, TensorShape{Kind: ShapeScalar}, lr, cfg, 1)
	p := []float64{0}
	grads := []float64{0.5, -0.25, 1}

	// Reference recursion.
	var m, v, want float64
	for i, g := range grads {
		tt := float64(i + 1)
		m = cfg.Beta1*m + (1-cfg.Beta1)*g
		v = cfg.Beta2*v + (1-cfg.Beta2)*g*g
		bc1 := 1 - math.Pow(cfg.Beta1, tt)
		bc2 := 1 - math.Pow(cfg.Beta2, tt)
		want -= lr * math.Sqrt(bc2) / bc1 * (m / bc1) / (math.Sqrt(v/bc2) + cfg.Epsilon)

		if err := a.Step(p, []float64{g}); err != nil {
			t.Fatal(err)
		}
		if math.Abs(p[0]-want) > 1e-15 {
			t.Errorf("after step %d: param = %v, want %v", i+1, p[0], want)
		}
	}
}

func TestAdamFirstStepMagnitude(t *testing.T) {
	cfg := testAdamConfig()
	a := NewAdam(GroupOpacity, TensorShape{Kind: ShapeScalar}, 1, cfg, 1)
	p := []float64{0}
	if err := a.Step(p, []float64{3}); err != nil {
		t.Fatal(err)
	}
	// m̂ = g and √v̂ = |g| on the first step, leaving lr·√(1-β2)/(1-β1)
	// scaled by |g|/(|g|+ε).
	want := -math.Sqrt(1-cfg.Beta2) / (1 - cfg.Beta1) * 3 / (3 + cfg.Epsilon)
	if math.Abs(p[0]-want) > 1e-12 {
		t.Errorf("param = %v, want %v", p[0], want)
	}
}

func TestAdamTinyGradientMovesLittle(t *testing.T) {
	a := NewAdam(GroupMeans, TensorShape{Kind: ShapeScalar}, 1, DefaultConfig().Adam, 1)
	p := []float64{0}
	if err := a.Step(p, []float64{1e-12}); err != nil {
		t.Fatal(err)
	}
	if math.Abs(p[0]) > 1e-3 {
		t.Errorf("step on gradient 1e-12 moved param by %v, want < 1e-3", p[0])
	}
}

func TestAdamLengthMismatch(t *testing.T) {
	a := NewAdam(GroupQuats, TensorShape{Kind: ShapeVec4}, 0.1, testAdamConfig(), 2)
	if err := a.Step(make([]float64, 8), make([]float64, 4)); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Step error = %v, want ErrLengthMismatch", err)
	}
}

func TestAdamGatherGrowReset(t *testing.T) {
	a := NewAdam(GroupSHRest, TensorShape{Kind: ShapeVec3List, Len: 3}, 0.1, testAdamConfig(), 2)
	params := make([]float64, 18)
	grads := make([]float64, 18)
	for i := range grads {
		grads[i] = float64(i + 1)
	}
	if err := a.Step(params, grads); err != nil {
		t.Fatal(err)
	}
	a.Gather([]int{1, 1, 0})
	if a.Len() != 3 {
		t.Fatalf("Len() after Gather = %d, want 3", a.Len())
	}
	if a.m[0] != a.m[9] || a.m[18] != (1-0.9)*1 {
		t.Errorf("Gather moved moments incorrectly: m[0]=%v m[9]=%v m[18]=%v", a.m[0], a.m[9], a.m[18])
	}
	a.Grow(2)
	if a.Len() != 5 {
		t.Fatalf("Len() after Grow = %d, want 5", a.Len())
	}
	for i := 27; i < 45; i++ {
		if a.m[i] != 0 || a.v[i] != 0 {
			t.Fatalf("grown moment %d = (%v, %v), want zero", i, a.m[i], a.v[i])
		}
	}
	a.ResetState()
	for i := range a.m {
		if a.m[i] != 0 || a.v[i] != 0 {
			t.Fatalf("moment %d after ResetState = (%v, %v), want zero", i, a.m[i], a.v[i])
		}
	}
	if a.Steps() != 1 {
		t.Errorf("Steps() after ResetState = %d, want 1", a.Steps())
	}
}

func TestSchedulerLR(t *testing.T) {
	opt := NewAdam(GroupMeans, TensorShape{Kind: ShapeVec3}, 0, testAdamConfig(), 0)
	s := NewScheduler(opt, 1e-2, 1e-4, 100)
	tests := []struct {
		step int
		want float64
	}{
		{0, 1e-2},
		{50, 1e-3},
		{100, 1e-4},
		{200, 1e-4},
	}
	for _, tt := range tests {
		if got := s.LR(tt.step); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("LR(%d) = %v, want %v", tt.step, got, tt.want)
		}
	}
	s.Step(50)
	if math.Abs(opt.LR-1e-3) > 1e-12 {
		t.Errorf("optimizer LR after Step(50) = %v, want 1e-3", opt.LR)
	}
}
