package knn

import (
	"math"
	"testing"
)

func TestMeanDistances(t *testing.T) {
	// Four points on a line at x = 0, 1, 3, 6.
	xyz := []float64{
		0, 0, 0,
		1, 0, 0,
		3, 0, 0,
		6, 0, 0,
	}
	tests := []struct {
		k    int
		want []float64
	}{
		{1, []float64{1, 1, 2, 3}},
		{2, []float64{2, 1.5, 2.5, 4}},
		{3, []float64{10.0 / 3, 8.0 / 3, 8.0 / 3, 14.0 / 3}},
	}
	for _, tt := range tests {
		got := MeanDistances(xyz, tt.k, 1)
		for i := range tt.want {
			if math.Abs(got[i]-tt.want[i]) > 1e-12 {
				t.Errorf("k=%d: MeanDistances[%d] = %v, want %v", tt.k, i, got[i], tt.want[i])
			}
		}
	}
}

func TestMeanDistancesFewerPointsThanK(t *testing.T) {
	got := MeanDistances([]float64{0, 0, 0, 0, 2, 0}, 3, 1)
	for i, d := range got {
		if d != 2 {
			t.Errorf("MeanDistances[%d] = %v, want 2", i, d)
		}
	}
}

func TestMeanDistancesSinglePoint(t *testing.T) {
	got := MeanDistances([]float64{1, 2, 3}, 3, 0.5)
	if len(got) != 1 || got[0] != 0.5 {
		t.Errorf("MeanDistances = %v, want [0.5]", got)
	}
}

func TestMeanDistancesDuplicates(t *testing.T) {
	got := MeanDistances([]float64{1, 1, 1, 1, 1, 1}, 1, 7)
	for i, d := range got {
		if d != 0 {
			t.Errorf("MeanDistances[%d] = %v, want 0", i, d)
		}
	}
}
