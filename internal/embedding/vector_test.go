package embedding

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{
			name: "identical vectors",
			a:    []float32{1, 2, 3},
			b:    []float32{1, 2, 3},
			want: 1.0,
		},
		{
			name: "orthogonal vectors",
			a:    []float32{1, 0},
			b:    []float32{0, 1},
			want: 0.0,
		},
		{
			name: "opposite vectors",
			a:    []float32{1, 0},
			b:    []float32{-1, 0},
			want: -1.0,
		},
		{
			name: "scaled vectors keep similarity",
			a:    []float32{1, 1},
			b:    []float32{5, 5},
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine_Anomalies(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"zero magnitude left", []float32{0, 0}, []float32{1, 1}},
		{"zero magnitude right", []float32{1, 1}, []float32{0, 0}},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}},
		{"empty vectors", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); !math.IsNaN(got) {
				t.Errorf("Cosine() = %v, want NaN", got)
			}
		})
	}
}

func TestCentroid(t *testing.T) {
	got := Centroid([][]float32{
		{1, 0, 3},
		{3, 2, 5},
	})
	want := []float32{2, 1, 4}
	if len(got) != len(want) {
		t.Fatalf("Centroid length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Centroid[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCentroid_Empty(t *testing.T) {
	if got := Centroid(nil); got != nil {
		t.Errorf("Centroid(nil) = %v, want nil", got)
	}
}
