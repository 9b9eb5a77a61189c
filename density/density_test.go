package density

import (
	"errors"
	"math"
	"testing"

	"github.com/charlerive/volsurface/blackscholes"
	"github.com/charlerive/volsurface/smile"
)

func flatSmile(lo, hi, step, vol float64) ([]float64, []float64) {
	ks, vs := make([]float64, 0), make([]float64, 0)
	for k := lo; k <= hi+1e-9; k += step {
		ks = append(ks, k)
		vs = append(vs, vol)
	}
	return ks, vs
}

func TestExtract_FlatVolMatchesLognormal(t *testing.T) {
	const (
		forward = 100.0
		T       = 1.0
		r       = 0.01
		vol     = 0.2
	)
	ks, vs := flatSmile(50, 150, 5, vol)
	c, err := Extract(ks, vs, forward, T, r)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(c.Strikes) != DefaultPoints || len(c.Density) != DefaultPoints {
		t.Fatalf("got %d/%d points, want %d", len(c.Strikes), len(c.Density), DefaultPoints)
	}
	if c.Strikes[0] != 50 || math.Abs(c.Strikes[DefaultPoints-1]-150) > 1e-9 {
		t.Errorf("grid spans [%v, %v]", c.Strikes[0], c.Strikes[DefaultPoints-1])
	}

	worst := 0.0
	for i, k := range c.Strikes {
		if k < 80 || k > 120 {
			continue
		}
		want := blackscholes.NewBSWithIv(blackscholes.Call, forward, k, T, r, vol).DualGamma() * math.Exp(r*T)
		worst = math.Max(worst, math.Abs(c.Density[i]-want))
	}
	if worst > 1e-3 {
		t.Errorf("max density error on [80, 120] = %v", worst)
	}

	if area := c.Integral(); area < 0.95 || area > 1.0 {
		t.Errorf("integral = %v, want close to the mass inside [50, 150]", area)
	}
	if n := c.NegativeCount(); n != 0 {
		t.Errorf("flat smile produced %d negative points", n)
	}
}

func TestExtract_TwoStrikes(t *testing.T) {
	c, err := Extract([]float64{95, 105}, []float64{0.20, 0.22}, 100, 0.5, 0.01)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(c.Density) != DefaultPoints || c.Strikes[0] != 95 {
		t.Errorf("curve = %d points from %v", len(c.Density), c.Strikes[0])
	}
	for _, d := range c.Density {
		if math.IsNaN(d) {
			t.Fatal("density has NaN")
		}
	}
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ks, vs  []float64
		T       float64
		wantErr error
	}{
		{"one strike", []float64{100}, []float64{0.2}, 1, ErrInsufficientInput},
		{"repeated strike", []float64{100, 100}, []float64{0.2, 0.3}, 1, ErrInsufficientInput},
		{"nan vol", []float64{90, 100}, []float64{0.2, math.NaN()}, 1, ErrInsufficientInput},
		{"expired", []float64{90, 100}, []float64{0.2, 0.2}, 0, nil},
		{"mismatched", []float64{90, 100}, []float64{0.2}, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.ks, tt.vs, 100, tt.T, 0.01)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtract_KeepsNegativeArtifacts(t *testing.T) {
	ks := []float64{80, 85, 90, 95, 100, 105, 110, 115, 120}
	vs := []float64{0.2, 0.3, 0.2, 0.3, 0.2, 0.3, 0.2, 0.3, 0.2}
	c, err := Extract(ks, vs, 100, 1, 0.01)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if c.NegativeCount() == 0 {
		t.Error("zig-zag smile produced no negative density")
	}
}

func TestFromSmile(t *testing.T) {
	ks, vs := flatSmile(80, 120, 5, 0.25)
	sm := &smile.Smile{Strikes: ks, ImpliedVols: vs, Forward: 100, TimeToExpiry: 0.5}
	c, err := FromSmile(sm, 0.02, WithPoints(101))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Strikes) != 101 {
		t.Errorf("got %d points, want 101", len(c.Strikes))
	}
}

func TestGradient(t *testing.T) {
	x := []float64{0, 1, 3, 4}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = v * v
	}
	got := Gradient(y, x)
	want := []float64{1, 2, 6, 7}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("Gradient[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func BenchmarkExtract(b *testing.B) {
	ks, vs := flatSmile(50, 150, 5, 0.2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Extract(ks, vs, 100, 1, 0.01)
	}
}
