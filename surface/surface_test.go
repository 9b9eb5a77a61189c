package surface

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/charlerive/volsurface/smile"
	"github.com/charlerive/volsurface/svi_volatility"
)

func plane(m, t float64) float64 {
	return 0.2 + 0.1*(m-1) + 0.05*t
}

func bowl(m, t float64) float64 {
	return 0.2 + 0.3*(m-1)*(m-1) + 0.02*t
}

// makeSmiles builds smiles at the given times over strikes [lo, hi] (forward 100).
func makeSmiles(times []float64, lo, hi []float64, f func(m, t float64) float64) []*smile.Smile {
	out := make([]*smile.Smile, 0, len(times))
	for i, t := range times {
		s := &smile.Smile{Forward: 100, TimeToExpiry: t}
		for k := lo[i]; k <= hi[i]+1e-9; k += 5 {
			s.Strikes = append(s.Strikes, k)
			s.ImpliedVols = append(s.ImpliedVols, f(k/100, t))
		}
		out = append(out, s)
	}
	return out
}

func rectSmiles(f func(m, t float64) float64) []*smile.Smile {
	times := []float64{0.1, 0.3, 0.5, 1.0}
	return makeSmiles(times, []float64{80, 80, 80, 80}, []float64{120, 120, 120, 120}, f)
}

func TestScatter_Shape(t *testing.T) {
	for _, method := range []Method{Linear, Cubic} {
		t.Run(string(method), func(t *testing.T) {
			g, err := Scatter(rectSmiles(plane), ScatterOptions{Method: method, Resolution: 50})
			if err != nil {
				t.Fatalf("Scatter failed: %v", err)
			}
			if err := g.Validate(); err != nil {
				t.Fatal(err)
			}
			if nt, nm := g.Shape(); nt != 50 || nm != 50 {
				t.Errorf("shape = (%d, %d), want (50, 50)", nt, nm)
			}
			if g.Moneyness[0] != 0.8 || math.Abs(g.Moneyness[49]-1.2) > 1e-12 {
				t.Errorf("moneyness axis spans [%v, %v]", g.Moneyness[0], g.Moneyness[49])
			}
			if g.Time[0] != 0.1 || g.Time[49] != 1.0 {
				t.Errorf("time axis spans [%v, %v]", g.Time[0], g.Time[49])
			}
		})
	}
}

func TestScatter_ReproducesPlane(t *testing.T) {
	for _, method := range []Method{Linear, Cubic} {
		t.Run(string(method), func(t *testing.T) {
			g, err := Scatter(rectSmiles(plane), ScatterOptions{Method: method, Resolution: 40})
			if err != nil {
				t.Fatalf("Scatter failed: %v", err)
			}
			nt, nm := g.Shape()
			if d := g.Defined(); d < nt*nm*9/10 {
				t.Errorf("only %d of %d cells defined", d, nt*nm)
			}
			for i, row := range g.Values {
				for j, v := range row {
					if math.IsNaN(v) {
						continue
					}
					if want := plane(g.Moneyness[j], g.Time[i]); math.Abs(v-want) > 1e-9 {
						t.Fatalf("cell (%d, %d) = %v, want %v", i, j, v, want)
					}
				}
			}
		})
	}
}

func TestScatter_ApproximatesCurvedSmile(t *testing.T) {
	for _, method := range []Method{Linear, Cubic} {
		t.Run(string(method), func(t *testing.T) {
			g, err := Scatter(rectSmiles(bowl), ScatterOptions{Method: method, Resolution: 40})
			if err != nil {
				t.Fatalf("Scatter failed: %v", err)
			}
			worst := 0.0
			for i, row := range g.Values {
				for j, v := range row {
					if !math.IsNaN(v) {
						worst = math.Max(worst, math.Abs(v-bowl(g.Moneyness[j], g.Time[i])))
					}
				}
			}
			if worst > 2e-3 {
				t.Errorf("max error = %v", worst)
			}
		})
	}
}

func TestScatter_OutsideHullIsNaN(t *testing.T) {
	times := []float64{0.1, 0.5, 1.0}
	smiles := makeSmiles(times, []float64{80, 85, 95}, []float64{120, 115, 105}, plane)
	g, err := Scatter(smiles, ScatterOptions{Method: Linear, Resolution: 30})
	if err != nil {
		t.Fatalf("Scatter failed: %v", err)
	}
	last := len(g.Time) - 1
	if v := g.Values[last][0]; !math.IsNaN(v) {
		t.Errorf("far corner = %v, want NaN", v)
	}
	if v := g.Values[0][0]; math.IsNaN(v) {
		t.Error("near corner is undefined")
	}
}

func TestScatter_Errors(t *testing.T) {
	single := makeSmiles([]float64{0.25}, []float64{80}, []float64{120}, plane)
	if _, err := Scatter(single, ScatterOptions{}); !errors.Is(err, ErrDegenerateAxis) {
		t.Errorf("single expiry: err = %v, want ErrDegenerateAxis", err)
	}
	if _, err := Scatter(nil, ScatterOptions{}); !errors.Is(err, ErrNoData) {
		t.Errorf("no smiles: err = %v, want ErrNoData", err)
	}
	if _, err := Scatter(rectSmiles(plane), ScatterOptions{Method: "nearest"}); err == nil {
		t.Error("unknown method accepted")
	}
	if _, err := Scatter(rectSmiles(plane), ScatterOptions{Resolution: 1}); !errors.Is(err, ErrDegenerateAxis) {
		t.Errorf("resolution 1: err = %v, want ErrDegenerateAxis", err)
	}
}

func TestScatter_Smoothed(t *testing.T) {
	g, err := Scatter(rectSmiles(plane), ScatterOptions{Resolution: 30, SmoothSigma: DefaultSmoothSigma})
	if err != nil {
		t.Fatalf("Scatter failed: %v", err)
	}
	mid := len(g.Time) / 2
	for j := 7; j < 23; j++ {
		if want := plane(g.Moneyness[j], g.Time[mid]); math.Abs(g.Values[mid][j]-want) > 1e-6 {
			t.Errorf("interior cell %d = %v, want %v", j, g.Values[mid][j], want)
		}
	}
}

func TestDelaunay_Square(t *testing.T) {
	tris := delaunay([]point{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}})
	if len(tris) != 4 {
		t.Fatalf("got %d triangles, want 4", len(tris))
	}
	area := 0.0
	for _, tr := range tris {
		a, b, c := tri(tr)
		area += math.Abs((b.x-a.x)*(c.y-a.y)-(c.x-a.x)*(b.y-a.y)) / 2
	}
	if math.Abs(area-1) > 1e-12 {
		t.Errorf("triangles cover %v, want 1", area)
	}
}

func tri(t triangle) (point, point, point) {
	pts := []point{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}}
	return pts[t.a], pts[t.b], pts[t.c]
}

func TestSmooth(t *testing.T) {
	axis := Linspace(0, 1, 9)
	g := NewGrid(axis, axis)
	for i := range g.Values {
		for j := range g.Values[i] {
			g.Values[i][j] = 0.25
		}
	}
	g.Values[2][3] = math.NaN()

	s := Smooth(g, 1.5)
	for i, row := range s.Values {
		for j, v := range row {
			if i == 2 && j == 3 {
				if !math.IsNaN(v) {
					t.Errorf("NaN cell became %v", v)
				}
				continue
			}
			if math.Abs(v-0.25) > 1e-12 {
				t.Errorf("cell (%d, %d) = %v, want 0.25", i, j, v)
			}
		}
	}
	if !math.IsNaN(g.Values[2][3]) || g.Values[0][0] != 0.25 {
		t.Error("Smooth modified its input")
	}

	spike := NewGrid(axis, axis)
	for i := range spike.Values {
		for j := range spike.Values[i] {
			spike.Values[i][j] = 0
		}
	}
	spike.Values[4][4] = 1
	s = Smooth(spike, 1)
	if s.Values[4][4] >= 1 || s.Values[4][5] <= 0 || s.Values[4][5] != s.Values[4][3] {
		t.Errorf("spike not spread symmetrically: %v", s.Values[4][3:6])
	}
}

func TestReflect(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 4, 0},
		{-2, 4, 1},
		{4, 4, 3},
		{5, 4, 2},
		{2, 4, 2},
		{-3, 1, 0},
		{9, 4, 1},
	}
	for _, tt := range tests {
		if got := reflect(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestFromModel(t *testing.T) {
	near := &svi_volatility.SviParams{A: 0.02, B: 0.1, Rho: -0.4, M: 0, Sigma: 0.15}
	far := &svi_volatility.SviParams{A: 0.03, B: 0.08, Rho: -0.3, M: 0, Sigma: 0.2}
	m := Linspace(0.8, 1.2, 5)

	g, err := FromModel([]ModelRow{{TimeToExpiry: 1, Params: far}, {TimeToExpiry: 0.25, Params: near}}, m)
	if err != nil {
		t.Fatalf("FromModel failed: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	if g.Time[0] != 0.25 || g.Time[1] != 1 {
		t.Fatalf("time axis = %v, want sorted", g.Time)
	}
	for j, mm := range m {
		if want := near.ImVol(math.Log(mm)); g.Values[0][j] != want {
			t.Errorf("row 0 col %d = %v, want %v", j, g.Values[0][j], want)
		}
		if want := far.ImVol(math.Log(mm)); g.Values[1][j] != want {
			t.Errorf("row 1 col %d = %v, want %v", j, g.Values[1][j], want)
		}
	}

	single, err := FromModel([]ModelRow{{TimeToExpiry: 0.5, Params: near}}, m)
	if err != nil {
		t.Fatalf("single row: %v", err)
	}
	if nt, nm := single.Shape(); nt != 1 || nm != 5 {
		t.Errorf("single row shape = (%d, %d)", nt, nm)
	}
}

func TestFromModel_Errors(t *testing.T) {
	p := &svi_volatility.SviParams{A: 0.02, B: 0.1, Rho: -0.4, M: 0, Sigma: 0.15}
	m := Linspace(0.8, 1.2, 5)
	if _, err := FromModel(nil, m); !errors.Is(err, ErrNoData) {
		t.Errorf("no rows: err = %v", err)
	}
	dup := []ModelRow{{TimeToExpiry: 0.5, Params: p}, {TimeToExpiry: 0.5, Params: p}}
	if _, err := FromModel(dup, m); !errors.Is(err, ErrDegenerateAxis) {
		t.Errorf("duplicate times: err = %v", err)
	}
	if _, err := FromModel([]ModelRow{{TimeToExpiry: 0.5}}, m); err == nil {
		t.Error("row without params accepted")
	}

	neg := &svi_volatility.SviParams{A: -0.5, B: 0.01, Rho: 0, M: 0, Sigma: 0.1}
	g, err := FromModel([]ModelRow{{TimeToExpiry: 0.5, Params: neg}}, m)
	if err != nil {
		t.Fatal(err)
	}
	if g.Defined() != 0 {
		t.Errorf("negative variance produced %d defined cells", g.Defined())
	}
}

func TestMoneynessAxis(t *testing.T) {
	smiles := makeSmiles([]float64{0.1, 0.5}, []float64{90, 80}, []float64{110, 105}, plane)
	m, err := MoneynessAxis(smiles, 11)
	if err != nil {
		t.Fatal(err)
	}
	if m[0] != 0.8 || math.Abs(m[10]-1.1) > 1e-12 {
		t.Errorf("axis spans [%v, %v], want [0.8, 1.1]", m[0], m[10])
	}
	if _, err := MoneynessAxis(nil, 11); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestGrid_JSON(t *testing.T) {
	g := NewGrid([]float64{0.9, 1.1}, []float64{0.5})
	g.Values[0][1] = 0.2

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"implied_vol":[[null,0.2]]`) {
		t.Errorf("json = %s", data)
	}

	var back Grid
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(back.Values[0][0]) || back.Values[0][1] != 0.2 || back.Time[0] != 0.5 {
		t.Errorf("round trip = %+v", back)
	}
}

func BenchmarkScatter_Cubic(b *testing.B) {
	smiles := rectSmiles(bowl)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Scatter(smiles, ScatterOptions{Method: Cubic})
	}
}
