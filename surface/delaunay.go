package surface

import "math"

type point struct {
	x, y float64
}

type triangle struct {
	a, b, c int
	// circumcircle
	cx, cy, r2 float64
}

type edge struct {
	a, b int
}

func newTriangle(pts []point, a, b, c int) (triangle, bool) {
	pa, pb, pc := pts[a], pts[b], pts[c]
	d := 2 * (pa.x*(pb.y-pc.y) + pb.x*(pc.y-pa.y) + pc.x*(pa.y-pb.y))
	if d == 0 {
		return triangle{}, false
	}
	sa := pa.x*pa.x + pa.y*pa.y
	sb := pb.x*pb.x + pb.y*pb.y
	sc := pc.x*pc.x + pc.y*pc.y
	cx := (sa*(pb.y-pc.y) + sb*(pc.y-pa.y) + sc*(pa.y-pb.y)) / d
	cy := (sa*(pc.x-pb.x) + sb*(pa.x-pc.x) + sc*(pb.x-pa.x)) / d
	dx, dy := pa.x-cx, pa.y-cy
	return triangle{a: a, b: b, c: c, cx: cx, cy: cy, r2: dx*dx + dy*dy}, true
}

func (t triangle) inCircumcircle(p point) bool {
	dx, dy := p.x-t.cx, p.y-t.cy
	return dx*dx+dy*dy < t.r2*(1-1e-12)
}

func (t triangle) has(i int) bool {
	return t.a == i || t.b == i || t.c == i
}

// delaunay triangulates points inside the unit square with Bowyer-Watson
// and returns triangles over the input indices only.
func delaunay(input []point) []triangle {
	n := len(input)
	if n < 3 {
		return nil
	}
	pts := make([]point, n, n+3)
	copy(pts, input)
	// super triangle enclosing [0,1]^2
	const s = 1e3
	pts = append(pts, point{-s, -s}, point{s, -s}, point{0.5, s})

	super, _ := newTriangle(pts, n, n+1, n+2)
	tris := []triangle{super}

	for i := 0; i < n; i++ {
		p := pts[i]
		bad := make([]triangle, 0)
		keep := tris[:0:0]
		for _, t := range tris {
			if t.inCircumcircle(p) {
				bad = append(bad, t)
			} else {
				keep = append(keep, t)
			}
		}

		// cavity boundary: edges used by exactly one bad triangle, in discovery order
		count := make(map[edge]int)
		order := make([]edge, 0, 3*len(bad))
		for _, t := range bad {
			for _, e := range [3]edge{{t.a, t.b}, {t.b, t.c}, {t.c, t.a}} {
				key := e
				if key.a > key.b {
					key.a, key.b = key.b, key.a
				}
				if count[key] == 0 {
					order = append(order, e)
				}
				count[key]++
			}
		}
		for _, e := range order {
			key := e
			if key.a > key.b {
				key.a, key.b = key.b, key.a
			}
			if count[key] != 1 {
				continue
			}
			if t, ok := newTriangle(pts, e.a, e.b, i); ok {
				keep = append(keep, t)
			}
		}
		tris = keep
	}

	out := make([]triangle, 0, len(tris))
	for _, t := range tris {
		if t.has(n) || t.has(n+1) || t.has(n+2) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// barycentric returns the weights of p against triangle (a, b, c); ok is false
// for a degenerate triangle.
func barycentric(a, b, c, p point) (l0, l1, l2 float64, ok bool) {
	det := (b.y-c.y)*(a.x-c.x) + (c.x-b.x)*(a.y-c.y)
	if math.Abs(det) < 1e-18 {
		return 0, 0, 0, false
	}
	l0 = ((b.y-c.y)*(p.x-c.x) + (c.x-b.x)*(p.y-c.y)) / det
	l1 = ((c.y-a.y)*(p.x-c.x) + (a.x-c.x)*(p.y-c.y)) / det
	l2 = 1 - l0 - l1
	return l0, l1, l2, true
}
