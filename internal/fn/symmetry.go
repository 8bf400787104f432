package fn

import "gonum.org/v1/gonum/spatial/r2"

// Mirror symmetry about a line through p0 at angle a is expressed as two
// equalities that must hold together: the A form puts the midpoint of the
// pair on the line, the B form makes the separation perpendicular to it.

// PairFn1A is the midpoint condition for two movable nodes.
type PairFn1A struct {
	Counter
	ix, iy int
	p0     r2.Vec
	sa, ca float64
}

func NewPairFn1A(ix, iy int, x0, y0, angle float64) *PairFn1A {
	sa, ca := sinCos(angle)
	return &PairFn1A{ix: ix, iy: iy, p0: r2.Vec{X: x0, Y: y0}, sa: sa, ca: ca}
}

func (f *PairFn1A) Func(u []float64) float64 {
	f.countFunc()
	mx := (u[f.ix]+u[f.iy])/2 - f.p0.X
	my := (u[f.ix+1]+u[f.iy+1])/2 - f.p0.Y
	return mx*f.sa - my*f.ca
}

func (f *PairFn1A) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] += f.sa / 2
	du[f.ix+1] -= f.ca / 2
	du[f.iy] += f.sa / 2
	du[f.iy+1] -= f.ca / 2
}

// PairFn1B is the perpendicular-separation condition for two movable nodes.
type PairFn1B struct {
	Counter
	ix, iy int
	sa, ca float64
}

func NewPairFn1B(ix, iy int, angle float64) *PairFn1B {
	sa, ca := sinCos(angle)
	return &PairFn1B{ix: ix, iy: iy, sa: sa, ca: ca}
}

func (f *PairFn1B) Func(u []float64) float64 {
	f.countFunc()
	return (u[f.ix]-u[f.iy])*f.ca + (u[f.ix+1]-u[f.iy+1])*f.sa
}

func (f *PairFn1B) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] += f.ca
	du[f.ix+1] += f.sa
	du[f.iy] -= f.ca
	du[f.iy+1] -= f.sa
}

// PairFn2A is PairFn1A with the partner fixed at (x, y).
type PairFn2A struct {
	Counter
	ix     int
	p, p0  r2.Vec
	sa, ca float64
}

func NewPairFn2A(ix int, x, y, x0, y0, angle float64) *PairFn2A {
	sa, ca := sinCos(angle)
	return &PairFn2A{ix: ix, p: r2.Vec{X: x, Y: y}, p0: r2.Vec{X: x0, Y: y0}, sa: sa, ca: ca}
}

func (f *PairFn2A) Func(u []float64) float64 {
	f.countFunc()
	mx := (u[f.ix]+f.p.X)/2 - f.p0.X
	my := (u[f.ix+1]+f.p.Y)/2 - f.p0.Y
	return mx*f.sa - my*f.ca
}

func (f *PairFn2A) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = f.sa / 2
	du[f.ix+1] = -f.ca / 2
}

// PairFn2B is PairFn1B with the partner fixed at (x, y).
type PairFn2B struct {
	Counter
	ix     int
	p      r2.Vec
	sa, ca float64
}

func NewPairFn2B(ix int, x, y, angle float64) *PairFn2B {
	sa, ca := sinCos(angle)
	return &PairFn2B{ix: ix, p: r2.Vec{X: x, Y: y}, sa: sa, ca: ca}
}

func (f *PairFn2B) Func(u []float64) float64 {
	f.countFunc()
	return (u[f.ix]-f.p.X)*f.ca + (u[f.ix+1]-f.p.Y)*f.sa
}

func (f *PairFn2B) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = f.ca
	du[f.ix+1] = f.sa
}

// cross returns (p2-p1) x (p3-p1), twice the signed area of the triangle.
func cross(x1, y1, x2, y2, x3, y3 float64) float64 {
	return (x2-x1)*(y3-y1) - (y2-y1)*(x3-x1)
}

// CollinearFn1 is zero when three movable nodes are collinear.
type CollinearFn1 struct {
	Counter
	ix, iy, iz int
}

func NewCollinearFn1(ix, iy, iz int) *CollinearFn1 {
	return &CollinearFn1{ix: ix, iy: iy, iz: iz}
}

func (f *CollinearFn1) Func(u []float64) float64 {
	f.countFunc()
	return cross(u[f.ix], u[f.ix+1], u[f.iy], u[f.iy+1], u[f.iz], u[f.iz+1])
}

func (f *CollinearFn1) Grad(u, du []float64) {
	f.countGrad(du)
	x1, y1 := u[f.ix], u[f.ix+1]
	x2, y2 := u[f.iy], u[f.iy+1]
	x3, y3 := u[f.iz], u[f.iz+1]
	du[f.ix] += y2 - y3
	du[f.ix+1] += x3 - x2
	du[f.iy] += y3 - y1
	du[f.iy+1] += x1 - x3
	du[f.iz] += y1 - y2
	du[f.iz+1] += x2 - x1
}

// CollinearFn2 is CollinearFn1 with the third point fixed.
type CollinearFn2 struct {
	Counter
	ix, iy int
	p3     r2.Vec
}

func NewCollinearFn2(ix, iy int, x3, y3 float64) *CollinearFn2 {
	return &CollinearFn2{ix: ix, iy: iy, p3: r2.Vec{X: x3, Y: y3}}
}

func (f *CollinearFn2) Func(u []float64) float64 {
	f.countFunc()
	return cross(u[f.ix], u[f.ix+1], u[f.iy], u[f.iy+1], f.p3.X, f.p3.Y)
}

func (f *CollinearFn2) Grad(u, du []float64) {
	f.countGrad(du)
	x1, y1 := u[f.ix], u[f.ix+1]
	x2, y2 := u[f.iy], u[f.iy+1]
	du[f.ix] += y2 - f.p3.Y
	du[f.ix+1] += f.p3.X - x2
	du[f.iy] += f.p3.Y - y1
	du[f.iy+1] += x1 - f.p3.X
}

// CollinearFn3 is CollinearFn1 with only the first point movable.
type CollinearFn3 struct {
	Counter
	ix     int
	p2, p3 r2.Vec
}

func NewCollinearFn3(ix int, x2, y2, x3, y3 float64) *CollinearFn3 {
	return &CollinearFn3{ix: ix, p2: r2.Vec{X: x2, Y: y2}, p3: r2.Vec{X: x3, Y: y3}}
}

func (f *CollinearFn3) Func(u []float64) float64 {
	f.countFunc()
	return cross(u[f.ix], u[f.ix+1], f.p2.X, f.p2.Y, f.p3.X, f.p3.Y)
}

func (f *CollinearFn3) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = f.p2.Y - f.p3.Y
	du[f.ix+1] = f.p3.X - f.p2.X
}
