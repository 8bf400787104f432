package fn

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// StickToEdgeFn is zero when a node lies on any edge of the w by h paper
// rectangle:
//
//	x(x-w) y(y-h) / (w h)
type StickToEdgeFn struct {
	Counter
	ix   int
	w, h float64
	wt   float64
}

func NewStickToEdgeFn(ix int, w, h float64) *StickToEdgeFn {
	return &StickToEdgeFn{ix: ix, w: w, h: h, wt: 1 / (w * h)}
}

func (f *StickToEdgeFn) Func(u []float64) float64 {
	f.countFunc()
	x, y := u[f.ix], u[f.ix+1]
	return f.wt * x * (x - f.w) * y * (y - f.h)
}

func (f *StickToEdgeFn) Grad(u, du []float64) {
	f.countGrad(du)
	x, y := u[f.ix], u[f.ix+1]
	du[f.ix] = f.wt * (2*x - f.w) * y * (y - f.h)
	du[f.ix+1] = f.wt * x * (x - f.w) * (2*y - f.h)
}

// StickToLineFn is the signed perpendicular offset of a node from the line
// through p0 at angle a (degrees).
type StickToLineFn struct {
	Counter
	ix     int
	p0     r2.Vec
	sa, ca float64
}

func NewStickToLineFn(ix int, x0, y0, angle float64) *StickToLineFn {
	sa, ca := sinCos(angle)
	return &StickToLineFn{ix: ix, p0: r2.Vec{X: x0, Y: y0}, sa: sa, ca: ca}
}

func (f *StickToLineFn) Func(u []float64) float64 {
	f.countFunc()
	return (u[f.ix]-f.p0.X)*f.sa - (u[f.ix+1]-f.p0.Y)*f.ca
}

func (f *StickToLineFn) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = f.sa
	du[f.ix+1] = -f.ca
}

// BoundaryFn keeps a node behind a reference line. The value is the
// projection of p-p0 onto the outward normal at angle a (degrees), so the
// node is on the allowed side when it is non-positive.
type BoundaryFn struct {
	Counter
	ix     int
	p0     r2.Vec
	sa, ca float64
}

func NewBoundaryFn(ix int, x0, y0, angle float64) *BoundaryFn {
	sa, ca := sinCos(angle)
	return &BoundaryFn{ix: ix, p0: r2.Vec{X: x0, Y: y0}, sa: sa, ca: ca}
}

func (f *BoundaryFn) Func(u []float64) float64 {
	f.countFunc()
	return (u[f.ix]-f.p0.X)*f.ca + (u[f.ix+1]-f.p0.Y)*f.sa
}

func (f *BoundaryFn) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = f.ca
	du[f.ix+1] = f.sa
}

// RadiusFn is k*dist(p, p0) - r. As an inequality it keeps the node within
// r/k of p0.
type RadiusFn struct {
	Counter
	ix   int
	p0   r2.Vec
	k, r float64
}

func NewRadiusFn(ix int, x0, y0, k, r float64) *RadiusFn {
	return &RadiusFn{ix: ix, p0: r2.Vec{X: x0, Y: y0}, k: k, r: r}
}

func (f *RadiusFn) Func(u []float64) float64 {
	f.countFunc()
	return f.k*math.Hypot(u[f.ix]-f.p0.X, u[f.ix+1]-f.p0.Y) - f.r
}

func (f *RadiusFn) Grad(u, du []float64) {
	f.countGrad(du)
	dx := u[f.ix] - f.p0.X
	dy := u[f.ix+1] - f.p0.Y
	s := f.k * invOrZero(math.Hypot(dx, dy))
	du[f.ix] = dx * s
	du[f.ix+1] = dy * s
}

// CornerFn is x(x-w) for a single coordinate. It vanishes only at 0 and w,
// so a pair of them (one per axis) pins a node to a paper corner.
type CornerFn struct {
	Counter
	ix int
	w  float64
}

func NewCornerFn(ix int, w float64) *CornerFn {
	return &CornerFn{ix: ix, w: w}
}

func (f *CornerFn) Func(u []float64) float64 {
	f.countFunc()
	x := u[f.ix]
	return x * (x - f.w)
}

func (f *CornerFn) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = 2*u[f.ix] - f.w
}
