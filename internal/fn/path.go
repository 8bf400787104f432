package fn

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Path length constraints for the scale optimizer, where u[0] is the tree
// scale. The value u[0]*l - dist is non-positive when two leaf nodes are at
// least as far apart on the paper as their scaled tree distance.

// PathFn1 is the path length constraint between two movable nodes.
type PathFn1 struct {
	Counter
	ix, iy int
	lxy    float64
}

func NewPathFn1(ix, iy int, lxy float64) *PathFn1 {
	return &PathFn1{ix: ix, iy: iy, lxy: lxy}
}

func (f *PathFn1) Func(u []float64) float64 {
	f.countFunc()
	dx := u[f.ix] - u[f.iy]
	dy := u[f.ix+1] - u[f.iy+1]
	return u[0]*f.lxy - math.Hypot(dx, dy)
}

func (f *PathFn1) Grad(u, du []float64) {
	f.countGrad(du)
	dx := u[f.ix] - u[f.iy]
	dy := u[f.ix+1] - u[f.iy+1]
	r := invOrZero(math.Hypot(dx, dy))
	du[0] += f.lxy
	du[f.ix] -= dx * r
	du[f.ix+1] -= dy * r
	du[f.iy] += dx * r
	du[f.iy+1] += dy * r
}

// PathFn2 is the path length constraint between a movable node and a fixed
// point.
type PathFn2 struct {
	Counter
	ix  int
	p   r2.Vec
	lxy float64
}

func NewPathFn2(ix int, x, y, lxy float64) *PathFn2 {
	return &PathFn2{ix: ix, p: r2.Vec{X: x, Y: y}, lxy: lxy}
}

func (f *PathFn2) Func(u []float64) float64 {
	f.countFunc()
	return u[0]*f.lxy - math.Hypot(u[f.ix]-f.p.X, u[f.ix+1]-f.p.Y)
}

func (f *PathFn2) Grad(u, du []float64) {
	f.countGrad(du)
	dx := u[f.ix] - f.p.X
	dy := u[f.ix+1] - f.p.Y
	r := invOrZero(math.Hypot(dx, dy))
	du[0] += f.lxy
	du[f.ix] -= dx * r
	du[f.ix+1] -= dy * r
}

// PathFn3 is the path length constraint between two fixed points. Only the
// scale varies.
type PathFn3 struct {
	Counter
	dist, lxy float64
}

func NewPathFn3(dist, lxy float64) *PathFn3 {
	return &PathFn3{dist: dist, lxy: lxy}
}

func (f *PathFn3) Func(u []float64) float64 {
	f.countFunc()
	return u[0]*f.lxy - f.dist
}

func (f *PathFn3) Grad(u, du []float64) {
	f.countGrad(du)
	du[0] = f.lxy
}

// PathAngleFn1 fixes the direction of the separation between two movable
// nodes. It is zero when p1-p2 is parallel to (cos a, sin a).
type PathAngleFn1 struct {
	Counter
	ix, iy int
	sa, ca float64
}

func NewPathAngleFn1(ix, iy int, angle float64) *PathAngleFn1 {
	sa, ca := sinCos(angle)
	return &PathAngleFn1{ix: ix, iy: iy, sa: sa, ca: ca}
}

func (f *PathAngleFn1) Func(u []float64) float64 {
	f.countFunc()
	return (u[f.ix]-u[f.iy])*f.sa - (u[f.ix+1]-u[f.iy+1])*f.ca
}

func (f *PathAngleFn1) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] += f.sa
	du[f.ix+1] -= f.ca
	du[f.iy] -= f.sa
	du[f.iy+1] += f.ca
}

// PathAngleFn2 is PathAngleFn1 with the second point fixed.
type PathAngleFn2 struct {
	Counter
	ix     int
	p      r2.Vec
	sa, ca float64
}

func NewPathAngleFn2(ix int, x, y, angle float64) *PathAngleFn2 {
	sa, ca := sinCos(angle)
	return &PathAngleFn2{ix: ix, p: r2.Vec{X: x, Y: y}, sa: sa, ca: ca}
}

func (f *PathAngleFn2) Func(u []float64) float64 {
	f.countFunc()
	return (u[f.ix]-f.p.X)*f.sa - (u[f.ix+1]-f.p.Y)*f.ca
}

func (f *PathAngleFn2) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = f.sa
	du[f.ix+1] = -f.ca
}
