package fn

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// StrainPathFn1 is the path length constraint for the edge optimizer, where
// u[0] is a strain shared by every selected edge on the path:
//
//	lfix + u[0]*lvar - dist(p1, p2)
type StrainPathFn1 struct {
	Counter
	ix, iy     int
	lfix, lvar float64
}

func NewStrainPathFn1(ix, iy int, lfix, lvar float64) *StrainPathFn1 {
	return &StrainPathFn1{ix: ix, iy: iy, lfix: lfix, lvar: lvar}
}

func (f *StrainPathFn1) Func(u []float64) float64 {
	f.countFunc()
	return f.lfix + u[0]*f.lvar - math.Hypot(u[f.ix]-u[f.iy], u[f.ix+1]-u[f.iy+1])
}

func (f *StrainPathFn1) Grad(u, du []float64) {
	f.countGrad(du)
	dx := u[f.ix] - u[f.iy]
	dy := u[f.ix+1] - u[f.iy+1]
	r := invOrZero(math.Hypot(dx, dy))
	du[0] += f.lvar
	du[f.ix] -= dx * r
	du[f.ix+1] -= dy * r
	du[f.iy] += dx * r
	du[f.iy+1] += dy * r
}

// StrainPathFn2 is StrainPathFn1 with the second endpoint fixed.
type StrainPathFn2 struct {
	Counter
	ix         int
	p          r2.Vec
	lfix, lvar float64
}

func NewStrainPathFn2(ix int, x, y, lfix, lvar float64) *StrainPathFn2 {
	return &StrainPathFn2{ix: ix, p: r2.Vec{X: x, Y: y}, lfix: lfix, lvar: lvar}
}

func (f *StrainPathFn2) Func(u []float64) float64 {
	f.countFunc()
	return f.lfix + u[0]*f.lvar - math.Hypot(u[f.ix]-f.p.X, u[f.ix+1]-f.p.Y)
}

func (f *StrainPathFn2) Grad(u, du []float64) {
	f.countGrad(du)
	dx := u[f.ix] - f.p.X
	dy := u[f.ix+1] - f.p.Y
	r := invOrZero(math.Hypot(dx, dy))
	du[0] += f.lvar
	du[f.ix] -= dx * r
	du[f.ix+1] -= dy * r
}

// StrainPathFn3 is StrainPathFn1 with both endpoints fixed.
type StrainPathFn3 struct {
	Counter
	dist, lfix, lvar float64
}

func NewStrainPathFn3(dist, lfix, lvar float64) *StrainPathFn3 {
	return &StrainPathFn3{dist: dist, lfix: lfix, lvar: lvar}
}

func (f *StrainPathFn3) Func(u []float64) float64 {
	f.countFunc()
	return f.lfix + u[0]*f.lvar - f.dist
}

func (f *StrainPathFn3) Grad(u, du []float64) {
	f.countGrad(du)
	du[0] = f.lvar
}

// varPart is the strain-dependent part of a path length: a list of strain
// variable indices and the scaled nominal length each one multiplies.
type varPart struct {
	vi []int
	vf []float64
}

func newVarPart(vi []int, vf []float64) varPart {
	if len(vi) != len(vf) {
		panic("fn: strain index and coefficient lists differ in length")
	}
	return varPart{vi: append([]int(nil), vi...), vf: append([]float64(nil), vf...)}
}

func (v varPart) value(u []float64) float64 {
	var s float64
	for i, ix := range v.vi {
		s += u[ix] * v.vf[i]
	}
	return s
}

func (v varPart) grad(du []float64) {
	for i, ix := range v.vi {
		du[ix] += v.vf[i]
	}
}

// MultiStrainPathFn1 is the path length constraint for the strain optimizer,
// where every stretchy edge on the path has its own strain variable:
//
//	lfix + sum(u[vi]*vf) - dist(p1, p2)
type MultiStrainPathFn1 struct {
	Counter
	ix, iy int
	lfix   float64
	vars   varPart
}

func NewMultiStrainPathFn1(ix, iy int, lfix float64, vi []int, vf []float64) *MultiStrainPathFn1 {
	return &MultiStrainPathFn1{ix: ix, iy: iy, lfix: lfix, vars: newVarPart(vi, vf)}
}

func (f *MultiStrainPathFn1) Func(u []float64) float64 {
	f.countFunc()
	return f.lfix + f.vars.value(u) - math.Hypot(u[f.ix]-u[f.iy], u[f.ix+1]-u[f.iy+1])
}

func (f *MultiStrainPathFn1) Grad(u, du []float64) {
	f.countGrad(du)
	dx := u[f.ix] - u[f.iy]
	dy := u[f.ix+1] - u[f.iy+1]
	r := invOrZero(math.Hypot(dx, dy))
	f.vars.grad(du)
	du[f.ix] -= dx * r
	du[f.ix+1] -= dy * r
	du[f.iy] += dx * r
	du[f.iy+1] += dy * r
}

// MultiStrainPathFn2 is MultiStrainPathFn1 with the second endpoint fixed.
type MultiStrainPathFn2 struct {
	Counter
	ix   int
	p    r2.Vec
	lfix float64
	vars varPart
}

func NewMultiStrainPathFn2(ix int, x, y, lfix float64, vi []int, vf []float64) *MultiStrainPathFn2 {
	return &MultiStrainPathFn2{ix: ix, p: r2.Vec{X: x, Y: y}, lfix: lfix, vars: newVarPart(vi, vf)}
}

func (f *MultiStrainPathFn2) Func(u []float64) float64 {
	f.countFunc()
	return f.lfix + f.vars.value(u) - math.Hypot(u[f.ix]-f.p.X, u[f.ix+1]-f.p.Y)
}

func (f *MultiStrainPathFn2) Grad(u, du []float64) {
	f.countGrad(du)
	dx := u[f.ix] - f.p.X
	dy := u[f.ix+1] - f.p.Y
	r := invOrZero(math.Hypot(dx, dy))
	f.vars.grad(du)
	du[f.ix] -= dx * r
	du[f.ix+1] -= dy * r
}

// MultiStrainPathFn3 is MultiStrainPathFn1 with both endpoints fixed; only
// the strains vary.
type MultiStrainPathFn3 struct {
	Counter
	dist, lfix float64
	vars       varPart
}

func NewMultiStrainPathFn3(dist, lfix float64, vi []int, vf []float64) *MultiStrainPathFn3 {
	return &MultiStrainPathFn3{dist: dist, lfix: lfix, vars: newVarPart(vi, vf)}
}

func (f *MultiStrainPathFn3) Func(u []float64) float64 {
	f.countFunc()
	return f.lfix + f.vars.value(u) - f.dist
}

func (f *MultiStrainPathFn3) Grad(u, du []float64) {
	f.countGrad(du)
	f.vars.grad(du)
}
