package fn

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// quantizer holds the n candidate directions offset + k*180/n. A single
// factor dx*sin(t) - dy*cos(t) vanishes when the separation is parallel to
// direction t, so the product of all factors vanishes when the separation
// matches any one of them.
type quantizer struct {
	sa, ca []float64
	wt     float64
}

func newQuantizer(n int, offset float64) quantizer {
	if n < 1 {
		panic("fn: quantization must be at least 1")
	}
	q := quantizer{
		sa: make([]float64, n),
		ca: make([]float64, n),
		wt: math.Pow(2, float64(n-1)),
	}
	for k := range n {
		q.sa[k], q.ca[k] = sinCos(offset + float64(k)*180/float64(n))
	}
	return q
}

func (q quantizer) value(dx, dy float64) float64 {
	p := q.wt
	for k := range q.sa {
		p *= dx*q.sa[k] - dy*q.ca[k]
	}
	return p
}

// partials returns the derivative of value with respect to dx and dy. Each
// term recomputes the product without its own factor so that a zero factor
// does not poison the others.
func (q quantizer) partials(dx, dy float64) (gx, gy float64) {
	for j := range q.sa {
		p := q.wt
		for k := range q.sa {
			if k != j {
				p *= dx*q.sa[k] - dy*q.ca[k]
			}
		}
		gx += p * q.sa[j]
		gy -= p * q.ca[j]
	}
	return gx, gy
}

// QuantizeAngleFn1 is zero when the direction from the second movable node
// to the first is one of n quanta starting at offset (degrees).
type QuantizeAngleFn1 struct {
	Counter
	ix, iy int
	q      quantizer
}

func NewQuantizeAngleFn1(ix, iy, n int, offset float64) *QuantizeAngleFn1 {
	return &QuantizeAngleFn1{ix: ix, iy: iy, q: newQuantizer(n, offset)}
}

func (f *QuantizeAngleFn1) Func(u []float64) float64 {
	f.countFunc()
	return f.q.value(u[f.ix]-u[f.iy], u[f.ix+1]-u[f.iy+1])
}

func (f *QuantizeAngleFn1) Grad(u, du []float64) {
	f.countGrad(du)
	gx, gy := f.q.partials(u[f.ix]-u[f.iy], u[f.ix+1]-u[f.iy+1])
	du[f.ix] += gx
	du[f.ix+1] += gy
	du[f.iy] -= gx
	du[f.iy+1] -= gy
}

// QuantizeAngleFn2 is QuantizeAngleFn1 with the second node fixed.
type QuantizeAngleFn2 struct {
	Counter
	ix int
	p  r2.Vec
	q  quantizer
}

func NewQuantizeAngleFn2(ix int, x, y float64, n int, offset float64) *QuantizeAngleFn2 {
	return &QuantizeAngleFn2{ix: ix, p: r2.Vec{X: x, Y: y}, q: newQuantizer(n, offset)}
}

func (f *QuantizeAngleFn2) Func(u []float64) float64 {
	f.countFunc()
	return f.q.value(u[f.ix]-f.p.X, u[f.ix+1]-f.p.Y)
}

func (f *QuantizeAngleFn2) Grad(u, du []float64) {
	f.countGrad(du)
	gx, gy := f.q.partials(u[f.ix]-f.p.X, u[f.ix+1]-f.p.Y)
	du[f.ix] = gx
	du[f.ix+1] = gy
}
