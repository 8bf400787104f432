package fn

// OneVarFn fixes a single variable: a*u[ix] + b.
type OneVarFn struct {
	Counter
	ix   int
	a, b float64
}

// NewOneVarFn creates a OneVarFn. Used as an equality it pins u[ix] to -b/a.
func NewOneVarFn(ix int, a, b float64) *OneVarFn {
	return &OneVarFn{ix: ix, a: a, b: b}
}

func (f *OneVarFn) Func(u []float64) float64 {
	f.countFunc()
	return f.a*u[f.ix] + f.b
}

func (f *OneVarFn) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = f.a
}

// TwoVarFn relates two variables linearly: a*u[ix] + b*u[iy].
type TwoVarFn struct {
	Counter
	ix, iy int
	a, b   float64
}

// NewTwoVarFn creates a TwoVarFn.
func NewTwoVarFn(ix int, a float64, iy int, b float64) *TwoVarFn {
	return &TwoVarFn{ix: ix, a: a, iy: iy, b: b}
}

// NewEqualVarFn forces u[ix] == u[iy], e.g. two edges with the same strain.
func NewEqualVarFn(ix, iy int) *TwoVarFn {
	return NewTwoVarFn(ix, 1, iy, -1)
}

func (f *TwoVarFn) Func(u []float64) float64 {
	f.countFunc()
	return f.a*u[f.ix] + f.b*u[f.iy]
}

func (f *TwoVarFn) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] += f.a
	du[f.iy] += f.b
}
