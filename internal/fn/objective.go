package fn

// StrainFn is the stiffness weighted square strain over the contiguous block
// of strain variables starting at offset.
type StrainFn struct {
	Counter
	offset    int
	stiffness []float64
}

func NewStrainFn(offset int, stiffness []float64) *StrainFn {
	return &StrainFn{offset: offset, stiffness: append([]float64(nil), stiffness...)}
}

func (f *StrainFn) Func(u []float64) float64 {
	f.countFunc()
	var s float64
	for i, k := range f.stiffness {
		e := u[f.offset+i]
		s += k * e * e
	}
	return s
}

func (f *StrainFn) Grad(u, du []float64) {
	f.countGrad(du)
	for i, k := range f.stiffness {
		du[f.offset+i] = 2 * k * u[f.offset+i]
	}
}

// MaxVarFn is -u[ix]; minimizing it maximizes one variable.
type MaxVarFn struct {
	Counter
	ix int
}

func NewMaxVarFn(ix int) *MaxVarFn {
	return &MaxVarFn{ix: ix}
}

func (f *MaxVarFn) Func(u []float64) float64 {
	f.countFunc()
	return -u[f.ix]
}

func (f *MaxVarFn) Grad(u, du []float64) {
	f.countGrad(du)
	du[f.ix] = -1
}
