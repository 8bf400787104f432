package optimizer

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/treeopt/internal/fn"
	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/tree"
)

// Strain bounds. A strain of -1 would collapse an edge.
const (
	MinStrain = -0.999
	MaxStrain = 2.0
)

// StrainOptimizer moves leaf nodes and stretches edges so that every leaf
// path fits on the paper while the total stiffness weighted strain is
// minimal.
//
// Variables are laid out as (x, y) pairs of the moving nodes followed by one
// strain per stretchy edge.
type StrainOptimizer struct {
	problem

	edges      []*tree.Edge
	edgeIdx    map[int]int
	edgeOffset int
	stiffness  []float64
}

// NewStrainOptimizer creates an optimizer for t that assembles into solver.
func NewStrainOptimizer(t *tree.Tree, solver *nlco.NLCO) *StrainOptimizer {
	return &StrainOptimizer{problem: newProblem(t, solver)}
}

// Initialize fixes the variable layout and builds bounds, objective and
// constraints. Nodes that are not leaves are ignored. Calling it again
// rebuilds the problem from scratch.
func (o *StrainOptimizer) Initialize(movingNodes []*tree.Node, stretchyEdges []*tree.Edge) error {
	o.initialized = false
	o.setNodes(movingNodes, 0)

	o.edges = o.edges[:0]
	o.edgeIdx = make(map[int]int, len(stretchyEdges))
	for _, e := range stretchyEdges {
		if e == nil {
			continue
		}
		if _, dup := o.edgeIdx[e.ID]; dup {
			continue
		}
		o.edgeIdx[e.ID] = len(o.edges)
		o.edges = append(o.edges, e)
	}
	if len(o.nodes) == 0 && len(o.edges) == 0 {
		return ErrNoMovingNodesOrEdges
	}

	o.edgeOffset = 2 * len(o.nodes)
	n := o.edgeOffset + len(o.edges)

	lower := make([]float64, n)
	upper := make([]float64, n)
	o.nodeBounds(lower, upper)
	for i := o.edgeOffset; i < n; i++ {
		lower[i], upper[i] = MinStrain, MaxStrain
	}

	o.stiffness = make([]float64, len(o.edges))
	for i, e := range o.edges {
		k := e.Stiffness
		if !(k > 0) || math.IsInf(k, 0) {
			slog.Error("Edge has invalid stiffness, using 1.0", "edge", e.ID, "stiffness", k)
			k = 1.0
		}
		o.stiffness[i] = k
	}

	if err := o.setup(lower, upper, fn.NewStrainFn(o.edgeOffset, o.stiffness)); err != nil {
		return err
	}

	paths, err := o.leafPaths()
	if err != nil {
		return err
	}
	skipped := 0
	for _, p := range paths {
		if o.tree.IsPathActive(p) {
			skipped++
			continue
		}
		f, ok := o.pathLengthFn(p)
		if !ok {
			skipped++
			continue
		}
		if err := o.addInequality(f); err != nil {
			return fmt.Errorf("optimizer: %w", err)
		}
	}
	if err := addConditions(o); err != nil {
		return err
	}

	o.initialized = true
	slog.Debug("Strain optimizer initialized",
		"moving_nodes", len(o.nodes),
		"stretchy_edges", len(o.edges),
		"num_vars", n,
		"constraints", o.NumConstraints(),
		"skipped_paths", skipped,
	)
	return nil
}

// EdgeOffsetBase is the index of the first strain variable.
func (o *StrainOptimizer) EdgeOffsetBase() int { return o.edgeOffset }

// StretchyEdges returns the edges whose strain is a variable, in layout
// order.
func (o *StrainOptimizer) StretchyEdges() []*tree.Edge { return o.edges }

// Stiffness returns the per-edge weights of the objective after clamping.
func (o *StrainOptimizer) Stiffness() []float64 {
	return append([]float64(nil), o.stiffness...)
}

// EdgeOffset returns the index of the strain variable of e, and false if e
// is not stretchy.
func (o *StrainOptimizer) EdgeOffset(e *tree.Edge) (int, bool) {
	if e == nil || o.edgeIdx == nil {
		return 0, false
	}
	i, ok := o.edgeIdx[e.ID]
	if !ok {
		return 0, false
	}
	return o.edgeOffset + i, true
}

// GetFixVarLengths splits the scaled length of p into a constant part and
// one (index, coefficient) term per stretchy edge, so that
// lfix + sum(vf[k]*u[vi[k]]) is the scaled strained length of the path.
func (o *StrainOptimizer) GetFixVarLengths(p *tree.Path) (lfix float64, vi []int, vf []float64) {
	scale := o.tree.Scale
	for _, e := range p.Edges {
		if i, ok := o.EdgeOffset(e); ok {
			lfix += scale * e.Length
			vi = append(vi, i)
			vf = append(vf, scale*e.Length)
			continue
		}
		lfix += scale * e.StrainedLength()
	}
	return lfix, vi, vf
}

func (o *StrainOptimizer) pathLengthFn(p *tree.Path) (fn.DifferentiableFunction, bool) {
	n1, n2 := p.Endpoints()
	if n1 == nil || n1 == n2 {
		return nil, false
	}
	ix, ok1 := o.NodeOffset(n1)
	iy, ok2 := o.NodeOffset(n2)
	lfix, vi, vf := o.GetFixVarLengths(p)
	switch {
	case ok1 && ok2:
		return fn.NewMultiStrainPathFn1(ix, iy, lfix, vi, vf), true
	case ok1:
		return fn.NewMultiStrainPathFn2(ix, n2.Loc.X, n2.Loc.Y, lfix, vi, vf), true
	case ok2:
		return fn.NewMultiStrainPathFn2(iy, n1.Loc.X, n1.Loc.Y, lfix, vi, vf), true
	case len(vi) > 0:
		return fn.NewMultiStrainPathFn3(dist(n1, n2), lfix, vi, vf), true
	}
	return nil, false
}

// TreeToData copies node locations and edge strains into the state vector.
func (o *StrainOptimizer) TreeToData() {
	if !o.initialized {
		return
	}
	o.nodesToData()
	for i, e := range o.edges {
		o.x[o.edgeOffset+i] = e.Strain
	}
}

// DataToTree copies the state vector back into the tree.
func (o *StrainOptimizer) DataToTree() {
	if !o.initialized {
		return
	}
	o.dataToNodes()
	for i, e := range o.edges {
		e.Strain = o.x[o.edgeOffset+i]
	}
}

// Optimize solves from the current tree state and writes the best point
// found back into the tree, whatever the outcome.
func (o *StrainOptimizer) Optimize() (nlco.Result, error) {
	return o.run(o.TreeToData, o.DataToTree)
}
